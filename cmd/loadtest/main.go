package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

type sample struct {
	Findings     string `json:"findings"`
	CauseOfDeath string `json:"cause_of_death"`
}

var samples = []sample{
	{"blunt force trauma to the head", "motor vehicle collision"},
	{"gunshot wound to the chest", "homicide"},
	{"water in lungs, froth in airways", "drowning"},
	{"ligature mark around the neck", "hanging"},
	{"coronary artery occlusion", "myocardial infarction"},
	{"elevated blood alcohol, opioid toxicity", "drug overdose"},
	{"extensive third degree burns", "house fire"},
	{"multiple fractures after fall from height", "fall"},
	{"stab wounds to the abdomen", "assault with knife"},
	{"carbon monoxide saturation 60%", "poisoning"},
	{"pneumonia with sepsis", ""},
	{"", "cardiac arrest"},
	{"no significant findings", "undetermined"},
}

type stats struct {
	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	cached    atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
	labels    map[string]int64
}

func newStats() *stats {
	return &stats{
		latencies: make([]time.Duration, 0, 100000),
		codes:     make(map[int]int64),
		labels:    make(map[string]int64),
	}
}

type classifyResponse struct {
	Label  string `json:"label"`
	Cached bool   `json:"cached"`
}

func (s *stats) record(elapsed time.Duration, code int, body []byte, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	var resp classifyResponse
	ok := code == http.StatusOK && json.Unmarshal(body, &resp) == nil
	if ok {
		s.succeeded.Add(1)
		if resp.Cached {
			s.cached.Add(1)
		}
	} else {
		s.failed.Add(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, elapsed)
	s.codes[code]++
	if ok {
		s.labels[resp.Label]++
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the classifier service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	fmt.Println("=== Cause Classifier Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Samples:     %d unique\n", len(samples))
	fmt.Println()

	bodies := make([][]byte, len(samples))
	for i, s := range samples {
		b, err := json.Marshal(s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encoding sample %d: %v\n", i, err)
			os.Exit(1)
		}
		bodies[i] = b
	}

	st := run(*baseURL+"/api/v1/classify", bodies, *concurrency, *duration)
	if !report(st, *duration) {
		os.Exit(1)
	}
}

func run(endpoint string, bodies [][]byte, concurrency int, duration time.Duration) *stats {
	st := newStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodies[i%len(bodies)]))
				if err != nil {
					return err
				}
				req.Header.Set("Content-Type", "application/json")
				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					st.record(time.Since(start), 0, nil, err)
					continue
				}
				body, err := io.ReadAll(resp.Body)
				resp.Body.Close()
				st.record(time.Since(start), resp.StatusCode, body, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "load test aborted: %v\n", err)
	}
	return st
}

func report(st *stats, duration time.Duration) bool {
	total := st.total.Load()
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", st.succeeded.Load())
	fmt.Printf("Errors:          %d\n", st.failed.Load())
	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		return false
	}
	fmt.Printf("Error Rate:      %.2f%%\n", float64(st.failed.Load())/float64(total)*100)
	fmt.Printf("Cache Hit Rate:  %.2f%%\n", float64(st.cached.Load())/float64(total)*100)
	fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())

	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.latencies) > 0 {
		lat := st.latencies
		sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
		var sum time.Duration
		for _, l := range lat {
			sum += l
		}
		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", lat[0])
		fmt.Printf("Avg:    %s\n", sum/time.Duration(len(lat)))
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Printf("P%-2.0f:    %s\n", p, percentile(lat, p))
		}
		fmt.Printf("Max:    %s\n", lat[len(lat)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(st.codes))
	for code := range st.codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, st.codes[code])
	}

	fmt.Println()
	fmt.Println("=== Labels ===")
	labels := make([]string, 0, len(st.labels))
	for l := range st.labels {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Printf("  %-16s %d\n", l, st.labels[l])
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
