package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "abc-123" {
		t.Errorf("context request id = %q", seen)
	}
	if rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Errorf("response header = %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestRequestIDGenerated(t *testing.T) {
	rec := httptest.NewRecorder()
	RequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(ratelimit.New(1, time.Hour))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/", nil))

	if first.Code != http.StatusAccepted {
		t.Errorf("first = %d", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second = %d, want 429", second.Code)
	}
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/model", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	h := Metrics(m)(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/model", nil))

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "GET /api/v1/model", "503"))
	if got != 1 {
		t.Errorf("http_requests_total = %v, want 1", got)
	}
}

func TestTimeoutExemptRoute(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusAccepted)
	})
	h := Timeout(10*time.Millisecond, "POST /api/v1/model/retrain")(slow)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/model/retrain", nil))
	if rec.Code != http.StatusAccepted {
		t.Errorf("exempt route code = %d, want 202", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/classify", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("bounded route code = %d, want 504", rec.Code)
	}
}
