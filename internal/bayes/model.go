// Package bayes implements a multinomial naive Bayes text classifier with
// Laplace smoothing. A Model is immutable once built: Train always produces a
// fresh Model, so one instance can serve concurrent Classify calls without
// locking.
package bayes

import (
	"fmt"
	"math"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/errors"
)

// DefaultSmoothing is the Laplace alpha used when none is configured.
const DefaultSmoothing = 1.0

// Document is one training example.
type Document struct {
	Tokens []string
	Label  string
}

// LabelStats holds the token counts observed under one label. Tokens always
// equals the sum of Counts.
type LabelStats struct {
	Documents int            `json:"documents"`
	Tokens    int            `json:"tokens"`
	Counts    map[string]int `json:"counts"`
}

// Model is a trained classifier. Construct it with Train, NewModel or
// FromParts; the zero value is an untrained model.
type Model struct {
	smoothing      float64
	labels         []string
	stats          map[string]*LabelStats
	totalDocuments int
	vocab          map[string]struct{}
}

// Score is the log-space score of one label plus its softmax probability.
type Score struct {
	Label       string
	LogScore    float64
	Probability float64
}

// NewModel returns an empty model. Classify on it fails with
// ErrModelNotTrained.
func NewModel(smoothing float64) *Model {
	return &Model{smoothing: smoothing, stats: make(map[string]*LabelStats)}
}

// Train builds a new model from docs in a single pass. Documents with an
// empty label are skipped. The result depends only on the multiset of docs,
// so training twice on the same input yields equal models.
func Train(docs []Document, smoothing float64) *Model {
	if smoothing <= 0 {
		smoothing = DefaultSmoothing
	}
	m := NewModel(smoothing)
	for _, doc := range docs {
		if doc.Label == "" {
			continue
		}
		st, ok := m.stats[doc.Label]
		if !ok {
			st = &LabelStats{Counts: make(map[string]int)}
			m.stats[doc.Label] = st
		}
		st.Documents++
		m.totalDocuments++
		for _, tok := range doc.Tokens {
			st.Counts[tok]++
			st.Tokens++
		}
	}
	m.finish()
	return m
}

// FromParts rebuilds a model from persisted statistics, validating the
// invariants a trained model must hold.
func FromParts(smoothing float64, stats map[string]LabelStats) (*Model, error) {
	if smoothing <= 0 || math.IsNaN(smoothing) || math.IsInf(smoothing, 0) {
		return nil, fmt.Errorf("invalid smoothing %v", smoothing)
	}
	m := NewModel(smoothing)
	for label, st := range stats {
		if label == "" {
			return nil, fmt.Errorf("empty label")
		}
		if st.Documents < 1 {
			return nil, fmt.Errorf("label %q has %d documents", label, st.Documents)
		}
		sum := 0
		counts := make(map[string]int, len(st.Counts))
		for tok, n := range st.Counts {
			if n < 1 {
				return nil, fmt.Errorf("label %q token %q has count %d", label, tok, n)
			}
			counts[tok] = n
			sum += n
		}
		if sum != st.Tokens {
			return nil, fmt.Errorf("label %q token total %d does not match counts %d", label, st.Tokens, sum)
		}
		m.stats[label] = &LabelStats{Documents: st.Documents, Tokens: st.Tokens, Counts: counts}
		m.totalDocuments += st.Documents
	}
	m.finish()
	return m, nil
}

func (m *Model) finish() {
	m.labels = make([]string, 0, len(m.stats))
	m.vocab = make(map[string]struct{})
	for label, st := range m.stats {
		m.labels = append(m.labels, label)
		for tok := range st.Counts {
			m.vocab[tok] = struct{}{}
		}
	}
	sort.Strings(m.labels)
}

// Trained reports whether the model has at least one label.
func (m *Model) Trained() bool { return m != nil && len(m.labels) > 0 }

// Labels returns the known labels in lexicographic order.
func (m *Model) Labels() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.labels...)
}

func (m *Model) Smoothing() float64 { return m.smoothing }

func (m *Model) TotalDocuments() int { return m.totalDocuments }

func (m *Model) VocabularySize() int { return len(m.vocab) }

// Stats returns a copy of the statistics for label.
func (m *Model) Stats(label string) (LabelStats, bool) {
	st, ok := m.stats[label]
	if !ok {
		return LabelStats{}, false
	}
	counts := make(map[string]int, len(st.Counts))
	for k, v := range st.Counts {
		counts[k] = v
	}
	return LabelStats{Documents: st.Documents, Tokens: st.Tokens, Counts: counts}, true
}

// Classify returns the label with the highest posterior score. Tokens never
// seen in training are ignored. Ties go to the lexicographically smallest
// label.
func (m *Model) Classify(tokens []string) (string, error) {
	scores, err := m.Scores(tokens)
	if err != nil {
		return "", err
	}
	return scores[0].Label, nil
}

// Scores returns every label's score, best first. Probabilities are the
// softmax of the log scores and sum to 1.
func (m *Model) Scores(tokens []string) ([]Score, error) {
	if !m.Trained() {
		return nil, apperrors.ErrModelNotTrained
	}
	scores := make([]Score, len(m.labels))
	best := 0
	for i, label := range m.labels {
		scores[i] = Score{Label: label, LogScore: m.logScore(label, tokens)}
		if scores[i].LogScore > scores[best].LogScore {
			best = i
		}
	}
	maxLog := scores[best].LogScore
	var sum float64
	for i := range scores {
		scores[i].Probability = math.Exp(scores[i].LogScore - maxLog)
		sum += scores[i].Probability
	}
	for i := range scores {
		scores[i].Probability /= sum
	}
	// Stable sort keeps lexicographic order among equal scores.
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].LogScore > scores[j].LogScore
	})
	return scores, nil
}

func (m *Model) logScore(label string, tokens []string) float64 {
	st := m.stats[label]
	score := math.Log(float64(st.Documents) / float64(m.totalDocuments))
	denom := math.Log(float64(st.Tokens) + m.smoothing*float64(len(m.vocab)))
	for _, tok := range tokens {
		if _, ok := m.vocab[tok]; !ok {
			continue
		}
		score += math.Log(float64(st.Counts[tok])+m.smoothing) - denom
	}
	return score
}
