package bayes

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/normalizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/errors"
)

func toyModel() *Model {
	return Train([]Document{
		{Tokens: normalizer.Normalize("heart attack cardiac arrest"), Label: "cardiac"},
		{Tokens: normalizer.Normalize("gunshot wound assault"), Label: "trauma"},
	}, DefaultSmoothing)
}

func TestClassifyToyCorpus(t *testing.T) {
	m := toyModel()
	tests := []struct {
		text string
		want string
	}{
		{"cardiac arrest", "cardiac"},
		{"assault gunshot", "trauma"},
		{"Multiple GUNSHOT wounds", "trauma"},
	}
	for _, tt := range tests {
		got, err := m.Classify(normalizer.Normalize(tt.text))
		if err != nil {
			t.Fatalf("Classify(%q): %v", tt.text, err)
		}
		if got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestClassifyUntrained(t *testing.T) {
	for name, m := range map[string]*Model{
		"new":       NewModel(DefaultSmoothing),
		"zero":      {},
		"no labels": Train([]Document{{Tokens: []string{"x"}}}, DefaultSmoothing),
	} {
		label, err := m.Classify([]string{"cardiac"})
		if !errors.Is(err, apperrors.ErrModelNotTrained) {
			t.Errorf("%s: err = %v, want ErrModelNotTrained", name, err)
		}
		if label != "" {
			t.Errorf("%s: label = %q, want empty", name, label)
		}
	}
}

func TestClassifyOutOfVocabulary(t *testing.T) {
	m := toyModel()
	label, err := m.Classify([]string{"zzzunseen", "qqqother"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if label != "cardiac" && label != "trauma" {
		t.Errorf("label = %q, want a trained label", label)
	}
	scores, _ := m.Scores([]string{"zzzunseen"})
	for _, s := range scores {
		if math.IsInf(s.LogScore, 0) || s.Probability == 0 {
			t.Errorf("label %q has degenerate score %+v", s.Label, s)
		}
	}
}

func TestClassifyTieBreaksLexicographically(t *testing.T) {
	m := Train([]Document{
		{Tokens: []string{"xx"}, Label: "zeta"},
		{Tokens: []string{"yy"}, Label: "alpha"},
		{Tokens: []string{"ww"}, Label: "mid"},
	}, DefaultSmoothing)
	for range 10 {
		got, err := m.Classify(nil)
		if err != nil {
			t.Fatal(err)
		}
		if got != "alpha" {
			t.Fatalf("tie resolved to %q, want alpha", got)
		}
	}
}

func TestScoresSoftmax(t *testing.T) {
	m := toyModel()
	scores, err := m.Scores(normalizer.Normalize("cardiac arrest after assault"))
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for i, s := range scores {
		sum += s.Probability
		if i > 0 && s.LogScore > scores[i-1].LogScore {
			t.Errorf("scores not sorted: %v", scores)
		}
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("probabilities sum to %v", sum)
	}
}

func TestTrainIsIdempotent(t *testing.T) {
	docs := []Document{
		{Tokens: []string{"heart", "attack"}, Label: "cardiac"},
		{Tokens: []string{"gunshot", "gunshot"}, Label: "trauma"},
		{Tokens: []string{"heart"}, Label: "cardiac"},
	}
	a := Train(docs, 0.5)
	b := Train(docs, 0.5)
	if !reflect.DeepEqual(a, b) {
		t.Error("training twice on the same documents produced different models")
	}
}

func TestTrainStatistics(t *testing.T) {
	m := Train([]Document{
		{Tokens: []string{"heart", "attack", "heart"}, Label: "cardiac"},
		{Tokens: []string{"arrest"}, Label: "cardiac"},
		{Tokens: []string{"gunshot"}, Label: "trauma"},
		{Tokens: []string{"ignored"}, Label: ""},
	}, DefaultSmoothing)

	if got := m.TotalDocuments(); got != 3 {
		t.Errorf("TotalDocuments = %d, want 3", got)
	}
	if got := m.VocabularySize(); got != 4 {
		t.Errorf("VocabularySize = %d, want 4", got)
	}
	if got := m.Labels(); !reflect.DeepEqual(got, []string{"cardiac", "trauma"}) {
		t.Errorf("Labels = %v", got)
	}
	for _, label := range m.Labels() {
		st, _ := m.Stats(label)
		if st.Documents < 1 {
			t.Errorf("%s: documents = %d", label, st.Documents)
		}
		sum := 0
		for _, n := range st.Counts {
			sum += n
		}
		if sum != st.Tokens {
			t.Errorf("%s: counts sum %d != tokens %d", label, sum, st.Tokens)
		}
	}
	st, _ := m.Stats("cardiac")
	if st.Counts["heart"] != 2 || st.Documents != 2 {
		t.Errorf("cardiac stats = %+v", st)
	}
}

func TestStatsReturnsCopy(t *testing.T) {
	m := toyModel()
	st, _ := m.Stats("trauma")
	for k := range st.Counts {
		st.Counts[k] = 1000
	}
	again, _ := m.Stats("trauma")
	for k, v := range again.Counts {
		if v == 1000 {
			t.Errorf("Stats leaked internal map at %q", k)
		}
	}
}

func TestFromParts(t *testing.T) {
	m := toyModel()
	parts := make(map[string]LabelStats)
	for _, l := range m.Labels() {
		parts[l], _ = m.Stats(l)
	}
	rebuilt, err := FromParts(m.Smoothing(), parts)
	if err != nil {
		t.Fatalf("FromParts: %v", err)
	}
	if !reflect.DeepEqual(m, rebuilt) {
		t.Error("rebuilt model differs from original")
	}

	bad := map[string]map[string]LabelStats{
		"token total mismatch": {"a": {Documents: 1, Tokens: 5, Counts: map[string]int{"x": 1}}},
		"zero documents":       {"a": {Documents: 0, Tokens: 1, Counts: map[string]int{"x": 1}}},
		"empty label":          {"": {Documents: 1, Tokens: 1, Counts: map[string]int{"x": 1}}},
		"zero count":           {"a": {Documents: 1, Tokens: 0, Counts: map[string]int{"x": 0}}},
	}
	for name, stats := range bad {
		if _, err := FromParts(1, stats); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := FromParts(0, parts); err == nil {
		t.Error("zero smoothing: expected error")
	}
}
