// Package autolabel assigns bootstrap training labels to historical records
// that carry no authoritative category. Matching runs over the raw
// lower-cased text so that multi-word phrases only match contiguously.
package autolabel

import "strings"

const (
	// Fallback is returned when no rule and no natural-causes phrase match.
	Fallback = "other"
	// NaturalCauses is the label for generic "natural causes" wording.
	NaturalCauses = "natural_causes"
)

// Rule maps a label to the phrases that select it.
type Rule struct {
	Label    string
	Keywords []string
}

// rules is evaluated top to bottom and the first match wins, so violent and
// external causes sit above the natural categories they often co-occur with
// ("gunshot wound ... cardiac arrest" is a homicide, not a cardiac death).
var rules = []Rule{
	{"homicide_trauma", []string{"gunshot", "gun shot", "firearm", "stab wound", "stabbed", "homicide", "strangulation", "assault"}},
	{"blunt_force_trauma", []string{"blunt force", "car accident", "motor vehicle", "traffic accident", "fall from", "crush"}},
	{"suicide", []string{"suicide", "self-inflicted", "self inflicted", "hanging"}},
	{"asphyxia_drowning", []string{"drowning", "drowned", "asphyxia", "suffocation", "choking"}},
	{"poisoning_overdose", []string{"overdose", "poisoning", "toxicity", "intoxication"}},
	{"burns", []string{"burns", "burned", "burnt", "house fire", "smoke inhalation", "electrocution"}},
	{"cardiovascular", []string{"myocardial infarction", "heart attack", "cardiac arrest", "coronary", "heart failure", "arrhythmia", "cardiomyopathy"}},
	{"cerebrovascular", []string{"stroke", "cerebral hemorrhage", "intracranial hemorrhage", "aneurysm"}},
	{"respiratory", []string{"pneumonia", "respiratory failure", "pulmonary embolism", "copd", "asthma", "tuberculosis"}},
	{"cancer", []string{"cancer", "carcinoma", "tumor", "tumour", "malignan", "metasta", "lymphoma", "leukemia"}},
	{"infection_sepsis", []string{"sepsis", "septic", "infection", "meningitis"}},
	{"metabolic_organ_failure", []string{"diabetes", "renal failure", "kidney failure", "liver failure", "cirrhosis"}},
}

var naturalCausesPhrases = []string{"natural causes", "natural cause"}

// Label returns the first rule label whose keyword occurs in the combined
// lower-cased text, then NaturalCauses, then Fallback. It never fails.
func Label(findings, causeOfDeath string) string {
	text := strings.ToLower(findings + " " + causeOfDeath)
	for _, r := range rules {
		if containsAny(text, r.Keywords) {
			return r.Label
		}
	}
	if containsAny(text, naturalCausesPhrases) {
		return NaturalCauses
	}
	return Fallback
}

// Rules returns a copy of the ordered rule list.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = Rule{Label: r.Label, Keywords: append([]string(nil), r.Keywords...)}
	}
	return out
}

// Labels lists every label Label can return, in evaluation order.
func Labels() []string {
	out := make([]string, 0, len(rules)+2)
	for _, r := range rules {
		out = append(out, r.Label)
	}
	return append(out, NaturalCauses, Fallback)
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
