package normalizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleFindings = map[string]string{
	"short": "Gunshot wound to the chest",
	"medium": `External examination revealed multiple blunt force injuries to the head
        and torso consistent with a motor vehicle collision. Internal examination showed
        fractures of the left ribs, a lacerated spleen and approximately 1500 ml of
        blood in the peritoneal cavity. Toxicology negative.`,
	"long": strings.Repeat(`The heart weighed 520 grams with marked left ventricular
        hypertrophy. Coronary arteries showed severe atherosclerosis with 90% stenosis
        of the left anterior descending artery and a recent thrombus. The myocardium
        showed an area of pallor consistent with acute infarction. Lungs were congested
        and edematous. `, 20),
}

func BenchmarkNormalize(b *testing.B) {
	for name, text := range sampleFindings {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Normalize(text)
			}
		})
	}
}

func BenchmarkNormalizeParallel(b *testing.B) {
	text := sampleFindings["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = Normalize(text)
		}
	})
}

func BenchmarkStem(b *testing.B) {
	words := []string{
		"hemorrhaging", "asphyxiation", "intoxication", "strangulated",
		"cardiomyopathy", "fractures", "lacerations", "perforated",
		"metastasized", "electrocution",
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for _, w := range words {
			_ = Stem(w)
		}
	}
}

func BenchmarkNormalizeVaryingSize(b *testing.B) {
	sizes := []int{10, 100, 500, 1000, 5000}
	base := "subdural hematoma following fall from height "
	for _, size := range sizes {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Normalize(text)
			}
		})
	}
}
