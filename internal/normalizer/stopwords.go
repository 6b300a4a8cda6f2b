package normalizer

var stopwords = toSet(
	// general English
	"a", "about", "above", "after", "again", "against", "all", "also", "am", "an",
	"and", "any", "are", "as", "at", "be", "because", "been", "before", "being",
	"below", "between", "both", "but", "by", "can", "could", "did", "do", "does",
	"doing", "down", "during", "each", "few", "for", "from", "further", "had",
	"has", "have", "having", "he", "her", "here", "hers", "herself", "him",
	"himself", "his", "how", "if", "in", "into", "is", "it", "its", "itself",
	"just", "may", "me", "more", "most", "my", "myself", "no", "nor", "not",
	"now", "of", "off", "on", "once", "only", "or", "other", "our", "ours",
	"out", "over", "own", "same", "she", "should", "so", "some", "such", "than",
	"that", "the", "their", "theirs", "them", "then", "there", "these", "they",
	"this", "those", "through", "to", "too", "under", "until", "up", "very",
	"was", "we", "were", "what", "when", "where", "which", "while", "who",
	"whom", "why", "will", "with", "would", "you", "your", "yours",
	// report boilerplate
	"autopsy", "autopsies", "finding", "findings", "mortem", "post", "postmortem",
	"report", "reported", "examination", "examined", "noted", "note", "showed",
	"shows", "revealed", "reveals", "consistent", "evidence", "probable",
	"probably", "likely", "possible", "deceased", "decedent", "patient", "subject",
	"male", "female", "year", "years", "old", "aged", "approximately",
	// near-universal in this domain
	"cause", "causes", "caused", "death", "deaths", "died", "dead", "disease",
	"diseases", "due", "secondary", "result", "resulting", "primary", "immediate",
	"underlying", "manner",
)

// IsStopword reports whether word is excluded from the token stream.
func IsStopword(word string) bool {
	_, ok := stopwords[word]
	return ok
}

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
