package profile

// relatedGenres lists neighbours used to widen a reader's base genres.
var relatedGenres = map[string][]string{
	"mystery":   {"thriller", "crime", "suspense"},
	"thriller":  {"mystery", "suspense", "crime"},
	"sci-fi":    {"fantasy", "dystopian"},
	"fantasy":   {"sci-fi", "urban_fantasy"},
	"romance":   {"contemporary_fiction", "drama"},
	"biography": {"memoir", "history"},
	"self-help": {"psychology", "personal_development"},
	"business":  {"economics", "management"},
	"fiction":   {"literary_fiction", "contemporary_fiction"},
}

// contrastGenres lists genres a reader of the key genre tends to avoid.
var contrastGenres = map[string][]string{
	"mystery":   {"romance", "self-help"},
	"sci-fi":    {"biography", "history"},
	"romance":   {"mystery", "academic"},
	"biography": {"fantasy", "sci-fi"},
	"self-help": {"fiction"},
	"business":  {"fiction"},
	"fiction":   {"academic", "business"},
}

type readingPattern struct {
	length   string
	purposes []string
	contexts []string
	style    Style
}

var readingPatterns = map[string]readingPattern{
	"beginner": {length: "short", purposes: []string{"entertainment"}, contexts: []string{"bedtime", "commute"}, style: StyleBrief},
	"medium":   {length: "medium", purposes: []string{"entertainment", "learning"}, contexts: []string{"evening", "weekend"}, style: StyleBalanced},
	"advanced": {length: "long", purposes: []string{"learning", "professional"}, contexts: []string{"study_time"}, style: StyleDetailed},
}
