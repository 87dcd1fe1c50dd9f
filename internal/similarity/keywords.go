package similarity

import (
	"sort"
	"strings"
)

// Terms is the functional vocabulary two components must share to count as
// alternatives for each other.
var Terms = []string{
	"filesystem", "file", "database", "db", "sqlite", "postgres", "mysql",
	"web", "http", "api", "rest", "git", "github", "docker", "aws", "cloud",
	"search", "index", "browser", "selenium", "playwright", "test", "testing",
}

// KeywordSet is a set of matched vocabulary terms.
type KeywordSet map[string]struct{}

// Keywords returns every term that occurs as a substring of any of texts,
// case-insensitively.
func Keywords(texts ...string) KeywordSet {
	joined := strings.ToLower(strings.Join(texts, " "))
	set := KeywordSet{}
	for _, term := range Terms {
		if strings.Contains(joined, term) {
			set[term] = struct{}{}
		}
	}
	return set
}

// Overlaps reports whether the two sets share at least one term.
func (k KeywordSet) Overlaps(other KeywordSet) bool {
	small, large := k, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for term := range small {
		if _, ok := large[term]; ok {
			return true
		}
	}
	return false
}

func (k KeywordSet) Sorted() []string {
	out := make([]string, 0, len(k))
	for term := range k {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}
