package analysis

import (
	"sort"
	"strings"
	"unicode"

	"reminder-service/internal/config"
	"reminder-service/internal/models"
)

// matcher runs keyword tables against one item's text and labels.
type matcher struct {
	text   string
	labels map[string]bool
}

func newMatcher(item *models.Item) matcher {
	labels := make(map[string]bool, len(item.Labels))
	for _, l := range item.Labels {
		labels[strings.ToLower(l)] = true
	}
	return matcher{text: normalize(item.Summary + " " + item.Description), labels: labels}
}

func textMatcher(s string) matcher {
	return matcher{text: normalize(s)}
}

// Matches reports whether any term occurs as whole words or any label is attached.
func (m matcher) Matches(t config.KeywordTable) bool {
	for _, term := range t.Terms {
		if m.hasTerm(term) {
			return true
		}
	}
	for _, l := range t.Labels {
		if m.labels[strings.ToLower(l)] {
			return true
		}
	}
	return false
}

func (m matcher) hasTerm(term string) bool {
	n := strings.TrimSpace(normalize(term))
	if n == "" {
		return false
	}
	return strings.Contains(m.text, " "+n+" ")
}

// MatchingKeys returns the sorted names of tables that match.
func (m matcher) MatchingKeys(tables map[string]config.KeywordTable) []string {
	var out []string
	for name, t := range tables {
		if m.Matches(t) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// normalize lowercases s, turns punctuation into spaces and pads it so that
// whole-word lookups can use a plain substring search.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}
