package news

import (
	"sort"
	"strings"
	"time"
)

// Source is one configured feed.
type Source struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	URL    string `yaml:"url" json:"url"`
	RSSURL string `yaml:"rss_url" json:"rss_url"`

	// Aggregator feeds syndicate third-party publishers and carry the
	// publisher as a " - Publisher" title suffix.
	Aggregator bool `yaml:"aggregator,omitempty" json:"aggregator,omitempty"`
}

// DisplayName returns the name shown for items of this source.
func (s Source) DisplayName() string {
	switch {
	case strings.TrimSpace(s.Name) != "":
		return strings.TrimSpace(s.Name)
	case strings.TrimSpace(s.ID) != "":
		return strings.TrimSpace(s.ID)
	default:
		return "Unknown"
	}
}

// Item is a normalized news entry. Link and Source are never empty.
type Item struct {
	Title   string    `json:"title"`
	Link    string    `json:"link"`
	PubDate time.Time `json:"pubDate"`
	Content string    `json:"content,omitempty"`
	Source  string    `json:"source"`
	GUID    string    `json:"guid,omitempty"`
}

// NormalizeTitle lower-cases s and collapses runs of whitespace to one space.
func NormalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// DedupKey is the identity used to detect reposts: the leading prefixRunes
// runes of the normalized title, then the source.
func DedupKey(item Item, prefixRunes int) string {
	title := []rune(NormalizeTitle(item.Title))
	if prefixRunes > 0 && len(title) > prefixRunes {
		title = title[:prefixRunes]
	}
	return string(title) + "|" + item.Source
}

// Dedup drops items whose key was already seen. The first occurrence wins and
// survivor order is preserved.
func Dedup(items []Item, prefixRunes int) []Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))

	for _, item := range items {
		key := DedupKey(item, prefixRunes)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Signature renders items in canonical order (by title, then source) as one
// "title+source" line each. Permutations of the same batch share a signature.
// order[k] is the batch index of the k-th canonical item.
func Signature(items []Item) (sig string, order []int) {
	order = make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := items[order[a]], items[order[b]]
		if ia.Title != ib.Title {
			return ia.Title < ib.Title
		}
		return ia.Source < ib.Source
	})

	lines := make([]string, len(order))
	for k, idx := range order {
		lines[k] = items[idx].Title + items[idx].Source
	}
	return strings.Join(lines, "\n"), order
}
