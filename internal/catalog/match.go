package catalog

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Match is one ranked lookup result.
type Match struct {
	Entity Entity  `json:"entity"`
	Score  float64 `json:"score"` // 1.0 exact, descending
	Exact  bool    `json:"exact"`
}

const (
	exactScore = 1.0
	// Prefix matches rank above any fuzzy match but below exact.
	prefixCeiling = 0.9
)

// rank scores the snapshot's entities of one kind against a normalized
// query: exact normalized-name match, then prefix match, then edit-distance
// similarity above the threshold. Results are sorted by score descending
// with name as a deterministic tiebreaker, capped at limit.
func rank(entities []Entity, query string, threshold float64, limit int) []Match {
	if query == "" || len(entities) == 0 {
		return nil
	}

	var matches []Match
	for _, e := range entities {
		switch {
		case e.NormalizedName == query:
			matches = append(matches, Match{Entity: e, Score: exactScore, Exact: true})
		case strings.HasPrefix(e.NormalizedName, query):
			// Longer queries cover more of the name and score higher.
			coverage := float64(len(query)) / float64(len(e.NormalizedName))
			matches = append(matches, Match{Entity: e, Score: prefixCeiling * coverage})
		default:
			if s := similarity(query, e.NormalizedName); s >= threshold {
				matches = append(matches, Match{Entity: e, Score: s})
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Entity.NormalizedName < matches[j].Entity.NormalizedName
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// similarity maps Levenshtein distance to a 0..1 score relative to the
// longer string, so "sting" vs "string" scores 5/6.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}
