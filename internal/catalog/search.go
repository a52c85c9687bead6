package catalog

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	DefaultSearchLimit = 10
	minQueryLength     = 2
	// matches scoring below this are dropped
	minSimilarity = 0.88
)

type Match struct {
	Variant Variant
	Score   float64
}

// Searcher maps a free-text query to ranked catalog candidates.
//
// note: fault injection point
type Searcher interface {
	Search(query string, limit int) []Match
}

// FuzzySearcher ranks variants by how well the query's search key matches
// theirs. Queries whose every word appears in a variant's search key always
// rank above plain Jaro-Winkler similarity.
type FuzzySearcher struct {
	variants []Variant
}

func NewFuzzySearcher(variants []Variant) *FuzzySearcher {
	return &FuzzySearcher{variants: variants}
}

func score(query string, tokens []string, variant Variant) float64 {
	key := variant.SearchKey
	containsAll := true
	for _, token := range tokens {
		if !strings.Contains(key, token) {
			containsAll = false
			break
		}
	}
	if containsAll {
		// tighter matches (shorter names) first
		return 1 + float64(len(query))/float64(len(key))
	}

	similarity := matchr.JaroWinkler(query, key, false)
	displaySimilarity := matchr.JaroWinkler(query, strings.ToLower(variant.DisplayName), false)
	return max(similarity, displaySimilarity)
}

func (s *FuzzySearcher) Search(query string, limit int) []Match {
	key := SearchKey(query)
	if utf8.RuneCountInString(key) < minQueryLength {
		return nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	tokens := strings.Fields(key)

	var matches []Match
	for _, variant := range s.variants {
		if variant.SearchKey == "" {
			continue
		}
		value := score(key, tokens, variant)
		if value < minSimilarity {
			continue
		}
		matches = append(matches, Match{Variant: variant, Score: value})
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Variant.DisplayName, b.Variant.DisplayName)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
