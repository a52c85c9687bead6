package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testVariants() []Variant {
	names := []struct {
		name string
		id   int64
	}{
		{"AK-47 | Redline (Field-Tested)", 1},
		{"AK-47 | Redline (Minimal Wear)", 2},
		{"AWP | Asiimov (Field-Tested)", 3},
		{"★ StatTrak™ M9 Bayonet | Doppler (Phase 2) (Factory New)", 4},
		{"Sticker | Crown (Foil)", 5},
	}
	out := make([]Variant, 0, len(names))
	for _, n := range names {
		out = append(out, Variant{
			DisplayName: n.name,
			Identity:    Identity{BaseItemID: n.id},
			SearchKey:   SearchKey(n.name),
		})
	}
	return out
}

func TestFuzzySearch(t *testing.T) {
	searcher := NewFuzzySearcher(testVariants())

	matches := searcher.Search("Redline AK", 0)
	require.GreaterOrEqual(t, len(matches), 2)
	require.Equal(t, "AK-47 | Redline (Field-Tested)", matches[0].Variant.DisplayName)
	require.Equal(t, "AK-47 | Redline (Minimal Wear)", matches[1].Variant.DisplayName)

	matches = searcher.Search("st m9 doppler phase 2", 0)
	require.NotEmpty(t, matches)
	require.EqualValues(t, 4, matches[0].Variant.Identity.BaseItemID)

	matches = searcher.Search("Redline", 1)
	require.Len(t, matches, 1)
}

func TestFuzzySearchRejects(t *testing.T) {
	searcher := NewFuzzySearcher(testVariants())

	require.Empty(t, searcher.Search("a", 10))
	require.Empty(t, searcher.Search("  ★ ", 10))
	require.Empty(t, searcher.Search("zzzz qqqq", 10))
	require.Empty(t, NewFuzzySearcher(nil).Search("redline", 10))
}
