// Package catalog turns the upstream item list into priceable variants and
// makes them searchable.
package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Identity names one priceable catalog entry. VariantTagID is 0 for the
// item's base form, marketplace tag ids are always positive.
type Identity struct {
	BaseItemID   int64 `json:"goods_id"`
	VariantTagID int64 `json:"tag_id,omitempty"`
}

func (i Identity) IsBase() bool {
	return i.VariantTagID == 0
}

func (i Identity) String() string {
	if i.IsBase() {
		return strconv.FormatInt(i.BaseItemID, 10) + "_base"
	}
	return strconv.FormatInt(i.BaseItemID, 10) + "_" + strconv.FormatInt(i.VariantTagID, 10)
}

// ParseIdentity parses the form produced by Identity.String.
func ParseIdentity(text string) (Identity, error) {
	base, tag, found := strings.Cut(strings.TrimSpace(text), "_")
	if !found {
		return Identity{}, fmt.Errorf("invalid identity %q, expected <goods id>_<tag id|base>", text)
	}
	baseID, err := strconv.ParseInt(base, 10, 64)
	if err != nil || baseID <= 0 {
		return Identity{}, fmt.Errorf("invalid goods id in %q", text)
	}
	if tag == "base" {
		return Identity{BaseItemID: baseID}, nil
	}
	tagID, err := strconv.ParseInt(tag, 10, 64)
	if err != nil || tagID <= 0 {
		return Identity{}, fmt.Errorf("invalid tag id in %q", text)
	}
	return Identity{BaseItemID: baseID, VariantTagID: tagID}, nil
}

type Variant struct {
	DisplayName string   `json:"name"`
	Identity    Identity `json:"identity"`
	SearchKey   string   `json:"search_key"`
}

var (
	parentheticalRegex = regexp.MustCompile(`\(([^)]+)\)`)
	whitespaceRegex    = regexp.MustCompile(`\s+`)
)

// SearchKey is the form of a display name the search index matches against.
// SearchKey(SearchKey(x)) == SearchKey(x).
func SearchKey(name string) string {
	name = strings.ReplaceAll(name, "★", "")
	name = strings.ReplaceAll(name, "StatTrak™", "ST")
	name = strings.ReplaceAll(name, "|", "")
	// nested parentheses need more than one pass
	for parentheticalRegex.MatchString(name) {
		name = parentheticalRegex.ReplaceAllString(name, " $1")
	}
	name = whitespaceRegex.ReplaceAllString(name, " ")
	return strings.ToLower(strings.TrimSpace(name))
}
