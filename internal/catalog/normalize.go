package catalog

import (
	"bytes"
	"encoding/json"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

const blueGemGroup = "Blue Gem"

// RawItem is one record of the upstream item list, keyed by market hash name.
type RawItem struct {
	GoodsID           json.RawMessage            `json:"buff163_goods_id"`
	PhaseIDs          map[string]json.RawMessage `json:"buff163_phase_ids"`
	PaintseedGroupIDs map[string]json.RawMessage `json:"buff163_paintseed_group_ids"`
}

// parseID accepts a positive integer given either as a json number or a json string.
func parseID(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	text := string(raw)
	if raw[0] == '"' {
		err := json.Unmarshal(raw, &text)
		if err != nil {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

var wearRegex = regexp.MustCompile(`\(([^)]+)\)$`)

// splitWear separates a trailing parenthetical (the wear condition) from the name.
// The returned wear suffix is either empty or " (<wear>)".
func splitWear(name string) (base, wear string) {
	loc := wearRegex.FindStringSubmatchIndex(name)
	if loc == nil {
		return name, ""
	}
	return strings.TrimSpace(name[:loc[0]]), " (" + name[loc[2]:loc[3]] + ")"
}

func phaseDisplayName(base, phase string) string {
	if strings.Contains(base, "Doppler") && !strings.Contains(base, phase) {
		// also covers "Gamma Doppler"
		return strings.Replace(base, "Doppler", "Doppler ("+phase+")", 1)
	}
	if !strings.Contains(strings.ToLower(base), strings.ToLower(phase)) {
		return base + " (" + phase + ")"
	}
	return base
}

func blueGemDisplayName(base string) string {
	if strings.Contains(base, "Case Hardened") && !strings.Contains(base, blueGemGroup) {
		return strings.Replace(base, "Case Hardened", "Case Hardened ("+blueGemGroup+")", 1)
	}
	if !strings.Contains(strings.ToLower(base), "blue gem") {
		return base + " (" + blueGemGroup + ")"
	}
	return base
}

// Normalize expands every raw record into its priceable variants.
//
// Records without a usable goods id are dropped. A record declaring phases
// yields one variant per phase, a record declaring the Blue Gem pattern group
// yields one more, a record declaring neither yields its base form. The first
// variant of an identity wins. Records are visited in name order and phases
// in phase name order so the output is deterministic.
//
// An empty result means the load failed, it never means the catalog is empty.
func Normalize(raw map[string]RawItem) []Variant {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	slices.Sort(names)

	var out []Variant
	seen := make(map[Identity]struct{})
	emit := func(display string, id Identity) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, Variant{
			DisplayName: display,
			Identity:    id,
			SearchKey:   SearchKey(display),
		})
	}

	for _, name := range names {
		record := raw[name]
		goodsID, ok := parseID(record.GoodsID)
		if !ok {
			continue
		}
		base, wear := splitWear(name)
		declaresVariants := false

		if record.PhaseIDs != nil {
			declaresVariants = true
			phases := make([]string, 0, len(record.PhaseIDs))
			for phase := range record.PhaseIDs {
				phases = append(phases, phase)
			}
			slices.Sort(phases)

			for _, phase := range phases {
				tagID, ok := parseID(record.PhaseIDs[phase])
				if !ok {
					continue
				}
				emit(phaseDisplayName(base, phase)+wear, Identity{BaseItemID: goodsID, VariantTagID: tagID})
			}
		}

		if rawTag, ok := record.PaintseedGroupIDs[blueGemGroup]; ok && len(rawTag) > 0 && !bytes.Equal(rawTag, []byte("null")) {
			declaresVariants = true
			tagID, ok := parseID(rawTag)
			if ok {
				emit(blueGemDisplayName(base)+wear, Identity{BaseItemID: goodsID, VariantTagID: tagID})
			}
		}

		if !declaresVariants {
			emit(name, Identity{BaseItemID: goodsID})
		}
	}
	return out
}
