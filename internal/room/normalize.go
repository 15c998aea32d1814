package room

import (
	"encoding/json"
	"fmt"

	"roomdex/internal/protocol"
)

// Format identifies one of the two historical at-rest document shapes.
type Format int

const (
	// FormatSeparated is the current shape: interaction data lives in a
	// top-level logic map keyed by item id.
	FormatSeparated Format = iota
	// FormatLegacy embeds interaction data inside each item record as an
	// extraData JSON string.
	FormatLegacy
)

func (f Format) String() string {
	if f == FormatLegacy {
		return "legacy"
	}
	return "separated"
}

// DetectFormat sniffs the document shape. The separated shape is identified
// by the presence of a top-level logic container; anything else is legacy.
func DetectFormat(doc map[string]json.RawMessage) Format {
	if _, ok := doc["logic"]; ok {
		return FormatSeparated
	}
	return FormatLegacy
}

type normalizeFn func(doc map[string]json.RawMessage, snap *Snapshot) []protocol.Issue

var normalizers = map[Format]normalizeFn{
	FormatSeparated: normalizeSeparated,
	FormatLegacy:    normalizeLegacy,
}

// Normalize converts a raw snapshot document in either historical shape into
// the canonical form. Pure with respect to its input. Items whose interaction
// data does not decode are all collected into one schema error rather than
// aborting on the first.
func Normalize(raw []byte) (*Snapshot, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, protocol.NewIssueError("normalize",
			protocol.NewIssue(protocol.ErrSchema, "snapshot is not a JSON object: %v", err))
	}

	snap := NewSnapshot()
	var issues []protocol.Issue

	if err := decodeSection(doc, "roomItems", &snap.Items); err != nil {
		issues = append(issues, protocol.NewIssue(protocol.ErrSchema, "roomItems: %v", err))
	}
	if err := decodeSection(doc, "quests", &snap.Quests); err != nil {
		issues = append(issues, protocol.NewIssue(protocol.ErrSchema, "quests: %v", err))
	}
	if err := decodeSection(doc, "settings", &snap.Settings); err != nil {
		issues = append(issues, protocol.NewIssue(protocol.ErrSchema, "settings: %v", err))
	}
	if raw, ok := doc["roomTasks"]; ok {
		if err := json.Unmarshal(raw, &snap.RoomTasks); err != nil {
			issues = append(issues, protocol.NewIssue(protocol.ErrSchema, "roomTasks: %v", err))
		}
	}
	if snap.RoomTasks.Tasks == nil {
		snap.RoomTasks.Tasks = []Task{}
	}

	issues = append(issues, normalizers[DetectFormat(doc)](doc, snap)...)

	if len(issues) > 0 {
		return nil, protocol.NewIssueError("normalize", issues...)
	}
	return snap, nil
}

func decodeSection[V any](doc map[string]json.RawMessage, key string, dst *map[string]V) error {
	raw, ok := doc[key]
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// normalizeSeparated decodes the at-rest logic values, which are compact
// JSON strings of task lists.
func normalizeSeparated(doc map[string]json.RawMessage, snap *Snapshot) []protocol.Issue {
	var logic map[string]json.RawMessage
	if err := json.Unmarshal(doc["logic"], &logic); err != nil {
		return []protocol.Issue{protocol.NewIssue(protocol.ErrSchema, "logic: %v", err)}
	}
	var bad []string
	for _, id := range SortedKeys(logic) {
		entry, err := DecodeLogicValue(logic[id])
		if err != nil {
			bad = append(bad, id)
			continue
		}
		snap.Logic[id] = entry
	}
	if len(bad) > 0 {
		return []protocol.Issue{
			protocol.NewIssue(protocol.ErrSchema, "logic entries failed to decode").WithIDs(bad...),
		}
	}
	return nil
}

// normalizeLegacy lifts each item's embedded extraData string out into the
// logic map and strips it from the item record.
func normalizeLegacy(_ map[string]json.RawMessage, snap *Snapshot) []protocol.Issue {
	var bad []string
	for _, id := range SortedKeys(snap.Items) {
		it := snap.Items[id]
		raw, ok := it["extraData"]
		if !ok {
			continue
		}
		delete(it, "extraData")
		entry, err := decodeEmbedded(raw)
		if err != nil {
			bad = append(bad, id)
			continue
		}
		if entry != nil {
			snap.Logic[id] = entry
		}
	}
	if len(bad) > 0 {
		return []protocol.Issue{
			protocol.NewIssue(protocol.ErrSchema, "embedded interaction data failed to decode").WithIDs(bad...),
		}
	}
	return nil
}

func decodeEmbedded(v any) (*LogicEntry, error) {
	switch ed := v.(type) {
	case string:
		if ed == "" {
			return nil, nil
		}
		return DecodeLogicValue(rawMessage(ed))
	case map[string]any:
		return DecodeLogicValue(rawMessage(ed))
	default:
		return nil, fmt.Errorf("extraData must be a string, got %T", v)
	}
}

// EmbedLogic re-embeds decoded logic entries into item records as compact
// extraData strings, reproducing the legacy shape. Logic entries keyed by a
// nonexistent item id are dropped, matching the platform's own behavior.
func EmbedLogic(snap *Snapshot) (map[string]Item, error) {
	items := make(map[string]Item, len(snap.Items))
	for id, it := range snap.Items {
		items[id] = it.Clone()
	}
	for id, entry := range snap.Logic {
		it, ok := items[id]
		if !ok {
			continue
		}
		s, err := EncodeLogicValue(entry)
		if err != nil {
			return nil, fmt.Errorf("encode logic %s: %w", id, err)
		}
		it["extraData"] = s
	}
	return items, nil
}
