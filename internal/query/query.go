// Package query answers composable filtered lookups over a canonical
// snapshot. Filters combine with AND semantics; results come back in
// ascending id order with a cardinality advisory when the match count
// exceeds the policy threshold.
package query

import (
	"fmt"
	"strings"

	"roomdex/internal/protocol"
	"roomdex/internal/room"
	"roomdex/internal/tuning"
)

// Filters is the predicate set. Zero-valued fields do not filter.
type Filters struct {
	IDs         []string   `json:"ids,omitempty"`
	Types       []string   `json:"types,omitempty"`
	Center      *room.Vec3 `json:"center,omitempty"`
	Radius      *float64   `json:"radius,omitempty"`
	HasTriggers bool       `json:"has_triggers,omitempty"`
	HasEffects  bool       `json:"has_effects,omitempty"`
	Quest       string     `json:"quest,omitempty"`
	Parent      string     `json:"parent,omitempty"`
	Search      string     `json:"search,omitempty"`
}

// Match is one query hit.
type Match struct {
	ID   string    `json:"id"`
	Item room.Item `json:"item"`
}

// Result is the ordered match list, with the cardinality advisory attached
// when the result is larger than the consumer's context can be expected to
// absorb.
type Result struct {
	Matches []Match         `json:"matches"`
	Warning *protocol.Issue `json:"warning,omitempty"`
}

type predicate func(id string, it room.Item) bool

// Run evaluates the filters against the snapshot. Spatial filtering needs
// center and radius together; supplying one without the other is an error.
func Run(snap *room.Snapshot, f Filters, pol tuning.Policy) (*Result, error) {
	if (f.Center != nil) != (f.Radius != nil) {
		return nil, protocol.NewIssueError("query",
			protocol.NewIssue(protocol.ErrSchema, "spatial filter needs both center and radius"))
	}

	preds, err := compile(snap, f)
	if err != nil {
		return nil, err
	}

	res := &Result{Matches: []Match{}}
	for _, id := range room.SortedKeys(snap.Items) {
		it := snap.Items[id]
		ok := true
		for _, p := range preds {
			if !p(id, it) {
				ok = false
				break
			}
		}
		if ok {
			res.Matches = append(res.Matches, Match{ID: id, Item: it})
		}
	}

	if len(res.Matches) > pol.QueryWarnLimit {
		w := protocol.NewIssue(protocol.WarnCardinality,
			"%d items matched; consider narrowing the filters", len(res.Matches))
		res.Warning = &w
	}
	return res, nil
}

func compile(snap *room.Snapshot, f Filters) ([]predicate, error) {
	var preds []predicate

	if len(f.IDs) > 0 {
		want := map[string]bool{}
		for _, id := range f.IDs {
			want[id] = true
		}
		preds = append(preds, func(id string, _ room.Item) bool { return want[id] })
	}

	if len(f.Types) > 0 {
		// Unrecognized types simply never match.
		want := map[string]bool{}
		for _, t := range f.Types {
			want[t] = true
		}
		preds = append(preds, func(_ string, it room.Item) bool { return want[it.Prefab()] })
	}

	if f.Center != nil {
		center, radius := *f.Center, *f.Radius
		if radius < 0 {
			return nil, protocol.NewIssueError("query",
				protocol.NewIssue(protocol.ErrSchema, "radius must be non-negative, got %v", radius))
		}
		preds = append(preds, func(_ string, it room.Item) bool {
			pos, err := it.Pos()
			if err != nil {
				return false
			}
			return pos.DistanceTo(center) <= radius
		})
	}

	if f.HasTriggers {
		preds = append(preds, func(id string, _ room.Item) bool {
			entry := snap.Logic[id]
			return entry != nil && len(entry.Tasks) > 0
		})
	}

	if f.HasEffects {
		preds = append(preds, func(id string, _ room.Item) bool {
			return snap.Logic[id].HasEffects()
		})
	}

	if f.Quest != "" {
		bound := questBindings(snap, f.Quest)
		needle := strings.ToLower(f.Quest)
		preds = append(preds, func(id string, _ room.Item) bool {
			entry := snap.Logic[id]
			if entry == nil {
				return false
			}
			for i := range entry.Tasks {
				t := &entry.Tasks[i]
				if t.QuestID != "" && bound[t.QuestID] {
					return true
				}
				if strings.Contains(strings.ToLower(t.Name), needle) {
					return true
				}
			}
			return false
		})
	}

	if f.Parent != "" {
		parent := f.Parent
		preds = append(preds, func(_ string, it room.Item) bool { return it.Parent() == parent })
	}

	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		preds = append(preds, func(_ string, it room.Item) bool {
			return searchItem(it, needle)
		})
	}

	return preds, nil
}

// questBindings resolves a quest name filter to the record ids tasks can be
// bound to, matched case-insensitively against the suffix part of the name.
func questBindings(snap *room.Snapshot, questName string) map[string]bool {
	needle := strings.ToLower(questName)
	bound := map[string]bool{}
	for _, qid := range room.SortedKeys(snap.Quests) {
		name := snap.Quests[qid].Name()
		_, display := room.SplitQuestName(name)
		if strings.Contains(strings.ToLower(name), needle) ||
			strings.Contains(strings.ToLower(display), needle) {
			bound[qid] = true
		}
	}
	return bound
}

// searchItem is a case-insensitive substring match over the item's display
// fields: prefabName, the "t" text content, the name field, and any other
// top-level string value.
func searchItem(it room.Item, needle string) bool {
	for _, val := range it {
		s, ok := val.(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// Describe renders the active filters for result headers and the audit log.
func Describe(f Filters) string {
	var parts []string
	if len(f.IDs) > 0 {
		parts = append(parts, "ids="+strings.Join(f.IDs, ","))
	}
	if len(f.Types) > 0 {
		parts = append(parts, "types="+strings.Join(f.Types, ","))
	}
	if f.Center != nil && f.Radius != nil {
		parts = append(parts, fmt.Sprintf("near=(%g,%g,%g) r=%g",
			f.Center.X, f.Center.Y, f.Center.Z, *f.Radius))
	}
	if f.HasTriggers {
		parts = append(parts, "has-triggers")
	}
	if f.HasEffects {
		parts = append(parts, "has-effects")
	}
	if f.Quest != "" {
		parts = append(parts, "quest="+f.Quest)
	}
	if f.Parent != "" {
		parts = append(parts, "parent="+f.Parent)
	}
	if f.Search != "" {
		parts = append(parts, "search="+f.Search)
	}
	if len(parts) == 0 {
		return "all items"
	}
	return strings.Join(parts, " ")
}
