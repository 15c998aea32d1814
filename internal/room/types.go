// Package room holds the canonical in-memory form of a room snapshot and the
// encode/decode boundary to its at-rest JSON shapes.
package room

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

type Vec3 struct {
	X float64
	Y float64
	Z float64
}

func (v Vec3) DistanceTo(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Item is one placed object. The platform attaches arbitrary type-specific
// fields to items, and merge semantics are field-level, so items stay
// semi-structured with typed accessors over the fields this subsystem reads.
type Item map[string]any

func (it Item) Prefab() string { return it.stringField("prefabName") }

// Text is the display/label content ("t" on WorldText, "name" elsewhere).
func (it Item) Text() string { return it.stringField("t") }

func (it Item) stringField(key string) string {
	if s, ok := it[key].(string); ok {
		return s
	}
	return ""
}

// Parent returns the parent item id, or "" when the item is unparented.
// The platform writes "0" or an empty string for "none".
func (it Item) Parent() string {
	v, ok := it["parentItemID"]
	if !ok {
		return ""
	}
	var p string
	switch t := v.(type) {
	case string:
		p = t
	case float64:
		p = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
	if p == "0" || p == "" {
		return ""
	}
	return p
}

// Pos returns the item position. Every axis is required; a missing axis is
// reported so the caller can abort naming the item.
func (it Item) Pos() (Vec3, error) {
	raw, ok := it["pos"].(map[string]any)
	if !ok {
		return Vec3{}, fmt.Errorf("missing pos")
	}
	var v Vec3
	for _, axis := range [3]struct {
		key string
		dst *float64
	}{{"x", &v.X}, {"y", &v.Y}, {"z", &v.Z}} {
		f, ok := raw[axis.key].(float64)
		if !ok {
			return Vec3{}, fmt.Errorf("missing pos.%s", axis.key)
		}
		*axis.dst = f
	}
	return v, nil
}

func (it Item) Clone() Item {
	return Item(deepCopyMap(it))
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// Quest is one record of a quest pair. Pairs share EntryId but carry
// distinct ids; the inProgress record's id is what tasks reference.
type Quest map[string]any

func (q Quest) ID() string      { return questString(q, "id") }
func (q Quest) EntryID() string { return questString(q, "EntryId") }
func (q Quest) Name() string    { return questString(q, "Name") }
func (q Quest) Status() string  { return questString(q, "Status") }

func questString(q Quest, key string) string {
	if s, ok := q[key].(string); ok {
		return s
	}
	return ""
}

func (q Quest) Clone() Quest {
	return Quest(deepCopyMap(q))
}

// RoomTasks is the room-level task container. The platform's load contract
// requires it to be present with an explicit empty Tasks list; an empty
// object is ambiguous and rejected on load.
type RoomTasks struct {
	Tasks []Task `json:"Tasks"`
}

// Snapshot is the canonical, fully decoded form every component operates on.
type Snapshot struct {
	Items     map[string]Item
	Logic     map[string]*LogicEntry
	Quests    map[string]Quest
	Settings  map[string]any
	RoomTasks RoomTasks
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Items:     map[string]Item{},
		Logic:     map[string]*LogicEntry{},
		Quests:    map[string]Quest{},
		Settings:  map[string]any{},
		RoomTasks: RoomTasks{Tasks: []Task{}},
	}
}

// ChildIndex builds the reverse parent index, computed once per operation.
func (s *Snapshot) ChildIndex() map[string][]string {
	children := map[string][]string{}
	for id, it := range s.Items {
		if p := it.Parent(); p != "" {
			children[p] = append(children[p], id)
		}
	}
	for p := range children {
		SortIDs(children[p])
	}
	return children
}

// SortIDs orders ids numerically where possible, lexically otherwise, with
// numeric ids first. Every listing in the toolkit uses this order.
func SortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, aerr := strconv.Atoi(ids[i])
		b, berr := strconv.Atoi(ids[j])
		switch {
		case aerr == nil && berr == nil:
			return a < b
		case aerr == nil:
			return true
		case berr == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
}

// SortedKeys returns map keys in SortIDs order.
func SortedKeys[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}

func rawMessage(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
