// Package index derives the compact room_index.md summary from a canonical
// snapshot. The output is deterministic: the same snapshot always yields the
// same bytes, so successive indexes can be diffed.
package index

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"roomdex/internal/protocol"
	"roomdex/internal/room"
	"roomdex/internal/tuning"
)

// Build renders the full multi-section index. It aborts with the offending
// item ids if any item is missing a position axis; a partial index would
// silently mislead the consumer.
func Build(snap *room.Snapshot, roomID string, pol tuning.Policy) (string, error) {
	positions, err := collectPositions(snap)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Room Index: %s\n\n", roomID)
	writeOverview(&b, snap, positions)
	writeInteractive(&b, snap, positions, pol)
	writeSpatial(&b, snap, positions, pol)
	writeHierarchy(&b, snap, positions)
	writeQuests(&b, snap, pol)
	return b.String(), nil
}

func collectPositions(snap *room.Snapshot) (map[string]room.Vec3, error) {
	positions := make(map[string]room.Vec3, len(snap.Items))
	var bad []string
	for _, id := range room.SortedKeys(snap.Items) {
		v, err := snap.Items[id].Pos()
		if err != nil {
			bad = append(bad, id)
			continue
		}
		positions[id] = v
	}
	if len(bad) > 0 {
		return nil, protocol.NewIssueError("index",
			protocol.NewIssue(protocol.ErrSchema, "item position is incomplete").WithIDs(bad...))
	}
	return positions, nil
}

func fmtPos(v room.Vec3) string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", v.X, v.Y, v.Z)
}

// ---------------------------------------------------------------------------
// Overview

func writeOverview(b *strings.Builder, snap *room.Snapshot, positions map[string]room.Vec3) {
	b.WriteString("## Overview\n")

	idRange := "none"
	if len(snap.Items) > 0 {
		ids := room.SortedKeys(snap.Items)
		idRange = fmt.Sprintf("%s-%s", ids[0], ids[len(ids)-1])
	}
	fmt.Fprintf(b, "- Items: %d (ID range: %s)\n", len(snap.Items), idRange)
	fmt.Fprintf(b, "- Quests: %d\n", uniqueQuestCount(snap))

	fmt.Fprintf(b, "- Variables: %s\n", describeVariables(snap.Settings))
	fmt.Fprintf(b, "- Spawn: %s\n", describeSpawn(snap.Settings))

	if len(positions) > 0 {
		lo := room.Vec3{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
		hi := room.Vec3{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
		for _, v := range positions {
			lo.X, lo.Y, lo.Z = math.Min(lo.X, v.X), math.Min(lo.Y, v.Y), math.Min(lo.Z, v.Z)
			hi.X, hi.Y, hi.Z = math.Max(hi.X, v.X), math.Max(hi.Y, v.Y), math.Max(hi.Z, v.Z)
		}
		fmt.Fprintf(b, "- Bounding box: %s to %s\n", fmtPos(lo), fmtPos(hi))
	} else {
		fmt.Fprintf(b, "- Bounding box: %s to %s\n", fmtPos(room.Vec3{}), fmtPos(room.Vec3{}))
	}
	b.WriteString("\n")

	b.WriteString("## Item Counts by Type\n")
	for _, tc := range typeCounts(snap.Items, func(p string) string {
		if p == "" {
			return "Unknown"
		}
		return p
	}) {
		fmt.Fprintf(b, "  %s: %d\n", tc.name, tc.count)
	}
	b.WriteString("\n")
}

// uniqueQuestCount collapses pair records by EntryId, falling back to Name
// for records without one.
func uniqueQuestCount(snap *room.Snapshot) int {
	groups := map[string]bool{}
	for _, qid := range room.SortedKeys(snap.Quests) {
		q := snap.Quests[qid]
		key := q.EntryID()
		if key == "" {
			key = "name:" + q.Name()
		}
		groups[key] = true
	}
	return len(groups)
}

func describeVariables(settings map[string]any) string {
	vars, _ := settings["Variables"].([]any)
	if len(vars) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(vars))
	for _, v := range vars {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["Name"].(string)
		vtype, _ := m["Type"].(string)
		scope, _ := m["Scope"].(string)
		if name == "" {
			name = "?"
		}
		if vtype == "" {
			vtype = "?"
		}
		if scope == "" {
			scope = "?"
		}
		parts = append(parts, fmt.Sprintf("%s (%s, %s)", name, vtype, scope))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func describeSpawn(settings map[string]any) string {
	spawn, ok := settings["spawnPosition"].(map[string]any)
	if !ok {
		return "not set"
	}
	get := func(k string) float64 {
		f, _ := spawn[k].(float64)
		return f
	}
	return fmtPos(room.Vec3{X: get("x"), Y: get("y"), Z: get("z")})
}

type typeCount struct {
	name  string
	count int
}

func typeCounts(items map[string]room.Item, display func(string) string) []typeCount {
	counts := map[string]int{}
	for _, it := range items {
		counts[display(it.Prefab())]++
	}
	out := make([]typeCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, typeCount{name, count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	return out
}

// ---------------------------------------------------------------------------
// Interactive Items

func writeInteractive(b *strings.Builder, snap *room.Snapshot, positions map[string]room.Vec3, pol tuning.Policy) {
	b.WriteString("## Interactive Items\n")

	var interactive []string
	for _, id := range room.SortedKeys(snap.Items) {
		if entry := snap.Logic[id]; entry != nil && len(entry.Tasks) > 0 {
			interactive = append(interactive, id)
		}
	}
	if len(interactive) == 0 {
		b.WriteString("No interactive items found.\n\n")
		return
	}

	// Large rooms only list items a player can trigger directly; quest-driven
	// rows are reachable through the query tool instead.
	if len(snap.Items) > pol.IndexDetailItemLimit {
		var player, questDriven []string
		for _, id := range interactive {
			if hasPlayerTrigger(snap.Logic[id]) {
				player = append(player, id)
			} else {
				questDriven = append(questDriven, id)
			}
		}
		if len(questDriven) > 0 {
			fmt.Fprintf(b, "_%d interactive items total. Showing %d player-triggered items. %d quest-driven items omitted (use the query tool for details)._\n\n",
				len(interactive), len(player), len(questDriven))
		}
		interactive = player
	}

	b.WriteString("| ID | Type | Position | Triggers | # Effects | Summary |\n")
	b.WriteString("|----|------|----------|----------|-----------|--------|\n")
	for _, id := range interactive {
		it := snap.Items[id]
		entry := snap.Logic[id]

		var triggers []string
		var effects []string
		for i := range entry.Tasks {
			t := &entry.Tasks[i]
			triggers = append(triggers, describeTrigger(t))
			if ep := t.EffectorPayload(); ep != nil {
				effects = append(effects, ep.Type)
			}
		}

		seen := map[string]bool{}
		var summary []string
		for _, e := range effects {
			short := room.ShortEffect(e)
			if !seen[short] {
				seen[short] = true
				summary = append(summary, short)
			}
		}

		fmt.Fprintf(b, "| %s | %s | %s | %s | %d | %s |\n",
			id, room.ShortPrefab(it.Prefab()), fmtPos(positions[id]),
			strings.Join(triggers, ", "), len(effects), strings.Join(summary, ", "))
	}
	b.WriteString("\n")
}

func hasPlayerTrigger(entry *room.LogicEntry) bool {
	for i := range entry.Tasks {
		if tr := entry.Tasks[i].Trigger; tr != nil && room.IsPlayerTrigger(tr.Type) {
			return true
		}
	}
	return false
}

// describeTrigger renders what fires a task: the trigger kind for direct and
// quest-advancing tasks, or the bound quest's display name for quest-state
// effects.
func describeTrigger(t *room.Task) string {
	if t.Trigger != nil {
		return room.ShortTrigger(t.Trigger.Type)
	}
	if t.Kind() == room.TaskQuestEffect {
		if t.Name != "" {
			_, display := room.SplitQuestName(t.Name)
			return fmt.Sprintf("Quest(%s)", display)
		}
		return "QuestState"
	}
	return "Unknown"
}

// ---------------------------------------------------------------------------
// Spatial Map

func writeSpatial(b *strings.Builder, snap *room.Snapshot, positions map[string]room.Vec3, pol tuning.Policy) {
	b.WriteString("## Spatial Map\n")
	if len(snap.Items) == 0 {
		b.WriteString("No items to map.\n\n")
		return
	}

	type cellKey struct{ gx, gz int }
	cells := map[cellKey][]string{}
	for _, id := range room.SortedKeys(snap.Items) {
		v := positions[id]
		k := cellKey{
			gx: int(math.Floor(v.X/pol.GridCellSize)) * int(pol.GridCellSize),
			gz: int(math.Floor(v.Z/pol.GridCellSize)) * int(pol.GridCellSize),
		}
		cells[k] = append(cells[k], id)
	}

	// Row-major traversal over the grid.
	keys := make([]cellKey, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].gz != keys[j].gz {
			return keys[i].gz < keys[j].gz
		}
		return keys[i].gx < keys[j].gx
	})

	b.WriteString("| Zone | Center | Items | Breakdown |\n")
	b.WriteString("|------|--------|-------|-----------|\n")
	for _, k := range keys {
		ids := cells[k]
		var sumX, sumZ float64
		members := map[string]room.Item{}
		for _, id := range ids {
			v := positions[id]
			sumX += v.X
			sumZ += v.Z
			members[id] = snap.Items[id]
		}
		center := fmt.Sprintf("(%.1f, %.1f)", sumX/float64(len(ids)), sumZ/float64(len(ids)))

		tcs := typeCounts(members, func(p string) string {
			if p == "" {
				return "Unknown"
			}
			return room.ShortPrefab(p)
		})
		var parts []string
		shown := 0
		for i, tc := range tcs {
			if i >= pol.CellBreakdownTypes {
				break
			}
			parts = append(parts, fmt.Sprintf("%d %s", tc.count, tc.name))
			shown += tc.count
		}
		if rest := len(ids) - shown; rest > 0 {
			parts = append(parts, fmt.Sprintf("%d other", rest))
		}

		fmt.Fprintf(b, "| %s | %s | %d | %s |\n",
			zoneName(k.gx, k.gz), center, len(ids), strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

// zoneName names a grid cell by compass direction from the origin.
func zoneName(gx, gz int) string {
	var ns, ew string
	if gz < 0 {
		ns = "S"
	} else if gz > 0 {
		ns = "N"
	}
	if gx < 0 {
		ew = "W"
	} else if gx > 0 {
		ew = "E"
	}
	dir := ns + ew
	if dir == "" {
		dir = "Center"
	}
	return fmt.Sprintf("%s (%d, %d)", dir, gx, gz)
}

// ---------------------------------------------------------------------------
// Parent-Child Groups

func writeHierarchy(b *strings.Builder, snap *room.Snapshot, positions map[string]room.Vec3) {
	b.WriteString("## Parent-Child Groups\n")

	children := snap.ChildIndex()
	if len(children) == 0 {
		b.WriteString("No parent-child relationships found.\n\n")
		return
	}

	b.WriteString("| Parent ID | Type | Position | Children |\n")
	b.WriteString("|-----------|------|----------|----------|\n")
	for _, pid := range room.SortedKeys(children) {
		ptype := "?"
		ppos := "(0.0, 0.0, 0.0)"
		if parent, ok := snap.Items[pid]; ok {
			if p := parent.Prefab(); p != "" {
				ptype = room.ShortPrefab(p)
			}
			ppos = fmtPos(positions[pid])
		}
		var parts []string
		for _, cid := range children[pid] {
			ctype := "?"
			if p := snap.Items[cid].Prefab(); p != "" {
				ctype = room.ShortPrefab(p)
			}
			parts = append(parts, fmt.Sprintf("%s (%s)", cid, ctype))
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", pid, ptype, ppos, strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

// ---------------------------------------------------------------------------
// Quests

type questRow struct {
	num      int
	display  string
	statuses []string
	ids      []string
}

func writeQuests(b *strings.Builder, snap *room.Snapshot, pol tuning.Policy) {
	b.WriteString("## Quests\n")
	if len(snap.Quests) == 0 {
		b.WriteString("No quests defined.\n")
		return
	}

	byName := map[string]*questRow{}
	for _, qid := range room.SortedKeys(snap.Quests) {
		q := snap.Quests[qid]
		name := q.Name()
		if name == "" {
			name = "unnamed"
		}
		row, ok := byName[name]
		if !ok {
			num, display := room.SplitQuestName(name)
			row = &questRow{num: num, display: display}
			byName[name] = row
		}
		row.statuses = append(row.statuses, q.Status())
		row.ids = append(row.ids, qid)
	}

	rows := make([]*questRow, 0, len(byName))
	for _, row := range byName {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].num != rows[j].num {
			return rows[i].num < rows[j].num
		}
		return rows[i].display < rows[j].display
	})

	if len(rows) > pol.QuestRowLimit {
		writeQuestGroups(b, rows, len(snap.Quests))
		return
	}

	b.WriteString("| # | Name | States | Transitions |\n")
	b.WriteString("|---|------|--------|-------------|\n")
	for _, row := range rows {
		states := uniqueStatuses(row.statuses)
		trans := questTransitions(snap, row.ids)
		fmt.Fprintf(b, "| %d | %s | %s | %s |\n", row.num, row.display, states, trans)
	}
	b.WriteString("\n")
}

func uniqueStatuses(statuses []string) string {
	seen := map[string]bool{}
	var uniq []string
	for _, s := range statuses {
		if s != "" && !seen[s] {
			seen[s] = true
			uniq = append(uniq, s)
		}
	}
	if len(uniq) == 0 {
		return "none"
	}
	sort.Slice(uniq, func(i, j int) bool {
		return room.QuestStatusRank(uniq[i]) < room.QuestStatusRank(uniq[j])
	})
	return strings.Join(uniq, " -> ")
}

// questTransitions lists what advances a quest, scanning logic tasks bound
// to any of the quest pair's record ids. Capped at three entries.
func questTransitions(snap *room.Snapshot, questIDs []string) string {
	bound := map[string]bool{}
	for _, qid := range questIDs {
		bound[qid] = true
	}
	var parts []string
	for _, itemID := range room.SortedKeys(snap.Logic) {
		entry := snap.Logic[itemID]
		for i := range entry.Tasks {
			t := &entry.Tasks[i]
			if t.Kind() != room.TaskQuestTrigger || !bound[t.QuestID] {
				continue
			}
			name := room.TransitionName(t.TargetState)
			if name == "" {
				name = fmt.Sprintf("state %d", t.TargetState)
			}
			var trig string
			if t.Trigger != nil {
				trig = room.ShortTrigger(t.Trigger.Type)
			} else {
				trig = "?"
			}
			parts = append(parts, fmt.Sprintf("%s(%s) -> %s", trig, itemID, name))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	if len(parts) > 3 {
		return strings.Join(parts[:3], ", ") + ", ..."
	}
	return strings.Join(parts, ", ")
}

func writeQuestGroups(b *strings.Builder, rows []*questRow, totalEntries int) {
	fmt.Fprintf(b, "_%d unique quests (%d total entries). Showing grouped summary._\n\n", len(rows), totalEntries)

	type group struct {
		name     string
		count    int
		examples []string
	}
	byPrefix := map[string]*group{}
	var order []string
	for _, row := range rows {
		key, _, _ := strings.Cut(row.display, "_")
		g, ok := byPrefix[key]
		if !ok {
			g = &group{name: key}
			byPrefix[key] = g
			order = append(order, key)
		}
		g.count++
		if len(g.examples) < 3 {
			g.examples = append(g.examples, row.display)
		}
	}

	groups := make([]*group, 0, len(byPrefix))
	for _, key := range order {
		groups = append(groups, byPrefix[key])
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].name < groups[j].name
	})

	b.WriteString("| Group | Count | Example Names |\n")
	b.WriteString("|-------|-------|---------------|\n")
	for _, g := range groups {
		examples := strings.Join(g.examples, ", ")
		if g.count > len(g.examples) {
			examples += ", ..."
		}
		fmt.Fprintf(b, "| %s | %d | %s |\n", g.name, g.count, examples)
	}
	b.WriteString("\n")
}
