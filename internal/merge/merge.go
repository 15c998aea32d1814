// Package merge validates and applies structured patches against a canonical
// snapshot. Validation is fail-fast and all-or-nothing: a patch that fails
// any check changes nothing.
package merge

import (
	"encoding/json"

	"roomdex/internal/protocol"
	"roomdex/internal/room"
)

// Patch is one structured change set. Every section is optional.
type Patch struct {
	AddItems       map[string]room.Item                  `json:"add_items,omitempty"`
	ModifyItems    map[string]map[string]any             `json:"modify_items,omitempty"`
	RemoveItems    []string                              `json:"remove_items,omitempty"`
	AddLogic       map[string]*room.LogicEntry           `json:"add_logic,omitempty"`
	ModifyLogic    map[string]map[string]json.RawMessage `json:"modify_logic,omitempty"`
	RemoveLogic    []string                              `json:"remove_logic,omitempty"`
	AddQuests      map[string]room.Quest                 `json:"add_quests,omitempty"`
	RemoveQuests   []string                              `json:"remove_quests,omitempty"`
	ModifySettings map[string]any                        `json:"modify_settings,omitempty"`
}

func (p *Patch) Empty() bool {
	return len(p.AddItems) == 0 && len(p.ModifyItems) == 0 && len(p.RemoveItems) == 0 &&
		len(p.AddLogic) == 0 && len(p.ModifyLogic) == 0 && len(p.RemoveLogic) == 0 &&
		len(p.AddQuests) == 0 && len(p.RemoveQuests) == 0 && len(p.ModifySettings) == 0
}

// ParsePatch gates raw patch bytes through the patch schema, then decodes.
// Unknown top-level keys are a schema error, not silently ignored.
func ParsePatch(raw []byte) (*Patch, error) {
	if err := room.CheckPatchDocument(raw); err != nil {
		return nil, err
	}
	var p Patch
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, protocol.NewIssueError("patch",
			protocol.NewIssue(protocol.ErrSchema, "decode patch: %v", err))
	}
	return &p, nil
}

// Validate runs every pre-apply check and returns the full error and warning
// sets. A dry run reports exactly what a real merge would.
func Validate(snap *room.Snapshot, p *Patch) (errors, warnings []protocol.Issue) {
	removeSet := map[string]bool{}
	for _, id := range p.RemoveItems {
		removeSet[id] = true
	}

	// Additions must not collide with existing ids.
	var collisions []string
	for _, id := range sortedPatchKeys(p.AddItems) {
		if _, ok := snap.Items[id]; ok {
			collisions = append(collisions, id)
		}
	}
	if len(collisions) > 0 {
		errors = append(errors, protocol.NewIssue(protocol.ErrCollision,
			"cannot add items that already exist").WithIDs(collisions...))
	}

	// Modification targets must exist.
	var missingMod []string
	for _, id := range sortedPatchKeys(p.ModifyItems) {
		if _, ok := snap.Items[id]; !ok {
			missingMod = append(missingMod, id)
		}
	}
	if len(missingMod) > 0 {
		errors = append(errors, protocol.NewIssue(protocol.ErrNotFound,
			"cannot modify items that do not exist").WithIDs(missingMod...))
	}

	// Removal targets must exist, and the removal set must be transitively
	// closed over children.
	children := snap.ChildIndex()
	var missingRm []string
	for _, id := range p.RemoveItems {
		if _, ok := snap.Items[id]; !ok {
			missingRm = append(missingRm, id)
			continue
		}
		var orphaned []string
		for _, child := range children[id] {
			if !removeSet[child] {
				orphaned = append(orphaned, child)
			}
		}
		if len(orphaned) > 0 {
			errors = append(errors, protocol.NewIssue(protocol.ErrReference,
				"cannot remove item %s: children would be orphaned", id).WithIDs(orphaned...))
		}
	}
	if len(missingRm) > 0 {
		room.SortIDs(missingRm)
		errors = append(errors, protocol.NewIssue(protocol.ErrNotFound,
			"cannot remove items that do not exist").WithIDs(missingRm...))
	}

	// Logic sections target items that exist after the item sections apply.
	targetExists := func(id string) bool {
		if removeSet[id] {
			return false
		}
		if _, ok := snap.Items[id]; ok {
			return true
		}
		_, ok := p.AddItems[id]
		return ok
	}
	var missingLogic []string
	for _, id := range sortedPatchKeys(p.AddLogic) {
		if !targetExists(id) {
			missingLogic = append(missingLogic, id)
		}
	}
	for _, id := range sortedPatchKeys(p.ModifyLogic) {
		if !targetExists(id) {
			missingLogic = append(missingLogic, id)
		}
	}
	for _, id := range p.RemoveLogic {
		if !targetExists(id) {
			missingLogic = append(missingLogic, id)
		}
	}
	if len(missingLogic) > 0 {
		errors = append(errors, protocol.NewIssue(protocol.ErrNotFound,
			"cannot change logic on items that do not exist").WithIDs(dedupeIDs(missingLogic)...))
	}

	// Quest additions collide on record id; removals must exist. Added quest
	// records must be keyed by a well-formed id their own id field repeats.
	var questCollisions, missingQuests, badQuestID, questIDMismatch []string
	for _, qid := range sortedPatchKeys(p.AddQuests) {
		if _, ok := snap.Quests[qid]; ok {
			questCollisions = append(questCollisions, qid)
		}
		if !room.ValidQuestID(qid) {
			badQuestID = append(badQuestID, qid)
		}
		if p.AddQuests[qid].ID() != qid {
			questIDMismatch = append(questIDMismatch, qid)
		}
	}
	if len(badQuestID) > 0 {
		errors = append(errors, protocol.NewIssue(protocol.ErrSchema,
			"quest key does not match the platform id shape").WithIDs(badQuestID...))
	}
	if len(questIDMismatch) > 0 {
		errors = append(errors, protocol.NewIssue(protocol.ErrSchema,
			"quest id field does not match its key").WithIDs(questIDMismatch...))
	}
	if len(questCollisions) > 0 {
		errors = append(errors, protocol.NewIssue(protocol.ErrCollision,
			"cannot add quests that already exist").WithIDs(questCollisions...))
	}
	for _, qid := range p.RemoveQuests {
		if _, ok := snap.Quests[qid]; !ok {
			missingQuests = append(missingQuests, qid)
		}
	}
	if len(missingQuests) > 0 {
		room.SortIDs(missingQuests)
		errors = append(errors, protocol.NewIssue(protocol.ErrNotFound,
			"cannot remove quests that do not exist").WithIDs(missingQuests...))
	}

	// Quest changes must leave every EntryId group they touch a well-formed
	// pair. Groups the patch does not touch keep whatever state they had.
	if len(p.AddQuests) > 0 || len(p.RemoveQuests) > 0 {
		projected := make(map[string]room.Quest, len(snap.Quests)+len(p.AddQuests))
		for qid, q := range snap.Quests {
			projected[qid] = q
		}
		touched := map[string]bool{}
		for _, qid := range p.RemoveQuests {
			if q, ok := snap.Quests[qid]; ok {
				if eid := q.EntryID(); eid != "" {
					touched[eid] = true
				}
			}
			delete(projected, qid)
		}
		for qid, q := range p.AddQuests {
			projected[qid] = q
			if eid := q.EntryID(); eid != "" {
				touched[eid] = true
			}
		}
		if unpaired := room.UnpairedQuests(projected, touched); len(unpaired) > 0 {
			errors = append(errors, protocol.NewIssue(protocol.ErrReference,
				"quest change leaves records without a well-formed pair").WithIDs(unpaired...))
		}
	}

	warnings = append(warnings, danglingReferenceWarnings(snap, removeSet, p)...)
	return errors, warnings
}

// danglingReferenceWarnings flags removed items that kept tasks still point
// at. The platform runtime resolves references lazily, so these proceed as
// advisories instead of blocking the merge.
func danglingReferenceWarnings(snap *room.Snapshot, removeSet map[string]bool, p *Patch) []protocol.Issue {
	if len(removeSet) == 0 {
		return nil
	}
	removedQuests := map[string]bool{}
	for _, qid := range p.RemoveQuests {
		removedQuests[qid] = true
	}

	referencedBy := map[string][]string{}
	for _, itemID := range room.SortedKeys(snap.Logic) {
		if removeSet[itemID] {
			continue
		}
		entry := snap.Logic[itemID]
		for i := range entry.Tasks {
			for _, target := range taskItemReferences(&entry.Tasks[i]) {
				if removeSet[target] {
					referencedBy[target] = append(referencedBy[target], itemID)
				}
			}
		}
	}

	var warnings []protocol.Issue
	for _, removed := range room.SortedKeys(referencedBy) {
		refs := dedupeIDs(referencedBy[removed])
		warnings = append(warnings, protocol.NewIssue(protocol.WarnOrphan,
			"removing item %s leaves dangling references in task effects", removed).WithIDs(refs...))
	}
	return warnings
}

// taskItemReferences collects item ids a task's payloads target, looking at
// the conventional target fields of trigger and effect records.
var targetFields = []string{"TargetId", "ItemId", "TargetItemId", "SpotItemId"}

func taskItemReferences(t *room.Task) []string {
	var out []string
	collect := func(p *room.Payload) {
		if p == nil {
			return
		}
		for _, f := range targetFields {
			if v := p.FieldString(f); v != "" {
				out = append(out, v)
			}
		}
	}
	collect(t.Trigger)
	collect(t.EffectorPayload())
	return out
}

// Apply produces the post-merge snapshot. It must only run on a patch that
// passed Validate. Sections apply in fixed order: removals, modifications,
// additions, then quests and settings. The input snapshot is not mutated.
func Apply(snap *room.Snapshot, p *Patch) (*room.Snapshot, error) {
	out := cloneSnapshot(snap)

	for _, id := range p.RemoveItems {
		delete(out.Items, id)
		delete(out.Logic, id)
	}

	for _, id := range sortedPatchKeys(p.ModifyItems) {
		it := out.Items[id]
		for k, v := range p.ModifyItems[id] {
			it[k] = deepCopyJSON(v)
		}
		if err := liftEmbeddedLogic(out, id, it); err != nil {
			return nil, protocol.NewIssueError("merge",
				protocol.NewIssue(protocol.ErrSchema, "modified item carries undecodable interaction data: %v", err).WithIDs(id))
		}
	}

	for _, id := range sortedPatchKeys(p.AddItems) {
		it := p.AddItems[id].Clone()
		if err := liftEmbeddedLogic(out, id, it); err != nil {
			return nil, protocol.NewIssueError("merge",
				protocol.NewIssue(protocol.ErrSchema, "added item carries undecodable interaction data: %v", err).WithIDs(id))
		}
		out.Items[id] = it
	}

	for _, id := range p.RemoveLogic {
		delete(out.Logic, id)
	}
	for _, id := range sortedPatchKeys(p.ModifyLogic) {
		merged, err := mergeLogicEntry(out.Logic[id], p.ModifyLogic[id])
		if err != nil {
			return nil, protocol.NewIssueError("merge",
				protocol.NewIssue(protocol.ErrSchema, "modified logic does not decode: %v", err).WithIDs(id))
		}
		out.Logic[id] = merged
	}
	for _, id := range sortedPatchKeys(p.AddLogic) {
		entry := *p.AddLogic[id]
		entry.Tasks = append([]room.Task(nil), entry.Tasks...)
		out.Logic[id] = &entry
	}

	for _, qid := range p.RemoveQuests {
		delete(out.Quests, qid)
	}
	for _, qid := range sortedPatchKeys(p.AddQuests) {
		out.Quests[qid] = p.AddQuests[qid].Clone()
	}

	for k, v := range p.ModifySettings {
		out.Settings[k] = deepCopyJSON(v)
	}

	if issues := room.ValidateStructure(out); len(issues) > 0 {
		return nil, protocol.NewIssueError("merge", issues...)
	}
	return out, nil
}

// mergeLogicEntry overlays patch keys onto an existing logic entry at the
// top level. A nil entry starts from empty, so modify on a bare item behaves
// like add.
func mergeLogicEntry(entry *room.LogicEntry, patch map[string]json.RawMessage) (*room.LogicEntry, error) {
	fields := map[string]json.RawMessage{}
	if entry != nil {
		b, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, &fields); err != nil {
			return nil, err
		}
	}
	for k, v := range patch {
		fields[k] = v
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return room.DecodeLogicValue(b)
}

// liftEmbeddedLogic moves an extraData string supplied through a patch item
// into the logic map, keeping the canonical form separated.
func liftEmbeddedLogic(snap *room.Snapshot, id string, it room.Item) error {
	raw, ok := it["extraData"]
	if !ok {
		return nil
	}
	delete(it, "extraData")
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil
	}
	entry, err := room.DecodeLogicValue(json.RawMessage(mustJSON(s)))
	if err != nil {
		return err
	}
	snap.Logic[id] = entry
	return nil
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func cloneSnapshot(snap *room.Snapshot) *room.Snapshot {
	out := room.NewSnapshot()
	for id, it := range snap.Items {
		out.Items[id] = it.Clone()
	}
	for id, entry := range snap.Logic {
		cloned := *entry
		cloned.Tasks = append([]room.Task(nil), entry.Tasks...)
		out.Logic[id] = &cloned
	}
	for qid, q := range snap.Quests {
		out.Quests[qid] = q.Clone()
	}
	for k, v := range snap.Settings {
		out.Settings[k] = deepCopyJSON(v)
	}
	out.RoomTasks.Tasks = append([]room.Task{}, snap.RoomTasks.Tasks...)
	return out
}

func deepCopyJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopyJSON(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyJSON(e)
		}
		return out
	default:
		return v
	}
}

func sortedPatchKeys[V any](m map[string]V) []string {
	return room.SortedKeys(m)
}

func dedupeIDs(ids []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	room.SortIDs(out)
	return out
}
