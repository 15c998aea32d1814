package room

import (
	"roomdex/internal/protocol"
)

// Validate checks the snapshot invariants and returns every finding. Hard
// findings carry E_ codes, advisories W_ codes; the caller decides whether
// to abort. Findings are reported in id order so output is stable.
func Validate(snap *Snapshot) []protocol.Issue {
	var issues []protocol.Issue
	issues = append(issues, checkHierarchy(snap)...)
	issues = append(issues, checkLogic(snap)...)
	issues = append(issues, checkQuests(snap)...)
	return issues
}

// ValidateStructure checks only the structural invariants: parent references
// resolve without cycles and logic keys reference existing items. Mutations
// re-check these after applying, without re-judging preexisting content.
func ValidateStructure(snap *Snapshot) []protocol.Issue {
	var issues []protocol.Issue
	issues = append(issues, checkHierarchy(snap)...)
	var orphans []string
	for _, id := range SortedKeys(snap.Logic) {
		if _, ok := snap.Items[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) > 0 {
		issues = append(issues, protocol.NewIssue(protocol.ErrReference,
			"logic entry keyed by nonexistent item").WithIDs(orphans...))
	}
	return issues
}

// checkHierarchy verifies every parent reference resolves and the parent
// graph is acyclic.
func checkHierarchy(snap *Snapshot) []protocol.Issue {
	var issues []protocol.Issue
	var dangling []string
	for _, id := range SortedKeys(snap.Items) {
		p := snap.Items[id].Parent()
		if p == "" {
			continue
		}
		if _, ok := snap.Items[p]; !ok {
			dangling = append(dangling, id)
		}
	}
	if len(dangling) > 0 {
		issues = append(issues, protocol.NewIssue(protocol.ErrReference,
			"parent reference does not resolve to an existing item").WithIDs(dangling...))
	}

	// Walk each item's parent chain; a revisit inside one walk is a cycle.
	var cyclic []string
	state := map[string]int{} // 0 unvisited, 1 on current walk, 2 done
	for _, id := range SortedKeys(snap.Items) {
		if state[id] != 0 {
			continue
		}
		walk := []string{}
		cur := id
		for {
			if state[cur] == 1 {
				cyclic = append(cyclic, cur)
				break
			}
			if state[cur] == 2 {
				break
			}
			state[cur] = 1
			walk = append(walk, cur)
			p := snap.Items[cur].Parent()
			if p == "" {
				break
			}
			if _, ok := snap.Items[p]; !ok {
				break
			}
			cur = p
		}
		for _, w := range walk {
			state[w] = 2
		}
	}
	if len(cyclic) > 0 {
		SortIDs(cyclic)
		issues = append(issues, protocol.NewIssue(protocol.ErrReference,
			"parent chain contains a cycle").WithIDs(cyclic...))
	}
	return issues
}

// checkLogic verifies logic keys reference existing items and every task
// decodes to a known trigger/effect kind.
func checkLogic(snap *Snapshot) []protocol.Issue {
	var issues []protocol.Issue
	var orphans []string
	for _, id := range SortedKeys(snap.Logic) {
		if _, ok := snap.Items[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) > 0 {
		issues = append(issues, protocol.NewIssue(protocol.ErrReference,
			"logic entry keyed by nonexistent item").WithIDs(orphans...))
	}

	var badKind, badTransition, badQuestRef []string
	for _, id := range SortedKeys(snap.Logic) {
		entry := snap.Logic[id]
		for i := range entry.Tasks {
			t := &entry.Tasks[i]
			if t.Trigger != nil && !KnownTriggerKind(t.Trigger.Type) {
				badKind = append(badKind, id)
			}
			if ep := t.EffectorPayload(); ep != nil && !KnownEffectKind(ep.Type) {
				badKind = append(badKind, id)
			}
			switch t.Kind() {
			case TaskQuestTrigger:
				if !ValidTransition(t.TargetState) {
					badTransition = append(badTransition, id)
				}
				if _, ok := snap.Quests[t.QuestID]; !ok {
					badQuestRef = append(badQuestRef, id)
				}
			case TaskQuestEffect:
				if t.TargetState < 0 || t.TargetState > 2 {
					badTransition = append(badTransition, id)
				}
				if _, ok := snap.Quests[t.QuestID]; !ok {
					badQuestRef = append(badQuestRef, id)
				}
			}
		}
	}
	if len(badKind) > 0 {
		issues = append(issues, protocol.NewIssue(protocol.ErrSchema,
			"task uses an unknown trigger or effect kind").WithIDs(dedupe(badKind)...))
	}
	if len(badTransition) > 0 {
		issues = append(issues, protocol.NewIssue(protocol.ErrSchema,
			"task carries an invalid quest target state").WithIDs(dedupe(badTransition)...))
	}
	if len(badQuestRef) > 0 {
		issues = append(issues, protocol.NewIssue(protocol.ErrReference,
			"task references a nonexistent quest id").WithIDs(dedupe(badQuestRef)...))
	}
	return issues
}

// checkQuests verifies quest keys, names, statuses and pair integrity.
func checkQuests(snap *Snapshot) []protocol.Issue {
	var issues []protocol.Issue
	var badID, idMismatch, badName, badStatus []string

	for _, qid := range SortedKeys(snap.Quests) {
		q := snap.Quests[qid]
		if !ValidQuestID(qid) {
			badID = append(badID, qid)
		}
		if q.ID() != qid {
			idMismatch = append(idMismatch, qid)
		}
		if name := q.Name(); name != "" {
			if n, _ := SplitQuestName(name); n == 999 {
				badName = append(badName, qid)
			}
		}
		if !ValidQuestStatus(q.Status()) {
			badStatus = append(badStatus, qid)
		}
	}

	unpaired := UnpairedQuests(snap.Quests, nil)

	if len(badID) > 0 {
		issues = append(issues, protocol.NewIssue(protocol.ErrSchema,
			"quest key does not match the platform id shape").WithIDs(badID...))
	}
	if len(idMismatch) > 0 {
		issues = append(issues, protocol.NewIssue(protocol.ErrSchema,
			"quest id field does not match its key").WithIDs(idMismatch...))
	}
	if len(badName) > 0 {
		issues = append(issues, protocol.NewIssue(protocol.ErrSchema,
			"quest name is missing its numeric ordering prefix").WithIDs(badName...))
	}
	if len(badStatus) > 0 {
		issues = append(issues, protocol.NewIssue(protocol.ErrSchema,
			"quest status is not notStarted, inProgress or completed").WithIDs(badStatus...))
	}
	if len(unpaired) > 0 {
		SortIDs(unpaired)
		issues = append(issues, protocol.NewIssue(protocol.ErrReference,
			"quest record is not part of a well-formed pair").WithIDs(unpaired...))
	}
	return issues
}

// UnpairedQuests returns the ids of quest records whose EntryId group is not
// a well-formed pair: at least two records sharing the EntryId with distinct
// statuses. A non-nil entries set restricts the check to those EntryId groups.
func UnpairedQuests(quests map[string]Quest, entries map[string]bool) []string {
	byEntry := map[string][]string{}
	for _, qid := range SortedKeys(quests) {
		if eid := quests[qid].EntryID(); eid != "" {
			byEntry[eid] = append(byEntry[eid], qid)
		}
	}

	var unpaired []string
	for _, eid := range SortedKeys(byEntry) {
		if entries != nil && !entries[eid] {
			continue
		}
		group := byEntry[eid]
		if len(group) < 2 {
			unpaired = append(unpaired, group...)
			continue
		}
		seen := map[string]bool{}
		for _, qid := range group {
			st := quests[qid].Status()
			if seen[st] {
				unpaired = append(unpaired, qid)
			}
			seen[st] = true
		}
	}
	SortIDs(unpaired)
	return unpaired
}

// HardIssues filters findings down to the E_ codes that abort an operation.
func HardIssues(issues []protocol.Issue) []protocol.Issue {
	var hard []protocol.Issue
	for _, is := range issues {
		switch is.Code {
		case protocol.ErrSchema, protocol.ErrReference, protocol.ErrCollision, protocol.ErrNotFound:
			hard = append(hard, is)
		}
	}
	return hard
}

func dedupe(ids []string) []string {
	seen := map[string]bool{}
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	SortIDs(out)
	return out
}
