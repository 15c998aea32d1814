// Package ops is the operation facade over a room directory: index, query,
// merge, validate and history, plus the bookkeeping around them (backups,
// audit trail, history database, change notifications).
package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"roomdex/internal/archive"
	"roomdex/internal/index"
	"roomdex/internal/merge"
	"roomdex/internal/protocol"
	"roomdex/internal/query"
	"roomdex/internal/room"
	"roomdex/internal/roomdb"
	"roomdex/internal/tuning"
)

// Event is pushed to watchers after an operation changes a room.
type Event struct {
	Op     string    `json:"op"`
	RoomID string    `json:"room_id"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// Service executes room operations. DB, Audit and Notify are optional; a nil
// field just skips that bookkeeping.
type Service struct {
	Policy tuning.Policy
	DB     *roomdb.DB
	Audit  *archive.AuditLogger
	Notify func(Event)
}

func New(pol tuning.Policy) *Service {
	return &Service{Policy: pol}
}

func SnapshotPath(roomDir string) string { return filepath.Join(roomDir, "snapshot.json") }
func IndexPath(roomDir string) string    { return filepath.Join(roomDir, "room_index.md") }

// RoomID derives the room id from its directory name.
func RoomID(roomDir string) string {
	abs, err := filepath.Abs(roomDir)
	if err != nil {
		return filepath.Base(roomDir)
	}
	return filepath.Base(abs)
}

// IndexResult reports one index regeneration.
type IndexResult struct {
	RoomID string `json:"room_id"`
	Path   string `json:"path"`
	Items  int    `json:"items"`
	Quests int    `json:"quests"`
	Bytes  int    `json:"bytes"`
}

// Index regenerates room_index.md from the snapshot.
func (s *Service) Index(roomDir string) (*IndexResult, error) {
	snap, err := room.Load(SnapshotPath(roomDir))
	if err != nil {
		return nil, err
	}
	return s.reindex(roomDir, snap)
}

func (s *Service) reindex(roomDir string, snap *room.Snapshot) (*IndexResult, error) {
	roomID := RoomID(roomDir)
	text, err := index.Build(snap, roomID, s.Policy)
	if err != nil {
		return nil, err
	}
	path := IndexPath(roomDir)
	if err := room.WriteFileAtomic(path, []byte(text)); err != nil {
		return nil, err
	}

	res := &IndexResult{
		RoomID: roomID,
		Path:   path,
		Items:  len(snap.Items),
		Quests: len(snap.Quests),
		Bytes:  len(text),
	}
	s.record(roomDir, res)
	s.audit("index", roomID, fmt.Sprintf("%d items, %d quests, %d bytes", res.Items, res.Quests, res.Bytes), 0, 0)
	s.notify(Event{Op: "index", RoomID: roomID, At: time.Now().UTC(), Detail: path})
	return res, nil
}

func (s *Service) record(roomDir string, res *IndexResult) {
	if s.DB == nil {
		return
	}
	// Side-index writes must not fail the operation.
	_ = s.DB.RecordIndex(roomdb.IndexRecord{
		RoomID: res.RoomID,
		At:     time.Now().UTC(),
		Path:   res.Path,
		Items:  res.Items,
		Quests: res.Quests,
		Bytes:  res.Bytes,
	})
	_ = s.DB.UpsertRoom(res.RoomID, roomDir, res.Items, res.Quests)
}

// Query runs the filter set against the snapshot.
func (s *Service) Query(roomDir string, f query.Filters) (*query.Result, error) {
	snap, err := room.Load(SnapshotPath(roomDir))
	if err != nil {
		return nil, err
	}
	res, err := query.Run(snap, f, s.Policy)
	if err != nil {
		return nil, err
	}
	s.audit("query", RoomID(roomDir), query.Describe(f), 0, 0)
	return res, nil
}

// ValidateResult separates hard findings from advisories.
type ValidateResult struct {
	Errors   []protocol.Issue `json:"errors"`
	Warnings []protocol.Issue `json:"warnings"`
}

// Validate loads the snapshot and reports every invariant finding. A
// snapshot that fails to load at all reports its load issues the same way.
func (s *Service) Validate(roomDir string) (*ValidateResult, error) {
	res := &ValidateResult{Errors: []protocol.Issue{}, Warnings: []protocol.Issue{}}
	snap, err := room.Load(SnapshotPath(roomDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		res.Errors = protocol.AsIssues(err)
		return res, nil
	}
	for _, is := range room.Validate(snap) {
		switch is.Code {
		case protocol.WarnCardinality, protocol.WarnOrphan:
			res.Warnings = append(res.Warnings, is)
		default:
			res.Errors = append(res.Errors, is)
		}
	}
	s.audit("validate", RoomID(roomDir), "", len(res.Errors), len(res.Warnings))
	return res, nil
}

// MergeResult reports what a merge did, or would do under dry-run. Errors
// inside the result mean the patch was rejected and nothing was written.
type MergeResult struct {
	RoomID  string `json:"room_id"`
	DryRun  bool   `json:"dry_run"`
	Applied bool   `json:"applied"`

	Errors   []protocol.Issue `json:"errors"`
	Warnings []protocol.Issue `json:"warnings"`

	ItemsBefore  int `json:"items_before"`
	ItemsAfter   int `json:"items_after"`
	QuestsBefore int `json:"quests_before"`
	QuestsAfter  int `json:"quests_after"`

	RemovedItems     int  `json:"removed_items"`
	ModifiedItems    int  `json:"modified_items"`
	AddedItems       int  `json:"added_items"`
	RemovedQuests    int  `json:"removed_quests"`
	AddedQuests      int  `json:"added_quests"`
	SettingsModified bool `json:"settings_modified"`

	BackupPath string `json:"backup_path,omitempty"`
	IndexPath  string `json:"index_path,omitempty"`
}

// Summary is a one-line account for logs and history rows.
func (r *MergeResult) Summary() string {
	if len(r.Errors) > 0 {
		return fmt.Sprintf("rejected with %d error(s)", len(r.Errors))
	}
	verb := "applied"
	if r.DryRun {
		verb = "would apply"
	}
	return fmt.Sprintf("%s -%d/~%d/+%d items, -%d/+%d quests: %d -> %d items, %d -> %d quests",
		verb, r.RemovedItems, r.ModifiedItems, r.AddedItems,
		r.RemovedQuests, r.AddedQuests,
		r.ItemsBefore, r.ItemsAfter, r.QuestsBefore, r.QuestsAfter)
}

// Merge validates and applies a raw patch against the room's snapshot. The
// returned error covers only environmental failures (missing snapshot,
// unwritable disk); patch rejections come back inside the result with the
// on-disk snapshot untouched.
func (s *Service) Merge(roomDir string, patchRaw []byte, dryRun bool) (*MergeResult, error) {
	roomID := RoomID(roomDir)
	res := &MergeResult{
		RoomID:   roomID,
		DryRun:   dryRun,
		Errors:   []protocol.Issue{},
		Warnings: []protocol.Issue{},
	}

	snapPath := SnapshotPath(roomDir)
	rawSnap, err := os.ReadFile(snapPath)
	if err != nil {
		return nil, err
	}
	if err := room.CheckSnapshotDocument(rawSnap); err != nil {
		res.Errors = protocol.AsIssues(err)
		return s.finishMerge(roomDir, res), nil
	}
	snap, err := room.Normalize(rawSnap)
	if err != nil {
		res.Errors = protocol.AsIssues(err)
		return s.finishMerge(roomDir, res), nil
	}

	patch, err := merge.ParsePatch(patchRaw)
	if err != nil {
		res.Errors = protocol.AsIssues(err)
		return s.finishMerge(roomDir, res), nil
	}

	res.ItemsBefore = len(snap.Items)
	res.QuestsBefore = len(snap.Quests)
	res.RemovedItems = len(patch.RemoveItems)
	res.ModifiedItems = len(patch.ModifyItems)
	res.AddedItems = len(patch.AddItems)
	res.RemovedQuests = len(patch.RemoveQuests)
	res.AddedQuests = len(patch.AddQuests)
	res.SettingsModified = len(patch.ModifySettings) > 0

	errs, warns := merge.Validate(snap, patch)
	res.Errors = append(res.Errors, errs...)
	res.Warnings = append(res.Warnings, warns...)
	if len(res.Errors) > 0 {
		return s.finishMerge(roomDir, res), nil
	}

	if dryRun {
		res.ItemsAfter = res.ItemsBefore - res.RemovedItems + res.AddedItems
		res.QuestsAfter = res.QuestsBefore - res.RemovedQuests + res.AddedQuests
		return s.finishMerge(roomDir, res), nil
	}

	next, err := merge.Apply(snap, patch)
	if err != nil {
		res.Errors = append(res.Errors, protocol.AsIssues(err)...)
		return s.finishMerge(roomDir, res), nil
	}
	res.ItemsAfter = len(next.Items)
	res.QuestsAfter = len(next.Quests)

	backup, err := archive.BackupSnapshot(roomDir, rawSnap, s.Policy.BackupKeep)
	if err != nil {
		return nil, fmt.Errorf("backup before merge: %w", err)
	}
	res.BackupPath = backup

	if err := room.Save(snapPath, next); err != nil {
		return nil, err
	}
	res.Applied = true

	if ir, err := s.reindex(roomDir, next); err == nil {
		res.IndexPath = ir.Path
	}
	// A failed reindex is benign: the index is derived and regenerates on the
	// next access.

	s.notify(Event{Op: "merge", RoomID: roomID, At: time.Now().UTC(), Detail: res.Summary()})
	return s.finishMerge(roomDir, res), nil
}

func (s *Service) finishMerge(roomDir string, res *MergeResult) *MergeResult {
	if s.DB != nil {
		_ = s.DB.RecordMerge(roomdb.MergeRecord{
			ID:           uuid.NewString(),
			RoomID:       res.RoomID,
			At:           time.Now().UTC(),
			DryRun:       res.DryRun,
			Applied:      res.Applied,
			ItemsBefore:  res.ItemsBefore,
			ItemsAfter:   res.ItemsAfter,
			QuestsBefore: res.QuestsBefore,
			QuestsAfter:  res.QuestsAfter,
			Errors:       len(res.Errors),
			Warnings:     len(res.Warnings),
			Summary:      res.Summary(),
			BackupPath:   res.BackupPath,
		})
	}
	s.audit("merge", res.RoomID, res.Summary(), len(res.Errors), len(res.Warnings))
	return res
}

// History returns recent merges for a room, newest first.
func (s *Service) History(roomDir string, limit int) ([]roomdb.MergeRecord, error) {
	if s.DB == nil {
		return nil, fmt.Errorf("history requires a database")
	}
	return s.DB.MergeHistory(RoomID(roomDir), limit)
}

func (s *Service) audit(op, roomID, detail string, errors, warnings int) {
	if s.Audit == nil {
		return
	}
	e := archive.NewAuditEntry(op, roomID, detail)
	e.Errors = errors
	e.Warnings = warnings
	// Audit failures must not fail the operation.
	_ = s.Audit.Write(e)
}

func (s *Service) notify(e Event) {
	if s.Notify != nil {
		s.Notify(e)
	}
}
