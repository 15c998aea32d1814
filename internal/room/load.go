package room

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"roomdex/internal/protocol"
)

// fileSnapshot is the at-rest separated shape. Logic values are compact JSON
// strings per the platform's storage contract.
type fileSnapshot struct {
	RoomItems map[string]Item   `json:"roomItems"`
	Logic     map[string]string `json:"logic"`
	Quests    map[string]Quest  `json:"quests"`
	RoomTasks RoomTasks         `json:"roomTasks"`
	Settings  map[string]any    `json:"settings"`
}

// Load reads a snapshot file, gates it through the snapshot schema and
// normalizes it to canonical form.
func Load(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := CheckSnapshotDocument(raw); err != nil {
		return nil, err
	}
	return Normalize(raw)
}

// Marshal encodes the canonical snapshot back to its at-rest separated
// shape: 2-space indent, trailing newline, logic re-encoded as strings.
// Identical snapshots always produce identical bytes.
func Marshal(snap *Snapshot) ([]byte, error) {
	fs := fileSnapshot{
		RoomItems: snap.Items,
		Logic:     make(map[string]string, len(snap.Logic)),
		Quests:    snap.Quests,
		RoomTasks: snap.RoomTasks,
		Settings:  snap.Settings,
	}
	if fs.RoomItems == nil {
		fs.RoomItems = map[string]Item{}
	}
	if fs.Quests == nil {
		fs.Quests = map[string]Quest{}
	}
	if fs.Settings == nil {
		fs.Settings = map[string]any{}
	}
	if fs.RoomTasks.Tasks == nil {
		fs.RoomTasks.Tasks = []Task{}
	}
	for id, entry := range snap.Logic {
		s, err := EncodeLogicValue(entry)
		if err != nil {
			return nil, protocol.NewIssueError("save",
				protocol.NewIssue(protocol.ErrSchema, "encode logic: %v", err).WithIDs(id))
		}
		fs.Logic[id] = s
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the snapshot atomically: the bytes land in a temp file in the
// same directory and replace the target with a rename, so a crash mid-write
// never leaves a truncated snapshot.
func Save(path string, snap *Snapshot) error {
	data, err := Marshal(snap)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic replaces path with data via temp file and rename.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
