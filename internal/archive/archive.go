// Package archive keeps compressed safety copies of snapshots and a
// compressed audit trail of every operation that touches them.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// BackupSnapshot writes a zstd copy of the snapshot bytes into the room's
// backups directory and prunes old copies down to keep. Returns the backup
// path.
func BackupSnapshot(roomDir string, data []byte, keep int) (string, error) {
	dir := filepath.Join(roomDir, "backups")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	stamp := time.Now().UTC().Format("2006-01-02T15-04-05.000000000")
	path := filepath.Join(dir, fmt.Sprintf("snapshot-%s.json.zst", stamp))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return "", err
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return "", err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	if keep > 0 {
		if err := pruneBackups(dir, keep); err != nil {
			return path, err
		}
	}
	return path, nil
}

// ReadBackup decompresses one backup file.
func ReadBackup(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

// ListBackups returns backup paths for a room, oldest first.
func ListBackups(roomDir string) ([]string, error) {
	dir := filepath.Join(roomDir, "backups")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".zst" {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func pruneBackups(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".zst" {
			names = append(names, e.Name())
		}
	}
	if len(names) <= keep {
		return nil
	}
	// Timestamped names sort chronologically.
	sort.Strings(names)
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// AuditEntry is one line of the operation audit trail.
type AuditEntry struct {
	ID       string `json:"id"`
	At       string `json:"at"`
	Op       string `json:"op"`
	RoomID   string `json:"room_id"`
	Detail   string `json:"detail,omitempty"`
	Errors   int    `json:"errors,omitempty"`
	Warnings int    `json:"warnings,omitempty"`
}

func NewAuditEntry(op, roomID, detail string) AuditEntry {
	return AuditEntry{
		ID:     uuid.NewString(),
		At:     time.Now().UTC().Format(time.RFC3339Nano),
		Op:     op,
		RoomID: roomID,
		Detail: detail,
	}
}

// AuditLogger appends compressed JSONL audit entries, one file per day.
type AuditLogger struct {
	baseDir string
	prefix  string

	mu     sync.Mutex
	curDay string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewAuditLogger(baseDir string) *AuditLogger {
	return &AuditLogger{baseDir: baseDir, prefix: "audit"}
}

func (l *AuditLogger) Write(e AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := time.Now().UTC().Format("2006-01-02")
	if day != l.curDay {
		if err := l.rotateLocked(day); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *AuditLogger) rotateLocked(day string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.baseDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(l.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", l.prefix, day))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.enc = enc
	l.w = bufio.NewWriterSize(enc, 64*1024)
	l.curDay = day
	return nil
}

func (l *AuditLogger) closeLocked() error {
	var err error
	if l.w != nil {
		_ = l.w.Flush()
	}
	if l.enc != nil {
		err = l.enc.Close()
		l.enc = nil
	}
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}
	l.w = nil
	return err
}
