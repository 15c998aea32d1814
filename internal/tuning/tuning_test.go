package tuning_test

import (
	"os"
	"path/filepath"
	"testing"

	"roomdex/internal/tuning"
)

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	data := "grid_cell_size: 40\nquery_warn_limit: 10\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := tuning.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.GridCellSize != 40 || p.QueryWarnLimit != 10 {
		t.Fatalf("overrides not applied: %+v", p)
	}
	// Untouched fields keep their defaults.
	def := tuning.Default()
	if p.IndexDetailItemLimit != def.IndexDetailItemLimit || p.BackupKeep != def.BackupKeep {
		t.Fatalf("defaults lost: %+v", p)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := tuning.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("grid_cell_size: [oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := tuning.Load(path); err == nil {
		t.Fatal("expected error")
	}
}
