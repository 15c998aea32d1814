package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy centralizes every size threshold the toolkit applies so they can be
// tuned without touching the components that consume them.
type Policy struct {
	// Grid cell edge (world units, XZ plane) for the spatial map section.
	GridCellSize float64 `yaml:"grid_cell_size"`

	// When a room holds more items than this, the Interactive Items section
	// narrows to items carrying player-facing triggers.
	IndexDetailItemLimit int `yaml:"index_detail_item_limit"`

	// When there are more unique quests than this, the Quests section groups
	// by name prefix instead of enumerating every quest.
	QuestRowLimit int `yaml:"quest_row_limit"`

	// Query results above this count get a cardinality warning attached.
	QueryWarnLimit int `yaml:"query_warn_limit"`

	// How many zstd snapshot backups to keep per room.
	BackupKeep int `yaml:"backup_keep"`

	// Spatial-map type breakdown lists at most this many types per cell.
	CellBreakdownTypes int `yaml:"cell_breakdown_types"`
}

func Default() Policy {
	return Policy{
		GridCellSize:         20,
		IndexDetailItemLimit: 80,
		QuestRowLimit:        50,
		QueryWarnLimit:       50,
		BackupKeep:           10,
		CellBreakdownTypes:   5,
	}
}

// Load reads a yaml overrides file on top of the defaults. Zero values in the
// file keep the default.
func Load(path string) (Policy, error) {
	p := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	var over Policy
	if err := yaml.Unmarshal(raw, &over); err != nil {
		return p, fmt.Errorf("tuning.yaml: %w", err)
	}
	if over.GridCellSize > 0 {
		p.GridCellSize = over.GridCellSize
	}
	if over.IndexDetailItemLimit > 0 {
		p.IndexDetailItemLimit = over.IndexDetailItemLimit
	}
	if over.QuestRowLimit > 0 {
		p.QuestRowLimit = over.QuestRowLimit
	}
	if over.QueryWarnLimit > 0 {
		p.QueryWarnLimit = over.QueryWarnLimit
	}
	if over.BackupKeep > 0 {
		p.BackupKeep = over.BackupKeep
	}
	if over.CellBreakdownTypes > 0 {
		p.CellBreakdownTypes = over.CellBreakdownTypes
	}
	return p, nil
}
