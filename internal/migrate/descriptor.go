package migrate

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/taskvault/taskvault/internal/models"
	"github.com/taskvault/taskvault/internal/utils"
)

// MigrationFunc performs one direction of a migration against an open store
// handle. A non-nil Report carries the structured result payload that ends
// up in the ledger (records changed, per-index outcomes).
type MigrationFunc func(ctx context.Context, db *gorm.DB, logger zerolog.Logger) (*Report, error)

// Report is the structured result payload of a migration phase
type Report struct {
	RecordsChanged int64         `json:"records_changed"`
	Indexes        []IndexResult `json:"indexes,omitempty"`
	Notes          string        `json:"notes,omitempty"`
}

// Index outcomes recorded in a Report
const (
	IndexCreated = "created"
	IndexExists  = "exists"
	IndexDropped = "dropped"
	IndexMissing = "missing"
	IndexFailed  = "failed"
)

// IndexResult records the outcome of one index create or drop attempt.
// Indexes are attempted independently; one failing never aborts the others.
type IndexResult struct {
	Name    string `json:"name"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// Failed reports whether any index attempt in the report failed
func (r *Report) Failed() bool {
	for _, idx := range r.Indexes {
		if idx.Outcome == IndexFailed {
			return true
		}
	}
	return false
}

// Descriptor is a self-contained unit of forward/backward schema change.
// Descriptors are assembled into a compiled registry at build time and
// ordered by their zero-padded ID; ID order is the only ordering guarantee.
type Descriptor struct {
	ID          string
	Name        string
	Description string
	Version     string
	Up          MigrationFunc
	Down        MigrationFunc
}

// Applied reports whether this migration is currently applied. It is a
// cheap, read-only predicate over the ledger (status == completed), not a
// re-derivation from data shape: a migration whose effects were manually
// reverted outside the tool still counts as applied until an explicit
// rollback runs.
func (d Descriptor) Applied(ctx context.Context, db *gorm.DB) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&models.MigrationRecord{}).
		Where("id = ? AND status = ?", d.ID, models.MigrationStatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, utils.WrapStoreError("read migration ledger", err)
	}
	return count > 0, nil
}
