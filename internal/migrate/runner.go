package migrate

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taskvault/taskvault/internal/models"
	"github.com/taskvault/taskvault/internal/utils"
)

// Per-migration outcomes reported in a Summary
const (
	OutcomeCompleted      = "completed"
	OutcomeSkipped        = "skipped"
	OutcomeDryRun         = "dry_run"
	OutcomeFailed         = "failed"
	OutcomeRolledBack     = "rolled_back"
	OutcomeRollbackFailed = "rollback_failed"
)

// RunOptions controls a RunAll invocation
type RunOptions struct {
	// DryRun reports what would run without calling any migration's Up
	DryRun bool
	// TargetID stops the run before the named migration (exclusive bound)
	TargetID string
	// ContinueOnError keeps iterating past a failed migration instead of
	// the fail-fast default
	ContinueOnError bool
}

// RollbackOptions controls a Rollback invocation
type RollbackOptions struct {
	// Steps is the number of completed migrations to revert; 0 means one
	// step, unless TargetID is set, in which case rollback proceeds until
	// the target
	Steps int
	// TargetID stops the rollback before the named migration (exclusive)
	TargetID string
}

// Result is the outcome of one migration within a run or rollback
type Result struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Outcome  string        `json:"outcome"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Summary aggregates a whole RunAll or Rollback invocation. Only the
// aggregate decides the process exit code.
type Summary struct {
	Total      int           `json:"total"`
	Run        int           `json:"run"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	RolledBack int           `json:"rolled_back"`
	Elapsed    time.Duration `json:"elapsed"`
	Success    bool          `json:"success"`
	Results    []Result      `json:"results"`
}

// MigrationStatus is one row of a StatusReport
type MigrationStatus struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Version     string     `json:"version,omitempty"`
	Applied     bool       `json:"applied"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"`
}

// StatusReport is the read-only view of every known migration
type StatusReport struct {
	Applied    int               `json:"applied"`
	Pending    int               `json:"pending"`
	Migrations []MigrationStatus `json:"migrations"`
}

// Runner applies a deterministically ordered set of migration descriptors
// against the store and tracks ledger state. Migrations never run in
// parallel with each other; each store access completes fully before the
// next migration starts.
type Runner struct {
	db          *gorm.DB
	logger      zerolog.Logger
	descriptors []Descriptor
}

// NewRunner creates a runner over an open store handle
func NewRunner(db *gorm.DB, logger zerolog.Logger) *Runner {
	return &Runner{
		db:     db,
		logger: logger,
	}
}

// Register adds descriptors to the runner
func (r *Runner) Register(descriptors ...Descriptor) {
	r.descriptors = append(r.descriptors, descriptors...)
}

// ordered returns the registered descriptors sorted by id ascending. ID
// order is the only ordering guarantee; the runner never reorders based on
// dependencies it cannot see.
func (r *Runner) ordered() []Descriptor {
	ordered := make([]Descriptor, len(r.descriptors))
	copy(ordered, r.descriptors)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}

// byID returns a lookup table of registered descriptors
func (r *Runner) byID() map[string]Descriptor {
	m := make(map[string]Descriptor, len(r.descriptors))
	for _, d := range r.descriptors {
		m[d.ID] = d
	}
	return m
}

// ensureLedger creates the ledger table if it does not exist yet. Only the
// applying path calls this; read-only paths tolerate a missing ledger so
// status and dry-run invocations leave a fresh store untouched.
func (r *Runner) ensureLedger() error {
	if err := r.db.AutoMigrate(&models.MigrationRecord{}); err != nil {
		return utils.WrapStoreError("create migration ledger", err)
	}
	return nil
}

// ledgerExists reports whether the ledger table is present
func (r *Runner) ledgerExists() bool {
	return r.db.Migrator().HasTable(&models.MigrationRecord{})
}

// RunAll applies every pending migration in ascending id order. Already
// applied migrations are skipped, which is what makes repeated invocations
// idempotent at the run level. The default on failure is to stop
// immediately; ContinueOnError keeps going.
func (r *Runner) RunAll(ctx context.Context, opts RunOptions) (*Summary, error) {
	hasLedger := r.ledgerExists()
	if !opts.DryRun {
		if err := r.ensureLedger(); err != nil {
			return nil, err
		}
		hasLedger = true
	}

	summary := &Summary{}
	start := time.Now()

	for _, d := range r.ordered() {
		// Target is an exclusive upper bound
		if opts.TargetID != "" && d.ID == opts.TargetID {
			break
		}
		summary.Total++

		// Without a ledger nothing has been applied yet
		applied := false
		if hasLedger {
			var err error
			applied, err = d.Applied(ctx, r.db)
			if err != nil {
				return nil, err
			}
		}
		if applied {
			r.logger.Debug().
				Str("id", d.ID).
				Str("name", d.Name).
				Msg("Migration already applied, skipping")
			summary.Skipped++
			summary.Results = append(summary.Results, Result{
				ID: d.ID, Name: d.Name, Outcome: OutcomeSkipped, Message: "already applied",
			})
			continue
		}

		if opts.DryRun {
			r.logger.Info().
				Str("id", d.ID).
				Str("name", d.Name).
				Msg("Dry run, migration would be applied")
			summary.Results = append(summary.Results, Result{
				ID: d.ID, Name: d.Name, Outcome: OutcomeDryRun, Message: "would apply",
			})
			continue
		}

		r.logger.Info().
			Str("id", d.ID).
			Str("name", d.Name).
			Msg("Running migration")

		runStart := time.Now()
		report, upErr := d.Up(ctx, r.db, r.logger)
		duration := time.Since(runStart)

		if upErr != nil {
			wrapped := utils.WrapMigrationError(d.ID, "up", upErr)
			if recErr := r.recordFailure(ctx, d, duration, wrapped); recErr != nil {
				return nil, recErr
			}
			r.logger.Error().
				Err(upErr).
				Str("id", d.ID).
				Str("name", d.Name).
				Msg("Migration failed")
			summary.Failed++
			summary.Results = append(summary.Results, Result{
				ID: d.ID, Name: d.Name, Outcome: OutcomeFailed,
				Message: wrapped.Error(), Duration: duration,
			})
			if !opts.ContinueOnError {
				break
			}
			continue
		}

		if err := r.recordSuccess(ctx, d, duration, report); err != nil {
			return nil, err
		}
		r.logger.Info().
			Str("id", d.ID).
			Str("name", d.Name).
			Dur("duration", duration).
			Msg("Migration completed")
		summary.Run++
		summary.Results = append(summary.Results, Result{
			ID: d.ID, Name: d.Name, Outcome: OutcomeCompleted, Duration: duration,
		})
	}

	summary.Elapsed = time.Since(start)
	summary.Success = summary.Failed == 0
	return summary, nil
}

// Rollback reverts completed migrations, most recently applied first.
// Rollback must undo what was actually done in the order it was done, so it
// walks the ledger in reverse chronological order rather than reverse id
// order. It never continues past a failure: later reversals may depend on
// state the failed one was supposed to restore.
func (r *Runner) Rollback(ctx context.Context, opts RollbackOptions) (*Summary, error) {
	// A store without a ledger has nothing to roll back
	if !r.ledgerExists() {
		return &Summary{Success: true}, nil
	}

	var records []models.MigrationRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", models.MigrationStatusCompleted).
		Order("applied_at DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, utils.WrapStoreError("read migration ledger", err)
	}

	limit := opts.Steps
	if limit <= 0 {
		if opts.TargetID != "" {
			limit = len(records)
		} else {
			limit = 1
		}
	}

	descriptors := r.byID()
	summary := &Summary{}
	start := time.Now()

	for _, rec := range records {
		if summary.RolledBack >= limit {
			break
		}
		// Target is an exclusive bound on the rollback too
		if opts.TargetID != "" && rec.ID == opts.TargetID {
			break
		}
		summary.Total++

		d, ok := descriptors[rec.ID]
		if !ok {
			notFound := utils.WrapDescriptorNotFoundError(rec.ID)
			r.logger.Warn().
				Str("id", rec.ID).
				Str("name", rec.Name).
				Msg("No descriptor loaded for applied migration, skipping rollback")
			summary.Skipped++
			summary.Results = append(summary.Results, Result{
				ID: rec.ID, Name: rec.Name, Outcome: OutcomeSkipped, Message: notFound.Error(),
			})
			continue
		}

		r.logger.Info().
			Str("id", d.ID).
			Str("name", d.Name).
			Msg("Rolling back migration")

		runStart := time.Now()
		report, downErr := d.Down(ctx, r.db, r.logger)
		duration := time.Since(runStart)

		if downErr != nil {
			wrapped := utils.WrapMigrationError(d.ID, "down", downErr)
			r.logger.Error().
				Err(downErr).
				Str("id", d.ID).
				Str("name", d.Name).
				Msg("Rollback failed, stopping")
			summary.Failed++
			summary.Results = append(summary.Results, Result{
				ID: d.ID, Name: d.Name, Outcome: OutcomeRollbackFailed,
				Message: wrapped.Error(), Duration: duration,
			})
			// The migration is still applied; the ledger row keeps its
			// completed status, only the error detail is recorded.
			rec.Error = wrapped.Error()
			if err := r.db.WithContext(ctx).Save(&rec).Error; err != nil {
				return nil, utils.WrapStoreError("update migration ledger", err)
			}
			break
		}

		if err := r.recordRollback(ctx, &rec, duration, report); err != nil {
			return nil, err
		}
		r.logger.Info().
			Str("id", d.ID).
			Str("name", d.Name).
			Dur("duration", duration).
			Msg("Migration rolled back")
		summary.RolledBack++
		summary.Results = append(summary.Results, Result{
			ID: d.ID, Name: d.Name, Outcome: OutcomeRolledBack, Duration: duration,
		})
	}

	summary.Elapsed = time.Since(start)
	summary.Success = summary.Failed == 0
	return summary, nil
}

// Status reports applied/pending state for every registered descriptor.
// Strictly read-only: on a fresh store with no ledger table everything is
// reported pending and nothing is created.
func (r *Runner) Status(ctx context.Context) (*StatusReport, error) {
	hasLedger := r.ledgerExists()

	report := &StatusReport{}
	for _, d := range r.ordered() {
		applied := false
		if hasLedger {
			var err error
			applied, err = d.Applied(ctx, r.db)
			if err != nil {
				return nil, err
			}
		}

		status := MigrationStatus{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Version:     d.Version,
			Applied:     applied,
		}
		if applied {
			var rec models.MigrationRecord
			if err := r.db.WithContext(ctx).First(&rec, "id = ?", d.ID).Error; err == nil {
				appliedAt := rec.AppliedAt
				status.AppliedAt = &appliedAt
			}
			report.Applied++
		} else {
			report.Pending++
		}
		report.Migrations = append(report.Migrations, status)
	}

	return report, nil
}

// recordSuccess writes a completed ledger entry. A retry after an earlier
// failure replaces the failed row wholesale rather than merging into it.
func (r *Runner) recordSuccess(ctx context.Context, d Descriptor, duration time.Duration, report *Report) error {
	rec := models.MigrationRecord{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Version:     d.Version,
		Status:      models.MigrationStatusCompleted,
		AppliedAt:   time.Now().UTC(),
		DurationMs:  duration.Milliseconds(),
		Result:      marshalReport(report),
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return utils.WrapStoreError("write migration ledger", err)
	}
	return nil
}

// recordFailure writes a failed ledger entry so the attempt stays auditable
func (r *Runner) recordFailure(ctx context.Context, d Descriptor, duration time.Duration, cause error) error {
	rec := models.MigrationRecord{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Version:     d.Version,
		Status:      models.MigrationStatusFailed,
		AppliedAt:   time.Now().UTC(),
		DurationMs:  duration.Milliseconds(),
		Error:       cause.Error(),
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return utils.WrapStoreError("write migration ledger", err)
	}
	return nil
}

// recordRollback updates the existing ledger entry in place
func (r *Runner) recordRollback(ctx context.Context, rec *models.MigrationRecord, duration time.Duration, report *Report) error {
	now := time.Now().UTC()
	rec.Status = models.MigrationStatusRolledBack
	rec.RolledBackAt = &now
	rec.DurationMs = duration.Milliseconds()
	rec.Result = marshalReport(report)
	rec.Error = ""

	if err := r.db.WithContext(ctx).Save(rec).Error; err != nil {
		return utils.WrapStoreError("update migration ledger", err)
	}
	return nil
}

func marshalReport(report *Report) string {
	if report == nil {
		return ""
	}
	data, err := json.Marshal(report)
	if err != nil {
		return ""
	}
	return string(data)
}
