package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/taskvault/taskvault/internal/migrate"
	"github.com/taskvault/taskvault/internal/models"
	"github.com/taskvault/taskvault/internal/utils"
)

const backfillBatchSize = 500

// taskPriorityIndexes are the indexes this migration owns. Each one is
// attempted independently: an "already exists" outcome counts as success,
// and a failure is recorded per index without aborting the others, so a
// partially indexed store never blocks the data change from being applied.
var taskPriorityIndexes = []struct {
	name string
	stmt string
}{
	{
		name: "idx_tasks_priority",
		stmt: "CREATE INDEX idx_tasks_priority ON tasks(priority)",
	},
	{
		name: "idx_tasks_status_priority",
		stmt: "CREATE INDEX idx_tasks_status_priority ON tasks(status, priority)",
	},
	{
		name: "idx_tasks_due_at",
		stmt: "CREATE INDEX idx_tasks_due_at ON tasks(due_at)",
	},
}

// AddTaskPriorityUp adds the priority field to tasks, backfills existing
// rows in batches, builds the priority indexes, and validates that no task
// is left without a priority before the runner records success.
func AddTaskPriorityUp(ctx context.Context, db *gorm.DB, logger zerolog.Logger) (*migrate.Report, error) {
	report := &migrate.Report{}
	migrator := db.WithContext(ctx).Migrator()

	if !migrator.HasColumn(&models.Task{}, "priority") {
		if err := db.WithContext(ctx).Exec("ALTER TABLE tasks ADD COLUMN priority TEXT").Error; err != nil {
			return nil, err
		}
		logger.Info().Msg("Added priority column to tasks")
	}

	// Bulk data change first, in bounded batches
	for {
		res := db.WithContext(ctx).Exec(`
			UPDATE tasks SET priority = ?
			WHERE id IN (
				SELECT id FROM tasks
				WHERE priority IS NULL OR priority = ''
				LIMIT ?
			)
		`, models.PriorityMedium, backfillBatchSize)
		if res.Error != nil {
			return nil, res.Error
		}
		report.RecordsChanged += res.RowsAffected
		if res.RowsAffected < int64(backfillBatchSize) {
			break
		}
	}

	logger.Info().
		Int64("tasks_backfilled", report.RecordsChanged).
		Msg("Backfilled task priorities")

	// Indexes next, each attempted independently
	for _, idx := range taskPriorityIndexes {
		result := migrate.IndexResult{Name: idx.name}
		err := db.WithContext(ctx).Exec(idx.stmt).Error
		switch {
		case err == nil:
			result.Outcome = migrate.IndexCreated
		case isAlreadyExists(err):
			result.Outcome = migrate.IndexExists
		default:
			result.Outcome = migrate.IndexFailed
			result.Error = err.Error()
			logger.Error().
				Err(err).
				Str("index", idx.name).
				Msg("Index creation failed, continuing with remaining indexes")
		}
		report.Indexes = append(report.Indexes, result)
	}

	// Validate the resulting state before any success is recorded
	var missing int64
	err := db.WithContext(ctx).
		Model(&models.Task{}).
		Where("priority IS NULL OR priority = ''").
		Count(&missing).Error
	if err != nil {
		return nil, err
	}
	if missing > 0 {
		return nil, utils.WrapPostConditionError("002",
			fmt.Sprintf("%d tasks still have no priority after backfill", missing))
	}

	return report, nil
}

// AddTaskPriorityDown drops the priority indexes and removes the field,
// tolerating indexes that are already gone.
func AddTaskPriorityDown(ctx context.Context, db *gorm.DB, logger zerolog.Logger) (*migrate.Report, error) {
	report := &migrate.Report{}

	for _, idx := range taskPriorityIndexes {
		result := migrate.IndexResult{Name: idx.name}
		err := db.WithContext(ctx).Exec(fmt.Sprintf("DROP INDEX %s", idx.name)).Error
		switch {
		case err == nil:
			result.Outcome = migrate.IndexDropped
		case isNotFound(err):
			result.Outcome = migrate.IndexMissing
		default:
			result.Outcome = migrate.IndexFailed
			result.Error = err.Error()
			logger.Error().
				Err(err).
				Str("index", idx.name).
				Msg("Index drop failed, continuing with remaining indexes")
		}
		report.Indexes = append(report.Indexes, result)
	}

	// Raw DROP COLUMN, symmetric with the ALTER in Up. The gorm migrator
	// rebuilds the whole table on SQLite and mis-maps columns that were
	// appended after table creation.
	if db.WithContext(ctx).Migrator().HasColumn(&models.Task{}, "priority") {
		if err := db.WithContext(ctx).Exec("ALTER TABLE tasks DROP COLUMN priority").Error; err != nil {
			return nil, err
		}
		logger.Info().Msg("Dropped priority column from tasks")
		report.Notes = "priority column dropped"
	}

	return report, nil
}

// isAlreadyExists classifies the duplicate-object errors Postgres and SQLite
// raise for an index that is already present
func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate")
}

// isNotFound classifies the missing-object errors raised for an index that
// was never created or is already gone
func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "no such index")
}
