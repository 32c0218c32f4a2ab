package migrate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/taskvault/taskvault/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	return db
}

func setupRunner(t *testing.T) (*Runner, *gorm.DB) {
	db := setupTestDB(t)
	return NewRunner(db, zerolog.New(nil).Level(zerolog.Disabled)), db
}

// stub builds a descriptor that records its up/down invocations
func stub(id string, calls *[]string, upErr, downErr error) Descriptor {
	return Descriptor{
		ID:   id,
		Name: "migration_" + id,
		Up: func(ctx context.Context, db *gorm.DB, logger zerolog.Logger) (*Report, error) {
			*calls = append(*calls, "up:"+id)
			if upErr != nil {
				return nil, upErr
			}
			return &Report{RecordsChanged: 1}, nil
		},
		Down: func(ctx context.Context, db *gorm.DB, logger zerolog.Logger) (*Report, error) {
			*calls = append(*calls, "down:"+id)
			if downErr != nil {
				return nil, downErr
			}
			return &Report{}, nil
		},
	}
}

func ledgerEntry(t *testing.T, db *gorm.DB, id string) models.MigrationRecord {
	var rec models.MigrationRecord
	require.NoError(t, db.First(&rec, "id = ?", id).Error)
	return rec
}

func TestRunner_RunAll_AppliesInIDOrder(t *testing.T) {
	runner, db := setupRunner(t)
	var calls []string

	// Registered out of order on purpose
	runner.Register(
		stub("002", &calls, nil, nil),
		stub("001", &calls, nil, nil),
		stub("003", &calls, nil, nil),
	)

	summary, err := runner.RunAll(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"up:001", "up:002", "up:003"}, calls)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Run)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.True(t, summary.Success)

	for _, id := range []string{"001", "002", "003"} {
		rec := ledgerEntry(t, db, id)
		assert.Equal(t, models.MigrationStatusCompleted, rec.Status)
		assert.NotEmpty(t, rec.Result)
		assert.Empty(t, rec.Error)
	}
}

func TestRunner_RunAll_Idempotent(t *testing.T) {
	runner, _ := setupRunner(t)
	var calls []string
	runner.Register(stub("001", &calls, nil, nil), stub("002", &calls, nil, nil))

	first, err := runner.RunAll(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Run)

	second, err := runner.RunAll(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Run)
	assert.Equal(t, 2, second.Skipped)
	assert.True(t, second.Success)
	for _, res := range second.Results {
		assert.Equal(t, OutcomeSkipped, res.Outcome)
	}

	// Up was never re-invoked
	assert.Len(t, calls, 2)
}

func TestRunner_RunAll_FailFast(t *testing.T) {
	runner, db := setupRunner(t)
	var calls []string
	boom := errors.New("backfill exploded")

	runner.Register(
		stub("001", &calls, nil, nil),
		stub("002", &calls, boom, nil),
		stub("003", &calls, nil, nil),
	)

	summary, err := runner.RunAll(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"up:001", "up:002"}, calls, "003 must never be attempted")
	assert.Equal(t, 1, summary.Run)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.Success)

	rec := ledgerEntry(t, db, "002")
	assert.Equal(t, models.MigrationStatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "backfill exploded")

	var count int64
	require.NoError(t, db.Model(&models.MigrationRecord{}).Where("id = ?", "003").Count(&count).Error)
	assert.Equal(t, int64(0), count, "interrupted migration leaves no ledger entry")
}

func TestRunner_RunAll_ContinueOnError(t *testing.T) {
	runner, _ := setupRunner(t)
	var calls []string

	runner.Register(
		stub("001", &calls, nil, nil),
		stub("002", &calls, errors.New("boom"), nil),
		stub("003", &calls, nil, nil),
	)

	summary, err := runner.RunAll(context.Background(), RunOptions{ContinueOnError: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"up:001", "up:002", "up:003"}, calls)
	assert.Equal(t, 2, summary.Run)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.Success, "overall success still reflects the failure")
}

func TestRunner_RunAll_TargetIsExclusive(t *testing.T) {
	runner, _ := setupRunner(t)
	var calls []string

	runner.Register(
		stub("001", &calls, nil, nil),
		stub("002", &calls, nil, nil),
		stub("003", &calls, nil, nil),
	)

	summary, err := runner.RunAll(context.Background(), RunOptions{TargetID: "002"})
	require.NoError(t, err)

	assert.Equal(t, []string{"up:001"}, calls)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Run)
	assert.True(t, summary.Success)
}

func TestRunner_RunAll_DryRun(t *testing.T) {
	runner, db := setupRunner(t)
	var calls []string
	runner.Register(stub("001", &calls, nil, nil), stub("002", &calls, nil, nil))

	summary, err := runner.RunAll(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)

	assert.Empty(t, calls, "dry run must not invoke any migration")
	assert.Equal(t, 0, summary.Run)
	assert.True(t, summary.Success)
	for _, res := range summary.Results {
		assert.Equal(t, OutcomeDryRun, res.Outcome)
	}

	assert.False(t, db.Migrator().HasTable(&models.MigrationRecord{}),
		"dry run on a fresh store must not even create the ledger table")
}

func TestRunner_ReadOnlyPathsLeaveFreshStoreUntouched(t *testing.T) {
	runner, db := setupRunner(t)
	var calls []string
	runner.Register(stub("001", &calls, nil, nil), stub("002", &calls, nil, nil))

	report, err := runner.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Applied)
	assert.Equal(t, 2, report.Pending)

	rollback, err := runner.Rollback(context.Background(), RollbackOptions{Steps: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, rollback.RolledBack)
	assert.True(t, rollback.Success)

	assert.Empty(t, calls)
	assert.False(t, db.Migrator().HasTable(&models.MigrationRecord{}),
		"status and rollback must not create tables on a fresh store")
}

func TestRunner_RunAll_RetryAfterFailureReplacesEntry(t *testing.T) {
	runner, db := setupRunner(t)
	var calls []string
	runner.Register(stub("001", &calls, errors.New("flaky"), nil))

	summary, err := runner.RunAll(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.False(t, summary.Success)
	assert.Equal(t, models.MigrationStatusFailed, ledgerEntry(t, db, "001").Status)

	// Fixed code ships; the retry succeeds and replaces the failed row
	retry := NewRunner(db, zerolog.New(nil).Level(zerolog.Disabled))
	retry.Register(stub("001", &calls, nil, nil))

	summary, err = retry.RunAll(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.True(t, summary.Success)

	rec := ledgerEntry(t, db, "001")
	assert.Equal(t, models.MigrationStatusCompleted, rec.Status)
	assert.Empty(t, rec.Error, "completed entry must not merge in the old failure")
}

func TestRunner_Rollback_LastAppliedFirst(t *testing.T) {
	runner, db := setupRunner(t)
	var calls []string
	runner.Register(stub("001", &calls, nil, nil), stub("002", &calls, nil, nil))

	_, err := runner.RunAll(context.Background(), RunOptions{})
	require.NoError(t, err)
	calls = nil

	summary, err := runner.Rollback(context.Background(), RollbackOptions{Steps: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"down:002"}, calls, "last-applied migration is reverted first")
	assert.Equal(t, 1, summary.RolledBack)
	assert.True(t, summary.Success)

	rec := ledgerEntry(t, db, "002")
	assert.Equal(t, models.MigrationStatusRolledBack, rec.Status)
	assert.NotNil(t, rec.RolledBackAt)

	assert.Equal(t, models.MigrationStatusCompleted, ledgerEntry(t, db, "001").Status)
}

func TestRunner_Rollback_DefaultsToOneStep(t *testing.T) {
	runner, _ := setupRunner(t)
	var calls []string
	runner.Register(stub("001", &calls, nil, nil), stub("002", &calls, nil, nil))

	_, err := runner.RunAll(context.Background(), RunOptions{})
	require.NoError(t, err)
	calls = nil

	summary, err := runner.Rollback(context.Background(), RollbackOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RolledBack)
	assert.Equal(t, []string{"down:002"}, calls)
}

func TestRunner_Rollback_TargetIsExclusive(t *testing.T) {
	runner, db := setupRunner(t)
	var calls []string
	runner.Register(
		stub("001", &calls, nil, nil),
		stub("002", &calls, nil, nil),
		stub("003", &calls, nil, nil),
	)

	_, err := runner.RunAll(context.Background(), RunOptions{})
	require.NoError(t, err)
	calls = nil

	summary, err := runner.Rollback(context.Background(), RollbackOptions{TargetID: "001"})
	require.NoError(t, err)

	assert.Equal(t, []string{"down:003", "down:002"}, calls)
	assert.Equal(t, 2, summary.RolledBack)
	assert.Equal(t, models.MigrationStatusCompleted, ledgerEntry(t, db, "001").Status)
}

func TestRunner_Rollback_StopsOnFailure(t *testing.T) {
	runner, db := setupRunner(t)
	var calls []string
	runner.Register(
		stub("001", &calls, nil, nil),
		stub("002", &calls, nil, errors.New("cannot restore")),
	)

	_, err := runner.RunAll(context.Background(), RunOptions{})
	require.NoError(t, err)
	calls = nil

	summary, err := runner.Rollback(context.Background(), RollbackOptions{Steps: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"down:002"}, calls, "rollback never continues past a failure")
	assert.Equal(t, 0, summary.RolledBack)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.Success)
	assert.Equal(t, OutcomeRollbackFailed, summary.Results[0].Outcome)

	// The migration is still applied; only the error detail was recorded
	rec := ledgerEntry(t, db, "002")
	assert.Equal(t, models.MigrationStatusCompleted, rec.Status)
	assert.Contains(t, rec.Error, "cannot restore")
}

func TestRunner_Rollback_MissingDescriptorSkipped(t *testing.T) {
	runner, db := setupRunner(t)
	var calls []string
	runner.Register(stub("001", &calls, nil, nil))

	_, err := runner.RunAll(context.Background(), RunOptions{})
	require.NoError(t, err)
	calls = nil

	// An applied migration whose code was deleted afterwards
	orphan := models.MigrationRecord{
		ID:        "999",
		Name:      "deleted_migration",
		Status:    models.MigrationStatusCompleted,
		AppliedAt: time.Now().UTC().Add(time.Minute),
	}
	require.NoError(t, db.Create(&orphan).Error)

	summary, err := runner.Rollback(context.Background(), RollbackOptions{Steps: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped, "missing descriptor is skipped, not fatal")
	assert.Equal(t, 1, summary.RolledBack, "rollback continues past the orphan")
	assert.Equal(t, []string{"down:001"}, calls)
	assert.True(t, summary.Success)
	assert.Contains(t, summary.Results[0].Message, "999")
}

func TestRunner_Status(t *testing.T) {
	runner, _ := setupRunner(t)
	var calls []string
	runner.Register(
		stub("001", &calls, nil, nil),
		stub("002", &calls, nil, nil),
		stub("003", &calls, nil, nil),
	)

	_, err := runner.RunAll(context.Background(), RunOptions{TargetID: "003"})
	require.NoError(t, err)

	report, err := runner.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 1, report.Pending)
	require.Len(t, report.Migrations, 3)
	assert.True(t, report.Migrations[0].Applied)
	assert.NotNil(t, report.Migrations[0].AppliedAt)
	assert.False(t, report.Migrations[2].Applied)
	assert.Nil(t, report.Migrations[2].AppliedAt)
}
