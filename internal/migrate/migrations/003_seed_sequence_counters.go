package migrations

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/taskvault/taskvault/internal/migrate"
	"github.com/taskvault/taskvault/internal/models"
	"github.com/taskvault/taskvault/internal/sequence"
)

// SeedSequenceCountersUp primes the task sequence counter from the highest
// seq_id already present, so that allocation starts above any pre-existing
// data. A counter that is already at or ahead of the data is left alone;
// the counter never moves backwards here.
func SeedSequenceCountersUp(ctx context.Context, db *gorm.DB, logger zerolog.Logger) (*migrate.Report, error) {
	var maxSeq int64
	row := db.WithContext(ctx).
		Model(&models.Task{}).
		Select("COALESCE(MAX(seq_id), 0)").
		Row()
	if err := row.Scan(&maxSeq); err != nil {
		return nil, err
	}

	allocator := sequence.NewAllocator(db, logger)

	current, err := allocator.CurrentValue(ctx, sequence.SequenceTasks)
	if err != nil {
		return nil, err
	}

	if current >= maxSeq {
		return &migrate.Report{
			Notes: fmt.Sprintf("tasks counter already at %d, nothing to seed", current),
		}, nil
	}

	if err := allocator.Reset(ctx, sequence.SequenceTasks, maxSeq); err != nil {
		return nil, err
	}

	logger.Info().
		Int64("from", current).
		Int64("to", maxSeq).
		Msg("Seeded tasks sequence counter")

	return &migrate.Report{
		RecordsChanged: 1,
		Notes:          fmt.Sprintf("tasks counter seeded to %d", maxSeq),
	}, nil
}

// SeedSequenceCountersDown removes the seeded counter row
func SeedSequenceCountersDown(ctx context.Context, db *gorm.DB, logger zerolog.Logger) (*migrate.Report, error) {
	res := db.WithContext(ctx).
		Where("name = ?", sequence.SequenceTasks).
		Delete(&models.Counter{})
	if res.Error != nil {
		return nil, res.Error
	}

	logger.Info().
		Int64("rows", res.RowsAffected).
		Msg("Removed tasks sequence counter")

	return &migrate.Report{
		RecordsChanged: res.RowsAffected,
		Notes:          "tasks counter removed",
	}, nil
}
