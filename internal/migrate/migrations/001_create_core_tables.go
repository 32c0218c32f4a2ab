package migrations

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/taskvault/taskvault/internal/migrate"
	"github.com/taskvault/taskvault/internal/models"
)

// CreateCoreTablesUp creates the tasks and counters tables
func CreateCoreTablesUp(ctx context.Context, db *gorm.DB, logger zerolog.Logger) (*migrate.Report, error) {
	logger.Info().Msg("Creating core tables")

	if err := db.WithContext(ctx).AutoMigrate(&models.Task{}, &models.Counter{}); err != nil {
		return nil, err
	}

	return &migrate.Report{Notes: "tasks and counters tables created"}, nil
}

// CreateCoreTablesDown drops the tasks and counters tables
func CreateCoreTablesDown(ctx context.Context, db *gorm.DB, logger zerolog.Logger) (*migrate.Report, error) {
	logger.Info().Msg("Dropping core tables")

	migrator := db.WithContext(ctx).Migrator()
	for _, model := range []interface{}{&models.Task{}, &models.Counter{}} {
		if !migrator.HasTable(model) {
			continue
		}
		if err := migrator.DropTable(model); err != nil {
			return nil, err
		}
	}

	return &migrate.Report{Notes: "tasks and counters tables dropped"}, nil
}
