package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/taskvault/taskvault/internal/models"
	"github.com/taskvault/taskvault/internal/sequence"
	"github.com/taskvault/taskvault/internal/utils"
)

// setupTaskService creates a task service over an in-memory SQLite database
func setupTaskService(t *testing.T) *TaskService {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Task{}, &models.Counter{}))

	disabled := zerolog.New(nil).Level(zerolog.Disabled)
	allocator := sequence.NewAllocator(db, disabled)
	return NewTaskService(db, allocator, disabled)
}

func TestTaskService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Mints increasing sequence numbers", func(t *testing.T) {
		service := setupTaskService(t)

		for want := int64(1); want <= 3; want++ {
			task, err := service.Create(ctx, CreateRequest{Title: "write more tests"})
			require.NoError(t, err)
			assert.Equal(t, want, task.SeqID)
			assert.Equal(t, models.StatusOpen, task.Status)
			assert.Equal(t, models.PriorityMedium, task.Priority)
		}
	})

	t.Run("Title is required", func(t *testing.T) {
		service := setupTaskService(t)

		_, err := service.Create(ctx, CreateRequest{})
		assert.Error(t, err)
		assert.True(t, utils.IsInvalidArgument(err))
	})

	t.Run("Explicit priority is kept", func(t *testing.T) {
		service := setupTaskService(t)

		task, err := service.Create(ctx, CreateRequest{
			Title:    "pager is on fire",
			Priority: models.PriorityHigh,
			Tags:     []string{"ops", "urgent"},
			Metadata: map[string]interface{}{"source": "test"},
		})
		require.NoError(t, err)
		assert.Equal(t, models.PriorityHigh, task.Priority)
		assert.NotEmpty(t, task.Metadata)
	})
}

func TestTaskService_GetBySeqID(t *testing.T) {
	ctx := context.Background()
	service := setupTaskService(t)

	created, err := service.Create(ctx, CreateRequest{Title: "findable"})
	require.NoError(t, err)

	t.Run("Returns the task", func(t *testing.T) {
		task, err := service.GetBySeqID(ctx, created.SeqID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, task.ID)
		assert.Equal(t, "findable", task.Title)
	})

	t.Run("Missing seq id", func(t *testing.T) {
		_, err := service.GetBySeqID(ctx, 9999)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("Non-positive seq id is rejected", func(t *testing.T) {
		_, err := service.GetBySeqID(ctx, 0)
		assert.True(t, utils.IsInvalidArgument(err))
	})
}

func TestTaskService_List(t *testing.T) {
	ctx := context.Background()
	service := setupTaskService(t)

	for i := 0; i < 5; i++ {
		_, err := service.Create(ctx, CreateRequest{Title: "task"})
		require.NoError(t, err)
	}

	tasks, err := service.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	// Newest first
	assert.Equal(t, int64(5), tasks[0].SeqID)
	assert.Equal(t, int64(4), tasks[1].SeqID)
	assert.Equal(t, int64(3), tasks[2].SeqID)
}
