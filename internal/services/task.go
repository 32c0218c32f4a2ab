package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/taskvault/taskvault/internal/models"
	"github.com/taskvault/taskvault/internal/sequence"
	"github.com/taskvault/taskvault/internal/utils"
)

// TaskService handles task persistence. Every new task gets its number from
// the sequence allocator before the row is first written; an allocator error
// aborts creation so no task is ever persisted without an ID.
type TaskService struct {
	db        *gorm.DB
	allocator *sequence.Allocator
	logger    zerolog.Logger
}

// NewTaskService creates a new instance of TaskService
func NewTaskService(db *gorm.DB, allocator *sequence.Allocator, logger zerolog.Logger) *TaskService {
	return &TaskService{
		db:        db,
		allocator: allocator,
		logger:    logger,
	}
}

// CreateRequest represents a request to create a task
type CreateRequest struct {
	Title    string
	Details  string
	Priority string
	Tags     []string
	Metadata map[string]interface{}
	DueAt    *time.Time
}

// Create mints a sequence number and persists a new task
func (s *TaskService) Create(ctx context.Context, req CreateRequest) (*models.Task, error) {
	if req.Title == "" {
		return nil, utils.WrapInvalidArgumentError("title", "field is required")
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	seqID, err := s.allocator.NextValue(ctx, sequence.SequenceTasks)
	if err != nil {
		return nil, err
	}

	var metadata json.RawMessage
	if req.Metadata != nil {
		data, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, utils.WrapInvalidArgumentError("metadata", "must be JSON-serializable")
		}
		metadata = data
	}

	task := &models.Task{
		SeqID:    seqID,
		Title:    req.Title,
		Details:  req.Details,
		Status:   models.StatusOpen,
		Priority: priority,
		Tags:     req.Tags,
		Metadata: metadata,
		DueAt:    req.DueAt,
	}

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		// The minted value is discarded; a retry allocates a fresh one
		return nil, utils.WrapStoreError("create task", err)
	}

	s.logger.Info().
		Int64("seq_id", task.SeqID).
		Str("title", task.Title).
		Msg("Created task")

	return task, nil
}

// GetBySeqID fetches a task by its allocated sequence number
func (s *TaskService) GetBySeqID(ctx context.Context, seqID int64) (*models.Task, error) {
	if seqID <= 0 {
		return nil, utils.WrapInvalidArgumentError("seq_id", "must be positive")
	}

	var task models.Task
	err := s.db.WithContext(ctx).First(&task, "seq_id = ?", seqID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, utils.WrapStoreError("get task", err)
	}

	return &task, nil
}

// List returns tasks ordered by sequence number, newest first
func (s *TaskService) List(ctx context.Context, limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 50
	}

	var tasks []models.Task
	err := s.db.WithContext(ctx).
		Order("seq_id DESC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, utils.WrapStoreError("list tasks", err)
	}

	return tasks, nil
}
