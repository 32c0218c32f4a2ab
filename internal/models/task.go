package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Task represents a stored task item in the database. SeqID is the
// human-facing task number minted by the sequence allocator before the row
// is first persisted; it is unique and strictly increasing per store.
type Task struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	SeqID     int64           `gorm:"uniqueIndex;not null" json:"seq_id"`
	Title     string          `gorm:"type:text;not null" json:"title"`
	Details   string          `gorm:"type:text" json:"details,omitempty"`
	Status    string          `gorm:"index;default:'open'" json:"status"`
	Priority  string          `gorm:"index;default:'medium'" json:"priority"`
	Tags      pq.StringArray  `gorm:"type:text" json:"tags"`
	Metadata  json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	DueAt     *time.Time      `gorm:"index" json:"due_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Valid task statuses
const (
	StatusOpen      = "open"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusArchived  = "archived"
)

// Valid task priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// TableName ensures consistent table naming
func (Task) TableName() string {
	return "tasks"
}

// Validate checks if the task has valid Status and Priority values
func (t *Task) Validate() error {
	switch t.Status {
	case StatusOpen, StatusActive, StatusCompleted, StatusArchived:
		// Valid status
	default:
		return errors.New("invalid task status: must be one of open, active, completed, or archived")
	}

	switch t.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
		// Valid priority
	default:
		return errors.New("invalid task priority: must be one of low, medium, or high")
	}

	if t.Title == "" {
		return errors.New("title cannot be empty")
	}

	if t.SeqID <= 0 {
		return errors.New("seq_id must be allocated before a task is persisted")
	}

	return nil
}

// BeforeCreate runs validation before saving a new task
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	return t.Validate()
}
