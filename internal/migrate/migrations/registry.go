// Package migrations holds the compiled registry of migration descriptors.
// Descriptors are assembled here at build time and ordered by zero-padded
// id; nothing is discovered from the filesystem at runtime.
package migrations

import (
	"github.com/taskvault/taskvault/internal/migrate"
)

// All returns every registered migration descriptor
func All() []migrate.Descriptor {
	return []migrate.Descriptor{
		{
			ID:          "001",
			Name:        "create_core_tables",
			Description: "Create the tasks and counters tables",
			Version:     "1.0.0",
			Up:          CreateCoreTablesUp,
			Down:        CreateCoreTablesDown,
		},
		{
			ID:          "002",
			Name:        "add_task_priority",
			Description: "Add and backfill the task priority field with its indexes",
			Version:     "1.1.0",
			Up:          AddTaskPriorityUp,
			Down:        AddTaskPriorityDown,
		},
		{
			ID:          "003",
			Name:        "seed_sequence_counters",
			Description: "Seed the task sequence counter from existing data",
			Version:     "1.1.0",
			Up:          SeedSequenceCountersUp,
			Down:        SeedSequenceCountersDown,
		},
	}
}
