package models

// Counter holds the last issued value of a named sequence. One row exists
// per logical entity type (e.g. "tasks"); a value of 0 means the sequence
// has never been allocated and the next value is 1.
type Counter struct {
	Name  string `gorm:"primaryKey" json:"name"`
	Value int64  `gorm:"not null;default:0" json:"value"`
}

// TableName ensures consistent table naming
func (Counter) TableName() string {
	return "counters"
}
