// Package models contains data structures for the IT request store.
package models

import "time"

// Request is the authoritative master row for an IT request.
type Request struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	UserID      *uint             `gorm:"index" json:"user_id"`
	Username    string            `gorm:"size:255;not null" json:"username"`
	RequestText string            `gorm:"type:text;not null" json:"request_text"`
	Reason      *string           `gorm:"type:text" json:"reason"`
	Status      Status            `gorm:"type:varchar(50);not null;default:'new';index" json:"status"`
	Definition  *StatusDefinition `gorm:"foreignKey:Status;references:StatusName" json:"-"`
	CreatedAt   time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TableName returns the master table name.
func (Request) TableName() string {
	return "requests"
}

// StatusDefinition is a row of the status lookup table.
type StatusDefinition struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	StatusName   Status    `gorm:"type:varchar(50);uniqueIndex;not null" json:"status_name"`
	DisplayLabel string    `gorm:"size:100;not null" json:"display_label"`
	CreatedAt    time.Time `json:"-"`
}

// TableName returns the status lookup table name.
func (StatusDefinition) TableName() string {
	return "statuses"
}

// MirrorRow is a denormalized copy of a master row stored in the partition named by its status.
// It has no TableName: the partition is always chosen explicitly with PartitionTable.
type MirrorRow struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RequestID   uint      `gorm:"not null" json:"request_id"`
	UserID      *uint     `json:"user_id"`
	Username    string    `gorm:"size:255;not null" json:"username"`
	RequestText string    `gorm:"type:text;not null" json:"request_text"`
	Reason      *string   `gorm:"type:text" json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PartitionTable returns the mirror table holding requests in status s.
func PartitionTable(s Status) string {
	return string(s)
}

// NewMirrorRow derives a mirror row from the current master row.
func NewMirrorRow(r *Request) MirrorRow {
	return MirrorRow{
		RequestID:   r.ID,
		UserID:      r.UserID,
		Username:    r.Username,
		RequestText: r.RequestText,
		Reason:      r.Reason,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// SameContent reports whether the mirror carries the request's business content.
func (m MirrorRow) SameContent(r *Request) bool {
	return m.RequestID == r.ID &&
		equalPtr(m.UserID, r.UserID) &&
		m.Username == r.Username &&
		m.RequestText == r.RequestText &&
		equalPtr(m.Reason, r.Reason)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// PartitionCounts holds row counts of the master table and each mirror partition.
type PartitionCounts struct {
	Requests   int64            `json:"requests" yaml:"requests"`
	Partitions map[Status]int64 `json:"partitions" yaml:"partitions"`
	// ByStatus counts master rows per status, the value each partition should hold.
	ByStatus map[Status]int64 `json:"by_status" yaml:"by_status"`
}

// Drifted reports whether any partition disagrees with the master's partitioning.
func (c PartitionCounts) Drifted() bool {
	for _, st := range Statuses {
		if c.Partitions[st] != c.ByStatus[st] {
			return true
		}
	}
	return false
}
