package store

import "time"

type User struct {
	ID             int64
	Email          string
	HashedPassword string
	DisplayName    *string
	IsActive       bool
	IsSuperuser    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Emoji is one catalog entry. Keywords holds the canonical sorted
// comma-joined keyword string. SubmitterID is nil for legacy rows whose
// ownership is derived from SubmitterEmail at query time, and for seed rows
// that nobody owns.
type Emoji struct {
	ID             int64
	Symbol         string
	Title          string
	Description    *string
	Category       *string
	Keywords       string
	SubmitterEmail *string
	SubmitterID    *int64
	CreatedAt      time.Time
}
