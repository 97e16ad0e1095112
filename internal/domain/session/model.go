package session

import "time"

// Session is a named inspection unit that owns its own contiguous photo
// numbering. SequenceCounter is the next number to assign.
type Session struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CreatedAt       time.Time `json:"created_at"`
	LastUsedAt      time.Time `json:"last_used_at"`
	SequenceCounter int64     `json:"sequence_counter"`
	IsActive        bool      `json:"is_active"`
}

// Summary is a session with its live photo count, for listings.
type Summary struct {
	Session
	PhotoCount int `json:"photo_count"`
}
