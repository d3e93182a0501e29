package domain

import "time"

// Timestamps provides common created/updated fields for stored entities.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch updates the UpdatedAt timestamp to the given instant.
// Call this whenever the underlying entity changes.
func (t *Timestamps) Touch(now time.Time) {
	t.UpdatedAt = now
}

// InitTimestamps sets both CreatedAt and UpdatedAt to the given instant.
// Call this when creating a new entity.
func (t *Timestamps) InitTimestamps(now time.Time) {
	t.CreatedAt = now
	t.UpdatedAt = now
}
