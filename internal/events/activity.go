// Package events defines the activity service event payloads consumed for
// cache invalidation.
package events

import "time"

// ActivityCreated represents the message emitted when a new activity is accepted.
type ActivityCreated struct {
	ActivityID     string    `json:"activity_id"`
	TenantID       string    `json:"tenant_id"`
	UserID         string    `json:"user_id"`
	ActivityType   string    `json:"activity_type"`
	StartedAt      time.Time `json:"started_at"`
	DurationMin    int       `json:"duration_min"`
	CaloriesBurned float64   `json:"calories_burned,omitempty"`
	Source         string    `json:"source"`
	Version        string    `json:"version"`
}

// ActivityStateChanged tracks state transitions (pending, synced, failed).
type ActivityStateChanged struct {
	ActivityID string    `json:"activity_id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	State      string    `json:"state"`
	OccurredAt time.Time `json:"occurred_at"`
	Reason     string    `json:"reason,omitempty"`
}
