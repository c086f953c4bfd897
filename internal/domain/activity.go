// Package domain defines the activity records and collaborator contracts shared by the insights service.
package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingUser is returned when a request does not identify the user whose activities are wanted.
	ErrMissingUser = errors.New("user id is required")
	// ErrInvalidActivity wraps validation failures on activities submitted for creation.
	ErrInvalidActivity = errors.New("invalid activity")
)

// ActivityType tags the kind of workout. The set is open; unknown tags are kept verbatim.
type ActivityType string

const (
	ActivityRunning ActivityType = "RUNNING"
	ActivityWalking ActivityType = "WALKING"
	ActivityCycling ActivityType = "CYCLING"
)

// ActivityRecord is a workout as returned by the activity gateway.
type ActivityRecord struct {
	ID             string
	Type           ActivityType
	Duration       float64 // minutes
	CaloriesBurned float64 // kcal
	CreatedAt      time.Time
	StartTime      time.Time
}

// Timestamp returns the instant used to bucket the record: CreatedAt, then
// StartTime, then now when neither is set.
func (r ActivityRecord) Timestamp(now time.Time) time.Time {
	if !r.CreatedAt.IsZero() {
		return r.CreatedAt
	}
	if !r.StartTime.IsZero() {
		return r.StartTime
	}
	return now
}

type wireRecord struct {
	ID             json.RawMessage `json:"id"`
	Type           json.RawMessage `json:"type"`
	Duration       json.RawMessage `json:"duration"`
	CaloriesBurned json.RawMessage `json:"caloriesBurned"`
	CreatedAt      json.RawMessage `json:"createdAt"`
	StartTime      json.RawMessage `json:"startTime"`
}

// UnmarshalJSON decodes leniently: malformed fields fall back to zero values
// and a non-object element decodes to an empty record instead of failing.
func (r *ActivityRecord) UnmarshalJSON(data []byte) error {
	var wire wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		*r = ActivityRecord{}
		return nil
	}

	*r = ActivityRecord{
		ID:             lenientString(wire.ID),
		Type:           ActivityType(strings.ToUpper(lenientString(wire.Type))),
		Duration:       lenientNumber(wire.Duration),
		CaloriesBurned: lenientNumber(wire.CaloriesBurned),
		CreatedAt:      lenientTime(wire.CreatedAt),
		StartTime:      lenientTime(wire.StartTime),
	}
	return nil
}

// MarshalJSON writes the gateway wire shape, omitting unset timestamps.
func (r ActivityRecord) MarshalJSON() ([]byte, error) {
	out := struct {
		ID             string       `json:"id"`
		Type           ActivityType `json:"type"`
		Duration       float64      `json:"duration"`
		CaloriesBurned float64      `json:"caloriesBurned"`
		CreatedAt      *time.Time   `json:"createdAt,omitempty"`
		StartTime      *time.Time   `json:"startTime,omitempty"`
	}{
		ID:             r.ID,
		Type:           r.Type,
		Duration:       r.Duration,
		CaloriesBurned: r.CaloriesBurned,
	}
	if !r.CreatedAt.IsZero() {
		out.CreatedAt = &r.CreatedAt
	}
	if !r.StartTime.IsZero() {
		out.StartTime = &r.StartTime
	}
	return json.Marshal(out)
}

func lenientString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func lenientNumber(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		value = parsed
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0
	}
	return value
}

// Layouts accepted for timestamps. Zone-less values are read in time.Local.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func lenientTime(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var millis int64
		if err := json.Unmarshal(raw, &millis); err == nil && millis > 0 {
			return time.UnixMilli(millis)
		}
		return time.Time{}
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts
	}
	for _, layout := range timeLayouts[1:] {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// NewActivity is the payload for logging a workout through the gateway.
type NewActivity struct {
	Type              ActivityType   `json:"type"`
	Duration          float64        `json:"duration"`
	CaloriesBurned    float64        `json:"caloriesBurned"`
	StartTime         time.Time      `json:"startTime"`
	AdditionalMetrics map[string]any `json:"additionalMetrics,omitempty"`
}

// Validate rejects activities the gateway would refuse.
func (a NewActivity) Validate() error {
	switch {
	case strings.TrimSpace(string(a.Type)) == "":
		return errors.Join(ErrInvalidActivity, errors.New("type is required"))
	case a.Duration <= 0:
		return errors.Join(ErrInvalidActivity, errors.New("duration must be > 0"))
	case a.CaloriesBurned < 0:
		return errors.Join(ErrInvalidActivity, errors.New("caloriesBurned must be >= 0"))
	case a.StartTime.IsZero():
		return errors.Join(ErrInvalidActivity, errors.New("startTime is required"))
	}
	return nil
}

// Recommendation is the AI generated advice attached to an activity.
type Recommendation struct {
	ID             string    `json:"id"`
	ActivityID     string    `json:"activityId"`
	ActivityType   string    `json:"activityType"`
	Recommendation string    `json:"recommendation"`
	Improvements   []string  `json:"improvements"`
	Suggestions    []string  `json:"suggestions"`
	Safety         []string  `json:"safety"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Request identifies whose activities are wanted and carries the caller's
// credentials for forwarding upstream.
type Request struct {
	TenantID string
	UserID   string
	Token    string
}

// Validate ensures the request names a user.
func (r Request) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrMissingUser
	}
	return nil
}

// Source fetches a user's activity collection.
type Source interface {
	ListActivities(ctx context.Context, req Request) ([]ActivityRecord, error)
}
