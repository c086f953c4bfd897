package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"example.com/fittrack/internal/events"
)

// Event types that change a user's activity collection.
const (
	EventActivityCreated      = "activity.created"
	EventActivityStateChanged = "activity.state_changed"
)

// Invalidator drops a user's cached activity collection.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID, userID string) error
}

// InvalidationHandler invalidates cached collections when the activity
// service accepts or transitions an activity.
type InvalidationHandler struct {
	invalidator Invalidator
}

// NewInvalidationHandler constructs a handler that forwards to invalidator.
func NewInvalidationHandler(invalidator Invalidator) Handler {
	return &InvalidationHandler{invalidator: invalidator}
}

// Handle ignores event types it does not know about.
func (h *InvalidationHandler) Handle(ctx context.Context, msg Message) error {
	var tenantID, userID string

	switch msg.EventType {
	case EventActivityCreated:
		var evt events.ActivityCreated
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, msg.EventType, err)
		}
		tenantID, userID = evt.TenantID, evt.UserID
	case EventActivityStateChanged:
		var evt events.ActivityStateChanged
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, msg.EventType, err)
		}
		tenantID, userID = evt.TenantID, evt.UserID
	default:
		return nil
	}

	if strings.TrimSpace(tenantID) == "" {
		tenantID = msg.TenantID
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: %s without user_id", ErrMalformedEvent, msg.EventType)
	}

	if err := h.invalidator.Invalidate(ctx, tenantID, userID); err != nil {
		return err
	}
	recordInvalidated(msg.EventType)
	return nil
}
