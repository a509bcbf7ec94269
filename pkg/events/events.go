package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the identity service
const (
	TypeUserProvisioned     = "identity.user.provisioned"
	TypeOrganizationCreated = "identity.organization.created"
	TypeMembershipCreated   = "identity.membership.created"
	TypeRoleAssigned        = "identity.role.assigned"
	TypeSessionIssued       = "identity.session.issued"
	TypeSessionRefreshed    = "identity.session.refreshed"
	TypeSessionRevoked      = "identity.session.revoked"
	TypeOrganizationSwitch  = "identity.organization.switched"
)

// Event is a single identity domain event
type Event struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	OccurredAt     time.Time              `json:"occurred_at"`
	UserID         string                 `json:"user_id,omitempty"`
	OrganizationID string                 `json:"organization_id,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
}

// New creates an event with a fresh ID and the given timestamp
func New(eventType, userID, orgID string, occurredAt time.Time, data map[string]interface{}) Event {
	return Event{
		ID:             uuid.New().String(),
		Type:           eventType,
		OccurredAt:     occurredAt.UTC(),
		UserID:         userID,
		OrganizationID: orgID,
		Data:           data,
	}
}

// Sink receives identity events. Publication is best effort: callers must
// treat a sink failure as non-fatal and never roll back committed identity
// state because of it.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, event Event) error

// Publish calls the wrapped function
func (f SinkFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}
