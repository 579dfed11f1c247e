package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind enumerates lifecycle event identifiers.
type Kind string

const (
	KindCreated      Kind = "created"
	KindTransitioned Kind = "transitioned"
	KindCommented    Kind = "commented"
	KindEscalated    Kind = "escalated"
	KindStepApproved Kind = "step_approved"
)

// Event is a lifecycle notification. Detail carries kind-specific fields
// such as from/to statuses or the escalated approver role.
type Event struct {
	ID         string         `json:"id"`
	TicketID   string         `json:"ticket_id"`
	Kind       Kind           `json:"kind"`
	Actor      string         `json:"actor"`
	Timestamp  time.Time      `json:"timestamp"`
	Detail     map[string]any `json:"detail,omitempty"`
	Recipients []string       `json:"recipients,omitempty"`
}

// NewEvent stamps a fresh event id.
func NewEvent(kind Kind, ticketID, actor string, at time.Time, detail map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		Kind:      kind,
		Actor:     actor,
		Timestamp: at,
		Detail:    detail,
	}
}

// RoutingKey is the topic used by broker sinks.
func (e Event) RoutingKey() string {
	return "ticket." + string(e.Kind)
}
