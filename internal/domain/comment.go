package domain

import "time"

// Comment captures an entry in a ticket's append-only thread.
type Comment struct {
	ID        string
	Author    string
	Text      string
	System    bool
	Change    *StatusChange
	CreatedAt time.Time
}

// StatusChange is attached to system comments written by transitions.
type StatusChange struct {
	PreviousStatus TicketStatus
	NewStatus      TicketStatus
	Actor          string
	At             time.Time
}
