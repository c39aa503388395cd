// Package audit records what the oracle did without recording who it was done for.
// Events never carry identity attributes, signatures or challenge material.
package audit

import (
	"context"
	"time"
)

// EventType names an auditable action.
type EventType string

const (
	EventSmartIDInitiated   EventType = "smartid_initiated"
	EventSmartIDCompleted   EventType = "smartid_completed"
	EventSmartIDFailed      EventType = "smartid_failed"
	EventMockIdentityIssued EventType = "mock_identity_issued"
	EventSanctionsScreened  EventType = "sanctions_screened"
	EventUniquenessIssued   EventType = "uniqueness_issued"
	EventCorrelationCreated EventType = "correlation_created"
	EventCorrelationFilled  EventType = "correlation_fulfilled"
	EventPasskeyInserted    EventType = "passkey_inserted"
)

// Outcome is the result of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePending Outcome = "pending"
)

// Event is emitted from services. Keep it transport-agnostic so sinks can fan out.
type Event struct {
	Type       EventType `json:"type"`
	Outcome    Outcome   `json:"outcome"`
	Namespace  string    `json:"namespace,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Sink persists or forwards events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Emitter is what services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
