// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"callsync_agent/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Call Domain Events
// =============================================================================

// CallEnded is published when the device shim reports a finished call.
// Competing reports are ordered by the call-end flow itself, which assigns
// its own sequence on receipt and drops results for superseded reports.
type CallEnded struct {
	BaseEvent
	PhoneNumber     string `json:"phoneNumber"`
	CallType        string `json:"callType"`
	DurationSeconds int    `json:"durationSeconds"`
	DeviceID        string `json:"deviceId"`
}

func (e CallEnded) EventName() string { return "call.ended" }

// CallPosted is published after a call record was accepted by the backend.
type CallPosted struct {
	BaseEvent
	CallID string `json:"callId"`
	LeadID string `json:"leadId"`
}

func (e CallPosted) EventName() string { return "call.posted" }

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadsRefreshed is published after the lead directory replaced its contents
// with a fresh page walk from the backend.
type LeadsRefreshed struct {
	BaseEvent
	Count int `json:"count"`
}

func (e LeadsRefreshed) EventName() string { return "leads.refreshed" }

// LeadAssigned is published when the acting user claims a lead.
type LeadAssigned struct {
	BaseEvent
	LeadID      string `json:"leadId"`
	PhoneNumber string `json:"phoneNumber"`
}

func (e LeadAssigned) EventName() string { return "lead.assigned" }
