// Package transport defines the wire types for the call events API.
package transport

import "callsync_agent/internal/reconcile"

// CallEndedRequest is the device shim's report of a finished call.
type CallEndedRequest struct {
	PhoneNumber     string `json:"phoneNumber" validate:"required,min=3,max=20"`
	DurationSeconds int    `json:"durationSeconds" validate:"min=0"`
	CallType        string `json:"callType" validate:"required,oneof=incoming outgoing missed rejected"`
}

// CallEndedResponse returns the reconciliation outcome for the report.
type CallEndedResponse struct {
	Result reconcile.CallEndSnapshot `json:"result"`
}

// StatusResponse is the agent's reconciliation status.
type StatusResponse struct {
	CallEnd     reconcile.CallEndSnapshot `json:"callEnd"`
	LeadCount   int                       `json:"leadCount"`
	WatermarkMs int64                     `json:"watermarkMs"`
}
