// Package devicelog defines the device call-log contract. The concrete
// provider is the device integration shim; the agent only consumes this
// interface.
package devicelog

import "context"

// Direction classifies a device call record.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionMissed   Direction = "missed"
	DirectionRejected Direction = "rejected"
)

// Entry is one device call record. Entries are immutable once read from the
// device; derived fields (matched lead, assignment flags) are annotated on
// copies, never written back.
type Entry struct {
	// ID uniquely identifies the call on the device, derived from the device
	// timestamp.
	ID string `json:"id"`
	// PhoneNumber is the raw, unnormalized number as the device reports it.
	PhoneNumber string `json:"phoneNumber"`
	// Direction is the call direction.
	Direction Direction `json:"direction"`
	// DurationSeconds is the call duration in seconds.
	DurationSeconds int `json:"durationSeconds"`
	// Timestamp is the call start in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
	// SIMSlot is the SIM slot index the call used.
	SIMSlot int `json:"simSlot"`
	// RecordingPath is the local path of the call recording, when the device
	// captured one.
	RecordingPath string `json:"recordingPath,omitempty"`
}

// CallStatus maps the device direction to the backend call status.
// Incoming and outgoing calls were connected; missed and rejected were not.
func (e Entry) CallStatus() string {
	switch e.Direction {
	case DirectionMissed, DirectionRejected:
		return "missed"
	default:
		return "completed"
	}
}

// CallType maps the device direction to the backend call type. The backend
// only knows incoming, outgoing and missed; rejected calls report as missed.
func (e Entry) CallType() string {
	if e.Direction == DirectionRejected {
		return string(DirectionMissed)
	}
	return string(e.Direction)
}

// Provider reads call history from the device.
type Provider interface {
	// CallsToday returns all of today's call records.
	CallsToday(ctx context.Context) ([]Entry, error)
	// CallsForDay returns the call records for the day dayOffset days ago
	// (0 = today, 1 = yesterday, ...).
	CallsForDay(ctx context.Context, dayOffset int) ([]Entry, error)
}

// NewestTimestamp returns the maximum timestamp in the batch, or 0 for an
// empty batch.
func NewestTimestamp(entries []Entry) int64 {
	var newest int64
	for _, e := range entries {
		if e.Timestamp > newest {
			newest = e.Timestamp
		}
	}
	return newest
}
