// Package crm provides the HTTP client for the CRM backend API.
package crm

import (
	"encoding/json"
	"strings"
)

// OwnerKind discriminates the owner union.
type OwnerKind int

const (
	// OwnerUnassigned means the lead has no owner.
	OwnerUnassigned OwnerKind = iota
	// OwnerIDOnly means the backend sent a bare owner identifier.
	OwnerIDOnly
	// OwnerRef means the backend sent an embedded owner object.
	OwnerRef
)

// Owner is the lead's assignment, resolved once at the API boundary.
// The backend serializes assignedTo as either a string id or an embedded
// {id, name} object; internal logic never re-inspects the wire shape.
type Owner struct {
	Kind OwnerKind
	ID   string
	Name string
}

// IsAssigned reports whether the lead has an owner.
func (o Owner) IsAssigned() bool {
	return o.Kind != OwnerUnassigned && o.ID != ""
}

// UnmarshalJSON accepts null, a bare id string, or an {id, name} object.
func (o *Owner) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == `""` {
		*o = Owner{}
		return nil
	}

	if strings.HasPrefix(trimmed, `"`) {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*o = Owner{Kind: OwnerIDOnly, ID: id}
		return nil
	}

	var ref struct {
		ID       string `json:"id"`
		MongoID  string `json:"_id"`
		Name     string `json:"name"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return err
	}

	id := ref.ID
	if id == "" {
		id = ref.MongoID
	}
	name := ref.Name
	if name == "" {
		name = ref.Username
	}
	*o = Owner{Kind: OwnerRef, ID: id, Name: name}
	return nil
}

// Lead is a CRM lead, owned by at most one salesperson at a time. The agent
// treats the backend as source of truth and holds leads as a read-only
// lookup table.
type Lead struct {
	ID             string
	Name           string
	Phone          string
	Mobile         string
	AlternatePhone string
	Owner          Owner
	Status         string
	Stage          string
}

// PhoneCandidates returns the lead's phone fields in match priority order.
func (l Lead) PhoneCandidates() []string {
	return []string{l.Phone, l.Mobile, l.AlternatePhone}
}

// apiLead is the raw lead payload from the backend. Field names follow the
// backend's mixed snake/camel conventions; aliases cover both generations of
// the API.
type apiLead struct {
	ID              string `json:"id"`
	MongoID         string `json:"_id"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Number          string `json:"number"`
	Mobile          string `json:"mobile"`
	AltPhone        string `json:"alt_phone"`
	AlternateNumber string `json:"alternateNumber"`
	AssignedTo      Owner  `json:"assigned_to"`
	LeadStatus      string `json:"leadStatus"`
	Status          string `json:"status"`
	Stage           string `json:"stage"`
}

func (a apiLead) toLead() Lead {
	id := a.ID
	if id == "" {
		id = a.MongoID
	}

	name := a.Name
	if name == "" {
		name = strings.TrimSpace(a.FirstName + " " + a.LastName)
	}

	phone := a.Phone
	if phone == "" {
		phone = a.Number
	}

	alt := a.AltPhone
	if alt == "" {
		alt = a.AlternateNumber
	}

	status := a.LeadStatus
	if status == "" {
		status = a.Status
	}

	return Lead{
		ID:             id,
		Name:           name,
		Phone:          phone,
		Mobile:         a.Mobile,
		AlternatePhone: alt,
		Owner:          a.AssignedTo,
		Status:         status,
		Stage:          a.Stage,
	}
}

// Profile is the authenticated salesperson's identity.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ExistsResult is the outcome of the phone existence check.
type ExistsResult struct {
	Found     bool
	LeadID    string
	LeadName  string
	OwnerID   string
	OwnerName string
}

// AssignmentState classifies who may work a phone number's lead.
type AssignmentState int

const (
	// AssignmentNotExist means no lead carries the number.
	AssignmentNotExist AssignmentState = iota
	// AssignmentAssignable means the lead exists and the acting user may
	// claim it (unassigned, or assigned to someone else).
	AssignmentAssignable
	// AssignmentMine means the lead is already owned by the acting user.
	AssignmentMine
)

// AssignmentResult is the outcome of the assignment check. AssignedToOther
// distinguishes "assigned to someone else" from "unassigned" inside the
// assignable state, for informational display.
type AssignmentResult struct {
	State           AssignmentState
	AssignedToOther bool
	OwnerID         string
	OwnerName       string
}

// CallRecord is the payload posted to the backend for one finished call.
type CallRecord struct {
	LeadID          string `json:"leadId"`
	CallTime        string `json:"callTime"` // ISO 8601
	DurationSeconds int    `json:"durationSeconds"`
	CallStatus      string `json:"callStatus"` // completed | missed
	CallType        string `json:"callType"`   // incoming | outgoing | missed
	Notes           string `json:"notes,omitempty"`
	RecordingURL    string `json:"recordingUrl,omitempty"`
}
