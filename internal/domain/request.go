package domain

import (
	"time"
)

// RequestStatus is the lifecycle state of a blood request.
type RequestStatus string

const (
	RequestOpen      RequestStatus = "open"
	RequestFulfilled RequestStatus = "fulfilled"
	RequestCancelled RequestStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestOpen, RequestFulfilled, RequestCancelled:
		return true
	}
	return false
}

// BloodRequest is a hospital or patient request for blood.
type BloodRequest struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenantId"`
	PatientRef string        `json:"patientRef,omitempty"`
	Hospital   string        `json:"hospital,omitempty"`
	BloodType  BloodType     `json:"bloodType"`
	Urgency    Urgency       `json:"urgency"`
	Units      int           `json:"units"`
	Tags       []string      `json:"tags,omitempty"`
	Location   *GeoPoint     `json:"location,omitempty"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// UrgencyInput builds the urgency scoring input for this request.
func (r *BloodRequest) UrgencyInput() RequestUrgencyInput {
	return RequestUrgencyInput{
		Urgency:   r.Urgency,
		CreatedAt: r.CreatedAt,
		Tags:      r.Tags,
		BloodType: r.BloodType,
	}
}
