package models

import (
	"time"

	"github.com/google/uuid"
)

// Urgency of a blood request.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// CriticalWindowDays bounds how far ahead a critical request may be needed.
const CriticalWindowDays = 7

// RequestStatus represents the possible statuses of a blood request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"   // Open for a donor to accept
	RequestStatusAccepted  RequestStatus = "accepted"  // A donor accepted, waiting for confirmation
	RequestStatusCompleted RequestStatus = "completed" // Donation confirmed by the requester (terminal)
	RequestStatusCanceled  RequestStatus = "canceled"  // Withdrawn by the requester (terminal)
)

// Terminal reports whether no further transition is allowed from s.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusCanceled
}

// BloodRequest represents the structure for the 'blood_requests' table.
type BloodRequest struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	RequesterID     uuid.UUID     `json:"requester_id" db:"requester_id"`
	PatientName     string        `json:"patient_name" db:"patient_name"`
	BloodGroup      BloodGroup    `json:"blood_group" db:"blood_group"`
	UnitsNeeded     int           `json:"units_needed" db:"units_needed"` // 1-10
	Urgency         Urgency       `json:"urgency" db:"urgency"`
	HospitalName    string        `json:"hospital_name" db:"hospital_name"`
	HospitalAddress string        `json:"hospital_address" db:"hospital_address"`
	ContactPhone    string        `json:"contact_phone" db:"contact_phone"`
	NeededByDate    time.Time     `json:"needed_by_date" db:"needed_by_date"`
	AdditionalNotes string        `json:"additional_notes" db:"additional_notes"`
	Status          RequestStatus `json:"status" db:"status"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// --- DTOs ---

// CreateBloodRequestRequest is the write schema for POST /requests.
// The requester and status are never accepted from the client.
type CreateBloodRequestRequest struct {
	PatientName     string `json:"patient_name" validate:"required,max=100"`
	BloodGroup      string `json:"blood_group" validate:"required,oneof=O+ O- A+ A- B+ B- AB+ AB-"`
	UnitsNeeded     int    `json:"units_needed" validate:"required,min=1,max=10"`
	Urgency         string `json:"urgency" validate:"required,oneof=low medium high critical"`
	HospitalName    string `json:"hospital_name" validate:"required,max=200"`
	HospitalAddress string `json:"hospital_address" validate:"required"`
	ContactPhone    string `json:"contact_phone" validate:"required,max=15"`
	NeededByDate    string `json:"needed_by_date" validate:"required,datetime=2006-01-02"` // YYYY-MM-DD
	AdditionalNotes string `json:"additional_notes"`
}

// ListBloodRequestsParams defines optional query filters for GET /requests.
type ListBloodRequestsParams struct {
	Status     string `query:"status" validate:"omitempty,oneof=pending accepted completed canceled"`
	BloodGroup string `query:"blood_group" validate:"omitempty,oneof=O+ O- A+ A- B+ B- AB+ AB-"`
	Urgency    string `query:"urgency" validate:"omitempty,oneof=low medium high critical"`
	Mine       bool   `query:"mine"` // Only requests created by the caller
}

// BloodRequestResponse is the read schema for a blood request. All fields are read-only
// except those mirrored from CreateBloodRequestRequest at creation time.
type BloodRequestResponse struct {
	ID              uuid.UUID     `json:"id"`
	RequesterID     uuid.UUID     `json:"requester_id"`
	PatientName     string        `json:"patient_name"`
	BloodGroup      BloodGroup    `json:"blood_group"`
	UnitsNeeded     int           `json:"units_needed"`
	Urgency         Urgency       `json:"urgency"`
	HospitalName    string        `json:"hospital_name"`
	HospitalAddress string        `json:"hospital_address"`
	ContactPhone    string        `json:"contact_phone"`
	NeededByDate    string        `json:"needed_by_date"`
	AdditionalNotes string        `json:"additional_notes"`
	Status          RequestStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewBloodRequestResponse maps a request row to its read schema.
func NewBloodRequestResponse(r *BloodRequest) BloodRequestResponse {
	return BloodRequestResponse{
		ID:              r.ID,
		RequesterID:     r.RequesterID,
		PatientName:     r.PatientName,
		BloodGroup:      r.BloodGroup,
		UnitsNeeded:     r.UnitsNeeded,
		Urgency:         r.Urgency,
		HospitalName:    r.HospitalName,
		HospitalAddress: r.HospitalAddress,
		ContactPhone:    r.ContactPhone,
		NeededByDate:    FormatDate(r.NeededByDate),
		AdditionalNotes: r.AdditionalNotes,
		Status:          r.Status,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// NewBloodRequestResponses maps a slice of requests.
func NewBloodRequestResponses(rs []BloodRequest) []BloodRequestResponse {
	out := make([]BloodRequestResponse, 0, len(rs))
	for i := range rs {
		out = append(out, NewBloodRequestResponse(&rs[i]))
	}
	return out
}

// AcceptRequestResponse is returned after a donor accepts a request.
type AcceptRequestResponse struct {
	DonationID uuid.UUID     `json:"donation_id"`
	RequestID  uuid.UUID     `json:"request_id"`
	Status     RequestStatus `json:"status"`
}
