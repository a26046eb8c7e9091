package models

import (
	"time"

	"github.com/google/uuid"
)

// DonationStatus represents the possible statuses of a donation history record.
type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"   // Donor accepted, recipient has not confirmed yet
	DonationStatusConfirmed DonationStatus = "confirmed" // Recipient confirmed the donation
	DonationStatusCompleted DonationStatus = "completed" // Kept for stored rows; no transition produces it
	DonationStatusCanceled  DonationStatus = "canceled"  // Canceled by donor or recipient
)

// Active reports whether the donation still holds its request.
func (s DonationStatus) Active() bool {
	return s == DonationStatusPending || s == DonationStatusConfirmed
}

// DonationHistory represents the structure for the 'donation_histories' table.
type DonationHistory struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	DonorID        uuid.UUID      `json:"donor_id" db:"donor_id"`
	RecipientID    uuid.UUID      `json:"recipient_id" db:"recipient_id"`
	BloodRequestID uuid.UUID      `json:"blood_request_id" db:"blood_request_id"`
	UnitsDonated   int            `json:"units_donated" db:"units_donated"`
	DonationDate   *time.Time     `json:"donation_date,omitempty" db:"donation_date"` // Set on confirmation
	Status         DonationStatus `json:"status" db:"status"`
	Notes          string         `json:"notes" db:"notes"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// --- DTOs ---

// DonationRole selects which side of the donations the caller wants to list.
type DonationRole string

const (
	DonationRoleAny       DonationRole = ""
	DonationRoleDonor     DonationRole = "donor"
	DonationRoleRecipient DonationRole = "recipient"
)

// ListDonationsParams defines optional query filters for GET /donations.
type ListDonationsParams struct {
	Role string `query:"role" validate:"omitempty,oneof=donor recipient"`
}

// DonationResponse is the read schema for a donation. Every field is read-only: donations
// are only created and changed through the lifecycle operations.
type DonationResponse struct {
	ID             uuid.UUID      `json:"id"`
	DonorID        uuid.UUID      `json:"donor_id"`
	RecipientID    uuid.UUID      `json:"recipient_id"`
	BloodRequestID uuid.UUID      `json:"blood_request_id"`
	UnitsDonated   int            `json:"units_donated"`
	DonationDate   *string        `json:"donation_date"`
	Status         DonationStatus `json:"status"`
	Notes          string         `json:"notes"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewDonationResponse maps a donation row to its read schema.
func NewDonationResponse(d *DonationHistory) DonationResponse {
	return DonationResponse{
		ID:             d.ID,
		DonorID:        d.DonorID,
		RecipientID:    d.RecipientID,
		BloodRequestID: d.BloodRequestID,
		UnitsDonated:   d.UnitsDonated,
		DonationDate:   FormatDatePtr(d.DonationDate),
		Status:         d.Status,
		Notes:          d.Notes,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// NewDonationResponses maps a slice of donations.
func NewDonationResponses(ds []DonationHistory) []DonationResponse {
	out := make([]DonationResponse, 0, len(ds))
	for i := range ds {
		out = append(out, NewDonationResponse(&ds[i]))
	}
	return out
}
