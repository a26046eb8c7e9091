package models

import (
	"time"

	"github.com/google/uuid"
)

// BloodGroup is one of the eight ABO/Rh groups.
type BloodGroup string

const (
	BloodGroupOPos  BloodGroup = "O+"
	BloodGroupONeg  BloodGroup = "O-"
	BloodGroupAPos  BloodGroup = "A+"
	BloodGroupANeg  BloodGroup = "A-"
	BloodGroupBPos  BloodGroup = "B+"
	BloodGroupBNeg  BloodGroup = "B-"
	BloodGroupABPos BloodGroup = "AB+"
	BloodGroupABNeg BloodGroup = "AB-"
)

// Valid reports whether g is one of the eight known groups.
func (g BloodGroup) Valid() bool {
	switch g {
	case BloodGroupOPos, BloodGroupONeg, BloodGroupAPos, BloodGroupANeg,
		BloodGroupBPos, BloodGroupBNeg, BloodGroupABPos, BloodGroupABNeg:
		return true
	}
	return false
}

// CooldownDays is the minimum number of days between two donations.
const CooldownDays = 56

// Profile represents the structure for the 'profiles' table (1:1 with users).
type Profile struct {
	ID                     uuid.UUID  `json:"id" db:"id"`
	UserID                 uuid.UUID  `json:"user_id" db:"user_id"`
	FullName               string     `json:"full_name" db:"full_name"`
	Age                    int        `json:"age" db:"age"`
	Address                string     `json:"address" db:"address"`
	BloodGroup             BloodGroup `json:"blood_group" db:"blood_group"`
	PhoneNumber            string     `json:"phone_number" db:"phone_number"`
	LastDonationDate       *time.Time `json:"last_donation_date,omitempty" db:"last_donation_date"` // Set by donation confirmation only
	IsAvailableForDonation bool       `json:"is_available_for_donation" db:"is_available_for_donation"`
	CreatedAt              time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at" db:"updated_at"`
}

// Eligible reports whether the donor may accept a request on the given day.
// The stored flag is cleared on confirmation and never reset by a job, so the cooldown is
// also treated as over once CooldownDays have passed since the last donation.
func (p *Profile) Eligible(today time.Time) bool {
	if p.IsAvailableForDonation {
		return true
	}
	if p.LastDonationDate == nil {
		return false
	}
	return !DateOf(today).Before(p.cooldownEnd())
}

// NextEligibleDate is the first day the donor can donate again, or nil when eligible now.
func (p *Profile) NextEligibleDate(today time.Time) *time.Time {
	if p.Eligible(today) || p.LastDonationDate == nil {
		return nil
	}
	end := p.cooldownEnd()
	return &end
}

func (p *Profile) cooldownEnd() time.Time {
	return DateOf(*p.LastDonationDate).AddDate(0, 0, CooldownDays)
}

// --- DTOs (Data Transfer Objects) for API Requests/Responses ---

// CreateProfileRequest is the write schema for POST /profile.
// Writable: full_name, age, address, blood_group, phone_number, roles.
type CreateProfileRequest struct {
	FullName    string   `json:"full_name" validate:"required,max=100"`
	Age         int      `json:"age" validate:"required,min=1,max=150"`
	Address     string   `json:"address" validate:"required"`
	BloodGroup  string   `json:"blood_group" validate:"required,oneof=O+ O- A+ A- B+ B- AB+ AB-"`
	PhoneNumber string   `json:"phone_number" validate:"omitempty,max=15"`
	Roles       []string `json:"roles" validate:"omitempty,dive,oneof=donor recipient admin"` // Replaces the role set
}

// UpdateProfileRequest is the write schema for PUT /profile. Only provided fields change.
type UpdateProfileRequest struct {
	FullName    *string   `json:"full_name,omitempty" validate:"omitempty,min=1,max=100"`
	Age         *int      `json:"age,omitempty" validate:"omitempty,min=1,max=150"`
	Address     *string   `json:"address,omitempty" validate:"omitempty,min=1"`
	BloodGroup  *string   `json:"blood_group,omitempty" validate:"omitempty,oneof=O+ O- A+ A- B+ B- AB+ AB-"`
	PhoneNumber *string   `json:"phone_number,omitempty" validate:"omitempty,max=15"`
	Roles       *[]string `json:"roles,omitempty" validate:"omitempty,dive,oneof=donor recipient admin"`
}

// ProfileResponse is the read schema for a profile.
// Read-only: id, user_id, last_donation_date, is_available_for_donation, eligible,
// next_eligible_date, created_at, updated_at.
type ProfileResponse struct {
	ID                     uuid.UUID  `json:"id"`
	UserID                 uuid.UUID  `json:"user_id"`
	FullName               string     `json:"full_name"`
	Age                    int        `json:"age"`
	Address                string     `json:"address"`
	BloodGroup             BloodGroup `json:"blood_group"`
	PhoneNumber            string     `json:"phone_number"`
	LastDonationDate       *string    `json:"last_donation_date"`
	IsAvailableForDonation bool       `json:"is_available_for_donation"`
	Eligible               bool       `json:"eligible"`
	NextEligibleDate       *string    `json:"next_eligible_date"`
	Roles                  []Role     `json:"roles"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// NewProfileResponse maps a profile to its read schema, evaluating eligibility on today.
func NewProfileResponse(p *Profile, roles []Role, today time.Time) ProfileResponse {
	if roles == nil {
		roles = []Role{}
	}
	return ProfileResponse{
		ID:                     p.ID,
		UserID:                 p.UserID,
		FullName:               p.FullName,
		Age:                    p.Age,
		Address:                p.Address,
		BloodGroup:             p.BloodGroup,
		PhoneNumber:            p.PhoneNumber,
		LastDonationDate:       FormatDatePtr(p.LastDonationDate),
		IsAvailableForDonation: p.IsAvailableForDonation,
		Eligible:               p.Eligible(today),
		NextEligibleDate:       FormatDatePtr(p.NextEligibleDate(today)),
		Roles:                  roles,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
}

// AvailableDonor is the public, privacy-limited view of an eligible donor.
type AvailableDonor struct {
	ID               uuid.UUID  `json:"id"`
	FullName         string     `json:"full_name"`
	BloodGroup       BloodGroup `json:"blood_group"`
	Address          string     `json:"address"`
	Username         string     `json:"username"`
	LastDonationDate *string    `json:"last_donation_date"`
}

// AvailableDonorsParams defines optional filters for GET /donors.
type AvailableDonorsParams struct {
	BloodGroup string `query:"blood_group" validate:"omitempty,oneof=O+ O- A+ A- B+ B- AB+ AB-"`
	Location   string `query:"location"` // Case-insensitive substring of the address
}
