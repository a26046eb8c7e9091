package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"bloodbank/backend/database"
	"bloodbank/backend/models"
)

// LifecycleService owns every status write on blood requests and donations. Requests and
// donations mutate each other, so both managers share one transactional boundary.
type LifecycleService struct {
	db        database.DBPool
	cache     DonorCache // Optional; invalidated when a donor enters cooldown
	validator *validator.Validate
	log       *zap.Logger
	now       func() time.Time
}

// NewLifecycleService creates a new LifecycleService. cache may be nil.
func NewLifecycleService(db database.DBPool, cache DonorCache, log *zap.Logger) *LifecycleService {
	return &LifecycleService{
		db:        db,
		cache:     cache,
		validator: newValidator(),
		log:       log,
		now:       time.Now,
	}
}

// today is the current UTC calendar date.
func (s *LifecycleService) today() time.Time {
	return models.DateOf(s.now())
}

// inTx runs fn in a transaction and commits when it returns nil.
func (s *LifecycleService) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start database transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const requestColumns = `id, requester_id, patient_name, blood_group, units_needed, urgency, hospital_name, hospital_address, contact_phone, needed_by_date, additional_notes, status, created_at, updated_at`

const donationColumns = `id, donor_id, recipient_id, blood_request_id, units_donated, donation_date, status, notes, created_at, updated_at`

// Shared by both managers.
const (
	setRequestStatusQuery  = `UPDATE blood_requests SET status = $1, updated_at = NOW() WHERE id = $2`
	lockRequestStatusQuery = `SELECT status FROM blood_requests WHERE id = $1 FOR UPDATE`
)

func scanRequest(row pgx.Row) (*models.BloodRequest, error) {
	var r models.BloodRequest
	err := row.Scan(
		&r.ID, &r.RequesterID, &r.PatientName, &r.BloodGroup, &r.UnitsNeeded, &r.Urgency,
		&r.HospitalName, &r.HospitalAddress, &r.ContactPhone, &r.NeededByDate, &r.AdditionalNotes,
		&r.Status, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanDonation(row pgx.Row) (*models.DonationHistory, error) {
	var d models.DonationHistory
	err := row.Scan(
		&d.ID, &d.DonorID, &d.RecipientID, &d.BloodRequestID, &d.UnitsDonated, &d.DonationDate,
		&d.Status, &d.Notes, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func collectRequests(rows pgx.Rows) ([]models.BloodRequest, error) {
	defer rows.Close()
	requests := []models.BloodRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("error processing request data: %w", err)
		}
		requests = append(requests, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database iteration error for requests: %w", err)
	}
	return requests, nil
}

func collectDonations(rows pgx.Rows) ([]models.DonationHistory, error) {
	defer rows.Close()
	donations := []models.DonationHistory{}
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("error processing donation data: %w", err)
		}
		donations = append(donations, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database iteration error for donations: %w", err)
	}
	return donations, nil
}
