package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"bloodbank/backend/models"
)

const (
	insertRequestQuery = `
		INSERT INTO blood_requests (id, requester_id, patient_name, blood_group, units_needed, urgency, hospital_name, hospital_address, contact_phone, needed_by_date, additional_notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	selectRequestQuery = `SELECT ` + requestColumns + ` FROM blood_requests WHERE id = $1`
	lockRequestQuery   = `SELECT ` + requestColumns + ` FROM blood_requests WHERE id = $1 FOR UPDATE`
	listRequestsQuery  = `SELECT ` + requestColumns + ` FROM blood_requests WHERE 1 = 1`

	// Guarded by the current status so a concurrent accept that slipped past the lock still loses.
	acceptRequestQuery = `UPDATE blood_requests SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	insertDonationQuery = `
		INSERT INTO donation_histories (id, donor_id, recipient_id, blood_request_id, units_donated, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	cancelPendingDonationsQuery = `UPDATE donation_histories SET status = $1, updated_at = NOW() WHERE blood_request_id = $2 AND status = $3`
)

// CreateRequest validates and stores a new blood request in pending status. Any authenticated
// user may create one.
func (s *LifecycleService) CreateRequest(ctx context.Context, requesterID uuid.UUID, req models.CreateBloodRequestRequest) (*models.BloodRequestResponse, error) {
	// 1. Validate request data
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}
	neededBy, err := models.ParseDate(req.NeededByDate)
	if err != nil {
		return nil, fieldError("needed_by_date", "Date has wrong format. Use YYYY-MM-DD.")
	}
	today := s.today()
	if neededBy.Before(today) {
		return nil, fieldError("needed_by_date", "Needed by date cannot be in the past.")
	}
	if models.Urgency(req.Urgency) == models.UrgencyCritical && neededBy.After(today.AddDate(0, 0, models.CriticalWindowDays)) {
		return nil, fieldError("needed_by_date", "Critical requests must be needed within 7 days.")
	}

	// 2. Insert the request
	r := &models.BloodRequest{
		ID:              uuid.New(),
		RequesterID:     requesterID,
		PatientName:     req.PatientName,
		BloodGroup:      models.BloodGroup(req.BloodGroup),
		UnitsNeeded:     req.UnitsNeeded,
		Urgency:         models.Urgency(req.Urgency),
		HospitalName:    req.HospitalName,
		HospitalAddress: req.HospitalAddress,
		ContactPhone:    req.ContactPhone,
		NeededByDate:    neededBy,
		AdditionalNotes: req.AdditionalNotes,
		Status:          models.RequestStatusPending,
	}
	err = s.db.QueryRow(ctx, insertRequestQuery,
		r.ID, r.RequesterID, r.PatientName, req.BloodGroup, r.UnitsNeeded, req.Urgency,
		r.HospitalName, r.HospitalAddress, r.ContactPhone, r.NeededByDate, r.AdditionalNotes,
		string(r.Status),
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		s.log.Error("Error inserting blood request", zap.String("requester_id", requesterID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to create blood request: %w", err)
	}

	s.log.Info("Blood request created",
		zap.String("request_id", r.ID.String()),
		zap.String("blood_group", req.BloodGroup),
		zap.String("urgency", req.Urgency))
	resp := models.NewBloodRequestResponse(r)
	return &resp, nil
}

// GetRequest returns a single blood request.
func (s *LifecycleService) GetRequest(ctx context.Context, requestID uuid.UUID) (*models.BloodRequestResponse, error) {
	r, err := scanRequest(s.db.QueryRow(ctx, selectRequestQuery, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, newError(ErrNotFound, "Blood request not found")
		}
		return nil, fmt.Errorf("database error fetching blood request: %w", err)
	}
	resp := models.NewBloodRequestResponse(r)
	return &resp, nil
}

// ListRequests returns blood requests matching the optional filters, newest first.
func (s *LifecycleService) ListRequests(ctx context.Context, callerID uuid.UUID, params models.ListBloodRequestsParams) ([]models.BloodRequestResponse, error) {
	if err := validateStruct(s.validator, params); err != nil {
		return nil, err
	}

	query := listRequestsQuery
	args := []interface{}{}
	argID := 1
	if params.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, params.Status)
		argID++
	}
	if params.BloodGroup != "" {
		query += fmt.Sprintf(" AND blood_group = $%d", argID)
		args = append(args, params.BloodGroup)
		argID++
	}
	if params.Urgency != "" {
		query += fmt.Sprintf(" AND urgency = $%d", argID)
		args = append(args, params.Urgency)
		argID++
	}
	if params.Mine {
		query += fmt.Sprintf(" AND requester_id = $%d", argID)
		args = append(args, callerID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		s.log.Error("Error listing blood requests", zap.Error(err))
		return nil, fmt.Errorf("database error listing blood requests: %w", err)
	}
	requests, err := collectRequests(rows)
	if err != nil {
		return nil, err
	}
	return models.NewBloodRequestResponses(requests), nil
}

// AcceptRequest lets a donor take a pending request. The request row is locked for the whole
// transaction, so of two concurrent accepts exactly one creates a donation.
func (s *LifecycleService) AcceptRequest(ctx context.Context, requestID, donorID uuid.UUID) (*models.AcceptRequestResponse, error) {
	var resp *models.AcceptRequestResponse
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		// 1. Lock the request row
		r, err := scanRequest(tx.QueryRow(ctx, lockRequestQuery, requestID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return newError(ErrNotFound, "Blood request not found")
			}
			return fmt.Errorf("database error fetching blood request: %w", err)
		}

		// 2. Caller must hold the donor role
		isDonor, err := hasRole(ctx, tx, donorID, models.RoleDonor)
		if err != nil {
			return err
		}
		if !isDonor {
			return newError(ErrForbidden, "You need to be a blood donor to accept requests")
		}

		// 3. Donor must have a profile and be out of cooldown
		profile, err := scanProfile(tx.QueryRow(ctx, selectProfileQuery, donorID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return newError(ErrNotEligible, "Please complete your profile first")
			}
			return fmt.Errorf("database error fetching donor profile: %w", err)
		}
		if !profile.Eligible(s.today()) {
			return newError(ErrNotEligible, fmt.Sprintf("You can only donate once every %d days", models.CooldownDays))
		}

		// 4. Request must still be open
		if r.Status != models.RequestStatusPending {
			return newError(ErrConflict, "This request is no longer available")
		}
		if r.RequesterID == donorID {
			return newError(ErrConflict, "You cannot accept your own request")
		}

		tag, err := tx.Exec(ctx, acceptRequestQuery,
			string(models.RequestStatusAccepted), requestID, string(models.RequestStatusPending))
		if err != nil {
			return fmt.Errorf("failed to accept blood request: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return newError(ErrConflict, "This request is no longer available")
		}

		// 5. Record the pending donation
		donation := &models.DonationHistory{
			ID:             uuid.New(),
			DonorID:        donorID,
			RecipientID:    r.RequesterID,
			BloodRequestID: r.ID,
			UnitsDonated:   r.UnitsNeeded,
			Status:         models.DonationStatusPending,
		}
		err = tx.QueryRow(ctx, insertDonationQuery,
			donation.ID, donation.DonorID, donation.RecipientID, donation.BloodRequestID,
			donation.UnitsDonated, string(donation.Status),
		).Scan(&donation.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return newError(ErrConflict, "This request is no longer available")
			}
			return fmt.Errorf("failed to record donation: %w", err)
		}

		resp = &models.AcceptRequestResponse{
			DonationID: donation.ID,
			RequestID:  r.ID,
			Status:     models.RequestStatusAccepted,
		}
		return nil
	})
	if err != nil {
		s.logTransitionError("accept request", requestID, donorID, err)
		return nil, err
	}

	s.log.Info("Blood request accepted",
		zap.String("request_id", requestID.String()),
		zap.String("donor_id", donorID.String()),
		zap.String("donation_id", resp.DonationID.String()))
	return resp, nil
}

// CancelRequest withdraws a request on behalf of its requester and cancels its pending donations.
func (s *LifecycleService) CancelRequest(ctx context.Context, requestID, actorID uuid.UUID) (*models.BloodRequestResponse, error) {
	var r *models.BloodRequest
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		r, err = scanRequest(tx.QueryRow(ctx, lockRequestQuery, requestID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return newError(ErrNotFound, "Blood request not found")
			}
			return fmt.Errorf("database error fetching blood request: %w", err)
		}

		if r.RequesterID != actorID {
			return newError(ErrForbidden, "You can only cancel your own requests")
		}
		switch r.Status {
		case models.RequestStatusCompleted:
			return newError(ErrConflict, "Cannot cancel completed requests")
		case models.RequestStatusCanceled:
			return newError(ErrConflict, "Request is already canceled")
		}

		if _, err := tx.Exec(ctx, setRequestStatusQuery, string(models.RequestStatusCanceled), requestID); err != nil {
			return fmt.Errorf("failed to cancel blood request: %w", err)
		}
		tag, err := tx.Exec(ctx, cancelPendingDonationsQuery,
			string(models.DonationStatusCanceled), requestID, string(models.DonationStatusPending))
		if err != nil {
			return fmt.Errorf("failed to cancel pending donations: %w", err)
		}
		if n := tag.RowsAffected(); n > 0 {
			s.log.Info("Pending donations canceled with request",
				zap.String("request_id", requestID.String()), zap.Int64("count", n))
		}
		r.Status = models.RequestStatusCanceled
		return nil
	})
	if err != nil {
		s.logTransitionError("cancel request", requestID, actorID, err)
		return nil, err
	}

	s.log.Info("Blood request canceled", zap.String("request_id", requestID.String()))
	resp := models.NewBloodRequestResponse(r)
	return &resp, nil
}

// logTransitionError logs unexpected failures; classified errors are expected outcomes.
func (s *LifecycleService) logTransitionError(op string, id, actorID uuid.UUID, err error) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		s.log.Info("Transition rejected",
			zap.String("op", op), zap.String("id", id.String()),
			zap.String("actor_id", actorID.String()), zap.String("reason", svcErr.Message))
		return
	}
	s.log.Error("Transition failed",
		zap.String("op", op), zap.String("id", id.String()),
		zap.String("actor_id", actorID.String()), zap.Error(err))
}
