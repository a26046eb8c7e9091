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
	donationRequestIDQuery = `SELECT blood_request_id FROM donation_histories WHERE id = $1`
	lockDonationQuery      = `SELECT ` + donationColumns + ` FROM donation_histories WHERE id = $1 FOR UPDATE`
	confirmDonationQuery   = `UPDATE donation_histories SET status = $1, donation_date = $2, updated_at = NOW() WHERE id = $3`
	setDonationStatusQuery = `UPDATE donation_histories SET status = $1, updated_at = NOW() WHERE id = $2`
	startCooldownQuery     = `UPDATE profiles SET last_donation_date = $1, is_available_for_donation = FALSE, updated_at = NOW() WHERE user_id = $2`
	countActiveSiblings    = `SELECT COUNT(*) FROM donation_histories WHERE blood_request_id = $1 AND status IN ($2, $3) AND id <> $4`
	listDonationsQuery     = `SELECT ` + donationColumns + ` FROM donation_histories WHERE `
)

// ConfirmDonation records that the recipient received the donation. In one transaction the
// donation becomes confirmed, its request completed, and the donor enters cooldown.
func (s *LifecycleService) ConfirmDonation(ctx context.Context, donationID, actorID uuid.UUID) (*models.DonationResponse, error) {
	today := s.today()
	var d *models.DonationHistory
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		var requestStatus models.RequestStatus
		d, requestStatus, err = s.lockDonation(ctx, tx, donationID)
		if err != nil {
			return err
		}

		if d.RecipientID != actorID {
			return newError(ErrForbidden, "Only the recipient can confirm donations")
		}
		if d.Status != models.DonationStatusPending || requestStatus != models.RequestStatusAccepted {
			return newError(ErrConflict, "This donation cannot be confirmed")
		}

		if _, err := tx.Exec(ctx, confirmDonationQuery, string(models.DonationStatusConfirmed), today, donationID); err != nil {
			return fmt.Errorf("failed to confirm donation: %w", err)
		}
		if _, err := tx.Exec(ctx, setRequestStatusQuery, string(models.RequestStatusCompleted), d.BloodRequestID); err != nil {
			return fmt.Errorf("failed to complete blood request: %w", err)
		}
		tag, err := tx.Exec(ctx, startCooldownQuery, today, d.DonorID)
		if err != nil {
			return fmt.Errorf("failed to update donor profile: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("donor %s has no profile", d.DonorID)
		}

		d.Status = models.DonationStatusConfirmed
		d.DonationDate = &today
		return nil
	})
	if err != nil {
		s.logTransitionError("confirm donation", donationID, actorID, err)
		return nil, err
	}

	s.log.Info("Donation confirmed",
		zap.String("donation_id", donationID.String()),
		zap.String("request_id", d.BloodRequestID.String()),
		zap.String("donor_id", d.DonorID.String()))
	s.invalidateDonors(ctx)
	resp := models.NewDonationResponse(d)
	return &resp, nil
}

// CancelDonation cancels a pending or confirmed donation on behalf of its donor or recipient.
// When no other active donation remains, an accepted request re-opens as pending.
func (s *LifecycleService) CancelDonation(ctx context.Context, donationID, actorID uuid.UUID) (*models.DonationResponse, error) {
	var d *models.DonationHistory
	reverted := false
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var (
			requestStatus models.RequestStatus
			err           error
		)
		d, requestStatus, err = s.lockDonation(ctx, tx, donationID)
		if err != nil {
			return err
		}

		if d.DonorID != actorID && d.RecipientID != actorID {
			return newError(ErrForbidden, "You cannot cancel this donation")
		}
		if !d.Status.Active() {
			return newError(ErrConflict, "This donation cannot be canceled")
		}

		if _, err := tx.Exec(ctx, setDonationStatusQuery, string(models.DonationStatusCanceled), donationID); err != nil {
			return fmt.Errorf("failed to cancel donation: %w", err)
		}

		var others int
		err = tx.QueryRow(ctx, countActiveSiblings, d.BloodRequestID,
			string(models.DonationStatusPending), string(models.DonationStatusConfirmed), donationID,
		).Scan(&others)
		if err != nil {
			return fmt.Errorf("database error checking sibling donations: %w", err)
		}

		// Completed and canceled requests stay terminal.
		if others == 0 && requestStatus == models.RequestStatusAccepted {
			if _, err := tx.Exec(ctx, setRequestStatusQuery, string(models.RequestStatusPending), d.BloodRequestID); err != nil {
				return fmt.Errorf("failed to reopen blood request: %w", err)
			}
			reverted = true
		}

		d.Status = models.DonationStatusCanceled
		return nil
	})
	if err != nil {
		s.logTransitionError("cancel donation", donationID, actorID, err)
		return nil, err
	}

	s.log.Info("Donation canceled",
		zap.String("donation_id", donationID.String()),
		zap.String("request_id", d.BloodRequestID.String()),
		zap.Bool("request_reopened", reverted))
	resp := models.NewDonationResponse(d)
	return &resp, nil
}

// ListDonations returns the caller's donations, as donor, recipient, or both, newest first.
func (s *LifecycleService) ListDonations(ctx context.Context, callerID uuid.UUID, params models.ListDonationsParams) ([]models.DonationResponse, error) {
	if err := validateStruct(s.validator, params); err != nil {
		return nil, err
	}

	query := listDonationsQuery
	switch models.DonationRole(params.Role) {
	case models.DonationRoleDonor:
		query += `donor_id = $1`
	case models.DonationRoleRecipient:
		query += `recipient_id = $1`
	default:
		query += `(donor_id = $1 OR recipient_id = $1)`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, callerID)
	if err != nil {
		s.log.Error("Error listing donations", zap.String("user_id", callerID.String()), zap.Error(err))
		return nil, fmt.Errorf("database error listing donations: %w", err)
	}
	donations, err := collectDonations(rows)
	if err != nil {
		return nil, err
	}
	return models.NewDonationResponses(donations), nil
}

// lockDonation locks the donation's request row and then the donation row, in that order, the
// same order AcceptRequest and CancelRequest use.
func (s *LifecycleService) lockDonation(ctx context.Context, tx pgx.Tx, donationID uuid.UUID) (*models.DonationHistory, models.RequestStatus, error) {
	var requestID uuid.UUID
	if err := tx.QueryRow(ctx, donationRequestIDQuery, donationID).Scan(&requestID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", newError(ErrNotFound, "Donation not found")
		}
		return nil, "", fmt.Errorf("database error fetching donation: %w", err)
	}

	var requestStatus models.RequestStatus
	if err := tx.QueryRow(ctx, lockRequestStatusQuery, requestID).Scan(&requestStatus); err != nil {
		return nil, "", fmt.Errorf("database error locking blood request: %w", err)
	}

	d, err := scanDonation(tx.QueryRow(ctx, lockDonationQuery, donationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", newError(ErrNotFound, "Donation not found")
		}
		return nil, "", fmt.Errorf("database error fetching donation: %w", err)
	}
	return d, requestStatus, nil
}

func (s *LifecycleService) invalidateDonors(ctx context.Context) {
	invalidateDonorCache(ctx, s.cache, s.log)
}
