package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"bloodbank/backend/database"
	"bloodbank/backend/models"
)

const profileColumns = `id, user_id, full_name, age, address, blood_group, phone_number, last_donation_date, is_available_for_donation, created_at, updated_at`

const (
	selectProfileQuery          = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	selectProfileForUpdateQuery = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1 FOR UPDATE`

	insertProfileQuery = `
		INSERT INTO profiles (id, user_id, full_name, age, address, blood_group, phone_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING is_available_for_donation, created_at, updated_at`

	updateProfileQuery = `
		UPDATE profiles
		SET full_name = $1, age = $2, address = $3, blood_group = $4, phone_number = $5, updated_at = NOW()
		WHERE user_id = $6
		RETURNING updated_at`
)

// ProfileService manages the caller's own profile. Donor eligibility fields are read-only here;
// only donation confirmation writes them.
type ProfileService struct {
	db        database.DBPool
	cache     DonorCache // Optional; profile writes change the public donor listing
	validator *validator.Validate
	log       *zap.Logger
	now       func() time.Time
}

// NewProfileService creates a new ProfileService instance. cache may be nil.
func NewProfileService(db database.DBPool, cache DonorCache, log *zap.Logger) *ProfileService {
	return &ProfileService{
		db:        db,
		cache:     cache,
		validator: newValidator(),
		log:       log,
		now:       time.Now,
	}
}

// GetProfile returns the profile of the given user.
func (s *ProfileService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.ProfileResponse, error) {
	profile, err := scanProfile(s.db.QueryRow(ctx, selectProfileQuery, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, newError(ErrNotFound, "Profile not found")
		}
		s.log.Error("Error fetching profile", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, fmt.Errorf("database error fetching profile: %w", err)
	}
	roles, err := getRoles(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	resp := models.NewProfileResponse(profile, roles, s.now())
	return &resp, nil
}

// CreateProfile creates the caller's profile. When roles are given they replace the caller's
// role set in the same transaction.
func (s *ProfileService) CreateProfile(ctx context.Context, userID uuid.UUID, req models.CreateProfileRequest) (*models.ProfileResponse, error) {
	// 1. Validate request data
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}
	var roles []models.Role
	if req.Roles != nil {
		var err error
		if roles, err = normalizeRoles(req.Roles); err != nil {
			return nil, err
		}
	}

	// 2. Insert profile (and roles) atomically
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	profile := &models.Profile{
		ID:          uuid.New(),
		UserID:      userID,
		FullName:    req.FullName,
		Age:         req.Age,
		Address:     req.Address,
		BloodGroup:  models.BloodGroup(req.BloodGroup),
		PhoneNumber: req.PhoneNumber,
	}
	err = tx.QueryRow(ctx, insertProfileQuery,
		profile.ID, profile.UserID, profile.FullName, profile.Age, profile.Address, req.BloodGroup, profile.PhoneNumber,
	).Scan(&profile.IsAvailableForDonation, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, newError(ErrConflict, "Profile already exists")
		}
		s.log.Error("Error inserting profile", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	if req.Roles != nil {
		if err := replaceRolesTx(ctx, tx, userID, roles); err != nil {
			return nil, err
		}
	} else if roles, err = getRoles(ctx, tx, userID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit profile: %w", err)
	}

	s.log.Info("Profile created", zap.String("user_id", userID.String()), zap.String("blood_group", req.BloodGroup))
	invalidateDonorCache(ctx, s.cache, s.log)
	resp := models.NewProfileResponse(profile, roles, s.now())
	return &resp, nil
}

// UpdateProfile applies a partial update to the caller's profile.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID uuid.UUID, req models.UpdateProfileRequest) (*models.ProfileResponse, error) {
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}
	var roles []models.Role
	if req.Roles != nil {
		var err error
		if roles, err = normalizeRoles(*req.Roles); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	profile, err := scanProfile(tx.QueryRow(ctx, selectProfileForUpdateQuery, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, newError(ErrNotFound, "Profile not found")
		}
		return nil, fmt.Errorf("database error fetching profile: %w", err)
	}

	if req.FullName != nil {
		profile.FullName = *req.FullName
	}
	if req.Age != nil {
		profile.Age = *req.Age
	}
	if req.Address != nil {
		profile.Address = *req.Address
	}
	if req.BloodGroup != nil {
		profile.BloodGroup = models.BloodGroup(*req.BloodGroup)
	}
	if req.PhoneNumber != nil {
		profile.PhoneNumber = *req.PhoneNumber
	}

	err = tx.QueryRow(ctx, updateProfileQuery,
		profile.FullName, profile.Age, profile.Address, string(profile.BloodGroup), profile.PhoneNumber, userID,
	).Scan(&profile.UpdatedAt)
	if err != nil {
		s.log.Error("Error updating profile", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	if req.Roles != nil {
		if err := replaceRolesTx(ctx, tx, userID, roles); err != nil {
			return nil, err
		}
	} else if roles, err = getRoles(ctx, tx, userID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit profile update: %w", err)
	}

	s.log.Info("Profile updated", zap.String("user_id", userID.String()))
	invalidateDonorCache(ctx, s.cache, s.log)
	resp := models.NewProfileResponse(profile, roles, s.now())
	return &resp, nil
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(
		&p.ID, &p.UserID, &p.FullName, &p.Age, &p.Address, &p.BloodGroup, &p.PhoneNumber,
		&p.LastDonationDate, &p.IsAvailableForDonation, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
