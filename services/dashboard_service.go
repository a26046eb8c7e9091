package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bloodbank/backend/database"
	"bloodbank/backend/models"
)

// DonorCache stores public donor listings by filter key.
type DonorCache interface {
	GetDonors(ctx context.Context, key string) ([]models.AvailableDonor, bool, error)
	SetDonors(ctx context.Context, key string, donors []models.AvailableDonor) error
	Invalidate(ctx context.Context) error
}

// invalidateDonorCache drops every cached donor listing. Failures are logged; entries then
// expire by TTL.
func invalidateDonorCache(ctx context.Context, cache DonorCache, log *zap.Logger) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx); err != nil {
		log.Warn("Failed to invalidate donor cache", zap.Error(err))
	}
}

// eligibleProfileCond matches profiles that may donate today: $1 is the last donation date
// that has already served its cooldown.
const eligibleProfileCond = `(p.is_available_for_donation OR (p.last_donation_date IS NOT NULL AND p.last_donation_date <= $1))`

const (
	requestStatsQuery = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3)
		FROM blood_requests WHERE requester_id = $1`

	donationStatsQuery = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3)
		FROM donation_histories WHERE donor_id = $1`

	availableDonorsCountQuery = `SELECT COUNT(*) FROM profiles p WHERE ` + eligibleProfileCond
	urgentRequestsCountQuery  = `SELECT COUNT(*) FROM blood_requests WHERE status = $1 AND urgency IN ($2, $3)`
	recentRequestsQuery       = `SELECT ` + requestColumns + ` FROM blood_requests WHERE status = $1 ORDER BY created_at DESC LIMIT 5`
	recentDonationsQuery      = `SELECT ` + donationColumns + ` FROM donation_histories WHERE donor_id = $1 OR recipient_id = $1 ORDER BY created_at DESC LIMIT 5`

	availableDonorsQuery = `
		SELECT p.id, p.full_name, p.blood_group, p.address, u.username, p.last_donation_date
		FROM profiles p
		JOIN users u ON u.id = p.user_id
		WHERE ` + eligibleProfileCond
)

// DashboardService serves the read-only aggregate views.
type DashboardService struct {
	db        database.DBPool
	cache     DonorCache // Optional
	validator *validator.Validate
	log       *zap.Logger
	now       func() time.Time
}

// NewDashboardService creates a new DashboardService. cache may be nil.
func NewDashboardService(db database.DBPool, cache DonorCache, log *zap.Logger) *DashboardService {
	return &DashboardService{
		db:        db,
		cache:     cache,
		validator: newValidator(),
		log:       log,
		now:       time.Now,
	}
}

// cooldownCutoff is the latest last_donation_date whose cooldown is over today.
func (s *DashboardService) cooldownCutoff() time.Time {
	return models.DateOf(s.now()).AddDate(0, 0, -models.CooldownDays)
}

// Stats returns the caller's counters plus global context and recent activity.
func (s *DashboardService) Stats(ctx context.Context, userID uuid.UUID) (*models.DashboardResponse, error) {
	var stats models.DashboardStats

	err := s.db.QueryRow(ctx, requestStatsQuery, userID,
		string(models.RequestStatusPending), string(models.RequestStatusCompleted),
	).Scan(&stats.TotalRequests, &stats.PendingRequests, &stats.CompletedRequests)
	if err != nil {
		return nil, fmt.Errorf("database error counting requests: %w", err)
	}

	err = s.db.QueryRow(ctx, donationStatsQuery, userID,
		string(models.DonationStatusPending), string(models.DonationStatusConfirmed),
	).Scan(&stats.TotalDonations, &stats.PendingDonations, &stats.CompletedDonations)
	if err != nil {
		return nil, fmt.Errorf("database error counting donations: %w", err)
	}

	if err := s.db.QueryRow(ctx, availableDonorsCountQuery, s.cooldownCutoff()).Scan(&stats.AvailableDonorsCount); err != nil {
		return nil, fmt.Errorf("database error counting donors: %w", err)
	}

	err = s.db.QueryRow(ctx, urgentRequestsCountQuery,
		string(models.RequestStatusPending), string(models.UrgencyHigh), string(models.UrgencyCritical),
	).Scan(&stats.UrgentRequestsCount)
	if err != nil {
		return nil, fmt.Errorf("database error counting urgent requests: %w", err)
	}

	rows, err := s.db.Query(ctx, recentRequestsQuery, string(models.RequestStatusPending))
	if err != nil {
		return nil, fmt.Errorf("database error fetching recent requests: %w", err)
	}
	requests, err := collectRequests(rows)
	if err != nil {
		return nil, err
	}

	rows, err = s.db.Query(ctx, recentDonationsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("database error fetching recent donations: %w", err)
	}
	donations, err := collectDonations(rows)
	if err != nil {
		return nil, err
	}

	return &models.DashboardResponse{
		Stats:           stats,
		RecentRequests:  models.NewBloodRequestResponses(requests),
		RecentDonations: models.NewDonationResponses(donations),
	}, nil
}

// AvailableDonors lists donors who may donate today, optionally filtered by blood group and a
// case-insensitive address substring. Results are served from the cache when one is configured.
func (s *DashboardService) AvailableDonors(ctx context.Context, params models.AvailableDonorsParams) ([]models.AvailableDonor, error) {
	if err := validateStruct(s.validator, params); err != nil {
		return nil, err
	}
	params.Location = strings.TrimSpace(params.Location)

	key := DonorCacheKey(params)
	if s.cache != nil {
		donors, ok, err := s.cache.GetDonors(ctx, key)
		if err != nil {
			s.log.Warn("Donor cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			return donors, nil
		}
	}

	query := availableDonorsQuery
	args := []interface{}{s.cooldownCutoff()}
	argID := 2
	if params.BloodGroup != "" {
		query += fmt.Sprintf(" AND p.blood_group = $%d", argID)
		args = append(args, params.BloodGroup)
		argID++
	}
	if params.Location != "" {
		query += fmt.Sprintf(" AND p.address ILIKE $%d", argID)
		args = append(args, "%"+params.Location+"%")
	}
	query += ` ORDER BY p.full_name`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		s.log.Error("Error listing available donors", zap.Error(err))
		return nil, fmt.Errorf("database error listing donors: %w", err)
	}
	defer rows.Close()

	donors := []models.AvailableDonor{}
	for rows.Next() {
		var (
			d    models.AvailableDonor
			last *time.Time
		)
		if err := rows.Scan(&d.ID, &d.FullName, &d.BloodGroup, &d.Address, &d.Username, &last); err != nil {
			return nil, fmt.Errorf("error processing donor data: %w", err)
		}
		d.LastDonationDate = models.FormatDatePtr(last)
		donors = append(donors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database iteration error for donors: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetDonors(ctx, key, donors); err != nil {
			s.log.Warn("Donor cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return donors, nil
}

// DonorCacheKey builds the cache key for a donor listing filter.
func DonorCacheKey(params models.AvailableDonorsParams) string {
	group := params.BloodGroup
	if group == "" {
		group = "all"
	}
	return fmt.Sprintf("%s:%s", group, strings.ToLower(strings.TrimSpace(params.Location)))
}
