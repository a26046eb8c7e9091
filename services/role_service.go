package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"bloodbank/backend/database"
	"bloodbank/backend/models"
)

const (
	selectRolesQuery = `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`
	hasRoleQuery     = `SELECT EXISTS(SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`
	deleteRolesQuery = `DELETE FROM user_roles WHERE user_id = $1`
	insertRoleQuery  = `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`
	lockUserQuery    = `SELECT id FROM users WHERE id = $1 FOR UPDATE`
)

// RoleService is the role store: an explicit user id -> role tags assignment.
type RoleService struct {
	db  database.DBPool
	log *zap.Logger
}

// NewRoleService creates a new RoleService instance.
func NewRoleService(db database.DBPool, log *zap.Logger) *RoleService {
	return &RoleService{db: db, log: log}
}

// GetRoles returns the role tags assigned to the user, sorted.
func (s *RoleService) GetRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error) {
	return getRoles(ctx, s.db, userID)
}

// HasRole reports whether the user holds the given role tag.
func (s *RoleService) HasRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error) {
	return hasRole(ctx, s.db, userID, role)
}

// ReplaceRoles replaces the user's full role set. Calling it twice with the same set is a no-op
// in effect. A nil slice is rejected; an empty one clears every role.
func (s *RoleService) ReplaceRoles(ctx context.Context, userID uuid.UUID, roles []string) ([]models.Role, error) {
	if roles == nil {
		return nil, fieldError("roles", "This field is required.")
	}
	normalized, err := normalizeRoles(roles)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op once committed

	var lockedID uuid.UUID
	if err := tx.QueryRow(ctx, lockUserQuery, userID).Scan(&lockedID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, newError(ErrNotFound, "User not found")
		}
		return nil, fmt.Errorf("database error locking user: %w", err)
	}

	if err := replaceRolesTx(ctx, tx, userID, normalized); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit role update: %w", err)
	}

	s.log.Info("Roles replaced", zap.String("user_id", userID.String()), zap.Any("roles", normalized))
	return normalized, nil
}

// normalizeRoles validates tags, drops duplicates and sorts them.
func normalizeRoles(roles []string) ([]models.Role, error) {
	seen := make(map[models.Role]bool, len(roles))
	out := make([]models.Role, 0, len(roles))
	for _, r := range roles {
		role := models.Role(r)
		if !role.Valid() {
			return nil, fieldError("roles", fmt.Sprintf("\"%s\" is not a valid choice.", r))
		}
		if seen[role] {
			continue
		}
		seen[role] = true
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func replaceRolesTx(ctx context.Context, q database.Querier, userID uuid.UUID, roles []models.Role) error {
	if _, err := q.Exec(ctx, deleteRolesQuery, userID); err != nil {
		return fmt.Errorf("failed to clear roles: %w", err)
	}
	for _, role := range roles {
		if _, err := q.Exec(ctx, insertRoleQuery, userID, string(role)); err != nil {
			return fmt.Errorf("failed to assign role %s: %w", role, err)
		}
	}
	return nil
}

func getRoles(ctx context.Context, q database.Querier, userID uuid.UUID) ([]models.Role, error) {
	rows, err := q.Query(ctx, selectRolesQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("database error fetching roles: %w", err)
	}
	defer rows.Close()

	roles := []models.Role{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("error scanning role: %w", err)
		}
		roles = append(roles, models.Role(role))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database iteration error for roles: %w", err)
	}
	return roles, nil
}

func hasRole(ctx context.Context, q database.Querier, userID uuid.UUID, role models.Role) (bool, error) {
	var ok bool
	if err := q.QueryRow(ctx, hasRoleQuery, userID, string(role)).Scan(&ok); err != nil {
		return false, fmt.Errorf("database error checking role: %w", err)
	}
	return ok, nil
}
