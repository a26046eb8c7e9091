package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bloodbank/backend/models"
)

func setupProfileTest(t *testing.T) (*ProfileService, pgxmock.PgxPoolIface) {
	mock := newMockPool(t)
	svc := NewProfileService(mock, nil, zap.NewNop())
	svc.now = clock
	return svc, mock
}

func TestProfileService_GetProfile(t *testing.T) {
	svc, mock := setupProfileTest(t)
	userID := uuid.New()
	last := daysFromToday(-20)

	mock.ExpectQuery(regexp.QuoteMeta(selectProfileQuery)).WithArgs(userID).
		WillReturnRows(profileRows(userID, false, &last))
	mock.ExpectQuery(regexp.QuoteMeta(selectRolesQuery)).WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("donor"))

	resp, err := svc.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, resp.Eligible)
	require.NotNil(t, resp.NextEligibleDate)
	assert.Equal(t, models.FormatDate(last.AddDate(0, 0, models.CooldownDays)), *resp.NextEligibleDate)
	assert.Equal(t, []models.Role{models.RoleDonor}, resp.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileService_GetProfile_NotFound(t *testing.T) {
	svc, mock := setupProfileTest(t)
	userID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(selectProfileQuery)).WithArgs(userID).WillReturnRows(pgxmock.NewRows(profileCols))

	_, err := svc.GetProfile(context.Background(), userID)
	requireKind(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileService_CreateProfile_ReplacesRoles(t *testing.T) {
	svc, mock := setupProfileTest(t)
	userID := uuid.New()
	req := models.CreateProfileRequest{
		FullName:   "Dana Donor",
		Age:        30,
		Address:    "12 Main Street",
		BloodGroup: "O-",
		Roles:      []string{"recipient", "donor", "donor"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(insertProfileQuery)).
		WithArgs(pgxmock.AnyArg(), userID, "Dana Donor", 30, "12 Main Street", "O-", "").
		WillReturnRows(pgxmock.NewRows([]string{"is_available_for_donation", "created_at", "updated_at"}).AddRow(true, fixedNow, fixedNow))
	mock.ExpectExec(regexp.QuoteMeta(deleteRolesQuery)).WithArgs(userID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(regexp.QuoteMeta(insertRoleQuery)).WithArgs(userID, "donor").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(insertRoleQuery)).WithArgs(userID, "recipient").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	resp, err := svc.CreateProfile(context.Background(), userID, req)
	require.NoError(t, err)
	assert.True(t, resp.Eligible)
	assert.Nil(t, resp.LastDonationDate)
	assert.Equal(t, []models.Role{models.RoleDonor, models.RoleRecipient}, resp.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileService_CreateProfile_AlreadyExists(t *testing.T) {
	svc, mock := setupProfileTest(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(insertProfileQuery)).WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := svc.CreateProfile(context.Background(), userID, models.CreateProfileRequest{
		FullName: "Dana", Age: 30, Address: "Somewhere", BloodGroup: "A+",
	})
	requireKind(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileService_CreateProfile_InvalidRole(t *testing.T) {
	svc, mock := setupProfileTest(t)

	_, err := svc.CreateProfile(context.Background(), uuid.New(), models.CreateProfileRequest{
		FullName: "Dana", Age: 30, Address: "Somewhere", BloodGroup: "A+", Roles: []string{"superuser"},
	})
	requireKind(t, err, ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Partial update keeps unspecified fields and leaves the role set alone.
func TestProfileService_UpdateProfile_Partial(t *testing.T) {
	svc, mock := setupProfileTest(t)
	userID := uuid.New()
	newAddress := "99 Elm Street"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectProfileForUpdateQuery)).WithArgs(userID).
		WillReturnRows(profileRows(userID, true, nil))
	mock.ExpectQuery(regexp.QuoteMeta(updateProfileQuery)).
		WithArgs("Dana Donor", 30, newAddress, "O+", "555-0101", userID).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(fixedNow))
	mock.ExpectQuery(regexp.QuoteMeta(selectRolesQuery)).WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("donor"))
	mock.ExpectCommit()

	resp, err := svc.UpdateProfile(context.Background(), userID, models.UpdateProfileRequest{Address: &newAddress})
	require.NoError(t, err)
	assert.Equal(t, newAddress, resp.Address)
	assert.Equal(t, "Dana Donor", resp.FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileService_UpdateProfile_EmptyRolesClearsSet(t *testing.T) {
	svc, mock := setupProfileTest(t)
	userID := uuid.New()
	roles := []string{}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectProfileForUpdateQuery)).WithArgs(userID).
		WillReturnRows(profileRows(userID, true, nil))
	mock.ExpectQuery(regexp.QuoteMeta(updateProfileQuery)).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(fixedNow))
	mock.ExpectExec(regexp.QuoteMeta(deleteRolesQuery)).WithArgs(userID).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	resp, err := svc.UpdateProfile(context.Background(), userID, models.UpdateProfileRequest{Roles: &roles})
	require.NoError(t, err)
	assert.Empty(t, resp.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileService_UpdateProfile_NotFound(t *testing.T) {
	svc, mock := setupProfileTest(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectProfileForUpdateQuery)).WithArgs(userID).WillReturnRows(pgxmock.NewRows(profileCols))
	mock.ExpectRollback()

	_, err := svc.UpdateProfile(context.Background(), userID, models.UpdateProfileRequest{})
	requireKind(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A new donor profile shows up in the public listing straight away instead of after the
// cached listing expires.
func TestProfileService_CreateProfile_RefreshesDonorListing(t *testing.T) {
	svc, mock := setupProfileTest(t)
	cache := newFakeCache()
	svc.cache = cache
	dashboard := NewDashboardService(mock, cache, zap.NewNop())
	dashboard.now = clock
	userID := uuid.New()

	require.NoError(t, cache.SetDonors(context.Background(), DonorCacheKey(models.AvailableDonorsParams{}), []models.AvailableDonor{}))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(insertProfileQuery)).
		WithArgs(pgxmock.AnyArg(), userID, "Dana Donor", 30, "12 Main Street", "O-", "").
		WillReturnRows(pgxmock.NewRows([]string{"is_available_for_donation", "created_at", "updated_at"}).AddRow(true, fixedNow, fixedNow))
	mock.ExpectQuery(regexp.QuoteMeta(selectRolesQuery)).WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("donor"))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(availableDonorsQuery + " ORDER BY p.full_name")).
		WithArgs(daysFromToday(-models.CooldownDays)).
		WillReturnRows(pgxmock.NewRows(donorCols).AddRow(uuid.New(), "Dana Donor", models.BloodGroupONeg, "12 Main Street", "dana", nil))

	_, err := svc.CreateProfile(context.Background(), userID, models.CreateProfileRequest{
		FullName: "Dana Donor", Age: 30, Address: "12 Main Street", BloodGroup: "O-",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidations)

	donors, err := dashboard.AvailableDonors(context.Background(), models.AvailableDonorsParams{})
	require.NoError(t, err)
	require.Len(t, donors, 1)
	assert.Equal(t, "Dana Donor", donors[0].FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileService_UpdateProfile_InvalidatesDonorCache(t *testing.T) {
	svc, mock := setupProfileTest(t)
	cache := newFakeCache()
	svc.cache = cache
	userID := uuid.New()
	group := "AB+"

	require.NoError(t, cache.SetDonors(context.Background(), "O+:", []models.AvailableDonor{{FullName: "Dana Donor"}}))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectProfileForUpdateQuery)).WithArgs(userID).
		WillReturnRows(profileRows(userID, true, nil))
	mock.ExpectQuery(regexp.QuoteMeta(updateProfileQuery)).
		WithArgs("Dana Donor", 30, "12 Main Street, Springfield", "AB+", "555-0101", userID).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(fixedNow))
	mock.ExpectQuery(regexp.QuoteMeta(selectRolesQuery)).WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("donor"))
	mock.ExpectCommit()

	_, err := svc.UpdateProfile(context.Background(), userID, models.UpdateProfileRequest{BloodGroup: &group})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidations)
	assert.Empty(t, cache.entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Failed writes leave the cache alone.
func TestProfileService_UpdateProfile_NotFoundKeepsCache(t *testing.T) {
	svc, mock := setupProfileTest(t)
	cache := newFakeCache()
	svc.cache = cache
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectProfileForUpdateQuery)).WithArgs(userID).WillReturnRows(pgxmock.NewRows(profileCols))
	mock.ExpectRollback()

	_, err := svc.UpdateProfile(context.Background(), userID, models.UpdateProfileRequest{})
	requireKind(t, err, ErrNotFound)
	assert.Zero(t, cache.invalidations)
	assert.NoError(t, mock.ExpectationsWereMet())
}
