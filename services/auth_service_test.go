package services

import (
	"context"
	"errors"
	"regexp" // For matching SQL queries in mock
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3" // Mocking library
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"bloodbank/backend/config"
	"bloodbank/backend/models"
)

// recordingNotifier captures verification links instead of sending them.
type recordingNotifier struct {
	to, link string
	err      error
}

func (n *recordingNotifier) SendVerificationEmail(_ context.Context, to, _ string, link string) error {
	n.to, n.link = to, link
	return n.err
}

// Helper function to create a mock database connection and auth service for tests
func setupAuthTest(t *testing.T) (*AuthService, pgxmock.PgxPoolIface, *recordingNotifier) {
	mock := newMockPool(t)
	testCfg := &config.Config{
		JWTSecret:       "test-secret-key", // Use a fixed secret for tests
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		VerifyTokenTTL:  24 * time.Hour,
		FrontendURL:     "http://localhost:5173/",
	}
	notifier := &recordingNotifier{}
	return NewAuthService(testCfg, mock, notifier, zap.NewNop()), mock, notifier
}

var userCols = []string{"id", "username", "email", "password_hash", "is_active", "created_at", "updated_at"}

func hashPassword(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestAuthService_Register_Success(t *testing.T) {
	authService, mock, notifier := setupAuthTest(t)
	req := models.RegisterRequest{Username: "dana", Email: "dana@example.com", Password: "secret123"}

	mock.ExpectQuery(regexp.QuoteMeta(checkUserExistsQuery)).WithArgs(req.Username, req.Email).
		WillReturnRows(pgxmock.NewRows([]string{"username", "email"}).AddRow(false, false))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(insertUserQuery)).
		WithArgs(pgxmock.AnyArg(), req.Username, req.Email, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(fixedNow, fixedNow))
	mock.ExpectCommit()

	user, err := authService.Register(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, user.IsActive)
	assert.Equal(t, req.Email, notifier.to)

	// Link shape: {frontend}/verify/{uid}/{token}
	prefix := "http://localhost:5173/verify/" + user.ID.String() + "/"
	require.True(t, strings.HasPrefix(notifier.link, prefix), notifier.link)
	claims, err := ParseToken("test-secret-key", strings.TrimPrefix(notifier.link, prefix))
	require.NoError(t, err)
	assert.Equal(t, PurposeVerifyEmail, claims.Purpose)
	assert.Equal(t, user.ID, claims.UserID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	authService, mock, notifier := setupAuthTest(t)
	req := models.RegisterRequest{Username: "dana", Email: "dana@example.com", Password: "secret123"}

	mock.ExpectQuery(regexp.QuoteMeta(checkUserExistsQuery)).WithArgs(req.Username, req.Email).
		WillReturnRows(pgxmock.NewRows([]string{"username", "email"}).AddRow(false, true))

	_, err := authService.Register(context.Background(), req)
	svcErr := requireKind(t, err, ErrValidation)
	assert.Contains(t, svcErr.Fields, "email")
	assert.NotContains(t, svcErr.Fields, "username")
	assert.Empty(t, notifier.link)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthService_Register_InvalidInput(t *testing.T) {
	authService, mock, _ := setupAuthTest(t)

	_, err := authService.Register(context.Background(), models.RegisterRequest{Username: "da", Email: "nope", Password: "123"})
	svcErr := requireKind(t, err, ErrValidation)
	assert.Len(t, svcErr.Fields, 3)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A failed verification mail aborts registration instead of leaving an unreachable account.
func TestAuthService_Register_MailFailureRollsBack(t *testing.T) {
	authService, mock, notifier := setupAuthTest(t)
	notifier.err = errors.New("smtp: connection refused")
	req := models.RegisterRequest{Username: "dana", Email: "dana@example.com", Password: "secret123"}

	mock.ExpectQuery(regexp.QuoteMeta(checkUserExistsQuery)).
		WillReturnRows(pgxmock.NewRows([]string{"username", "email"}).AddRow(false, false))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(insertUserQuery)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(fixedNow, fixedNow))
	mock.ExpectRollback()

	_, err := authService.Register(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, notifier.err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthService_VerifyEmail(t *testing.T) {
	authService, mock, _ := setupAuthTest(t)
	userID := uuid.New()
	token, err := authService.generateVerifyToken(userID)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(activateUserQuery)).WithArgs(userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, authService.VerifyEmail(context.Background(), userID.String(), token))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthService_VerifyEmail_InvalidLinks(t *testing.T) {
	authService, mock, _ := setupAuthTest(t)
	userID := uuid.New()
	verifyToken, err := authService.generateVerifyToken(userID)
	require.NoError(t, err)
	accessToken, err := authService.generateJWT(userID)
	require.NoError(t, err)

	tests := []struct {
		name, uid, token string
	}{
		{"bad uid", "not-a-uuid", verifyToken},
		{"token for another user", uuid.New().String(), verifyToken},
		{"access token", userID.String(), accessToken},
		{"garbage token", userID.String(), "abc.def.ghi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authService.VerifyEmail(context.Background(), tt.uid, tt.token)
			svcErr := requireKind(t, err, ErrValidation)
			assert.Equal(t, "Invalid verification link", svcErr.Message)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthService_Login_Success(t *testing.T) {
	authService, mock, _ := setupAuthTest(t)
	userID := uuid.New()
	req := models.LoginRequest{UsernameOrEmail: "dana@example.com", Password: "secret123"}

	mock.ExpectQuery(regexp.QuoteMeta(selectUserLogin)).WithArgs(req.UsernameOrEmail).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(userID, "dana", "dana@example.com", hashPassword(t, req.Password), true, fixedNow, fixedNow))
	mock.ExpectQuery(regexp.QuoteMeta(selectRolesQuery)).WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("donor").AddRow("recipient"))

	resp, err := authService.Login(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleDonor, models.RoleRecipient}, resp.User.Roles)

	// Validate JWT token structure/claims
	token, _, err := new(jwt.Parser).ParseUnverified(resp.Token, jwt.MapClaims{})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, userID.String(), claims["user_id"])
	assert.NotContains(t, claims, "purpose")
	expTime := time.Unix(int64(claims["exp"].(float64)), 0)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), expTime, time.Minute)

	refresh, err := ParseToken("test-secret-key", resp.Refresh)
	require.NoError(t, err)
	assert.Equal(t, PurposeRefresh, refresh.Purpose)
	assert.Equal(t, userID, refresh.UserID)
	assert.NotEqual(t, uuid.Nil, refresh.ID)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), refresh.ExpiresAt, time.Minute)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// When one account's username equals another account's email, the username match wins.
func TestAuthService_Login_PrefersExactUsername(t *testing.T) {
	authService, mock, _ := setupAuthTest(t)
	userID := uuid.New()

	mock.ExpectQuery(`WHERE username = \$1 OR LOWER\(email\) = LOWER\(\$1\) ORDER BY \(username = \$1\) DESC LIMIT 1`).
		WithArgs("ann@example.com").
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(userID, "ann@example.com", "ann@other.org", hashPassword(t, "secret123"), true, fixedNow, fixedNow))
	mock.ExpectQuery(regexp.QuoteMeta(selectRolesQuery)).WithArgs(userID).WillReturnRows(pgxmock.NewRows([]string{"role"}))

	resp, err := authService.Login(context.Background(), models.LoginRequest{UsernameOrEmail: "ann@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, userID, resp.User.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// issueRefresh signs a refresh token the way Login does.
func issueRefresh(t *testing.T, svc *AuthService, userID uuid.UUID) (string, *TokenClaims) {
	t.Helper()
	token, err := svc.generateRefreshToken(userID)
	require.NoError(t, err)
	claims, err := ParseToken("test-secret-key", token)
	require.NoError(t, err)
	return token, claims
}

func TestAuthService_RefreshToken_Rotates(t *testing.T) {
	authService, mock, _ := setupAuthTest(t)
	userID := uuid.New()
	token, claims := issueRefresh(t, authService, userID)

	mock.ExpectQuery(regexp.QuoteMeta(selectUserActive)).WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"is_active"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta(revokeTokenQuery)).WithArgs(claims.ID, userID, claims.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	pair, err := authService.RefreshToken(context.Background(), models.RefreshRequest{Refresh: token})
	require.NoError(t, err)

	access, err := ParseToken("test-secret-key", pair.Access)
	require.NoError(t, err)
	assert.Empty(t, access.Purpose)
	assert.Equal(t, userID, access.UserID)

	next, err := ParseToken("test-secret-key", pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, PurposeRefresh, next.Purpose)
	assert.NotEqual(t, claims.ID, next.ID, "rotation issues a fresh token id")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A refresh token can be spent once; presenting it again (or after logout) is refused.
func TestAuthService_RefreshToken_SpentTokenRejected(t *testing.T) {
	authService, mock, _ := setupAuthTest(t)
	userID := uuid.New()
	token, claims := issueRefresh(t, authService, userID)

	mock.ExpectQuery(regexp.QuoteMeta(selectUserActive)).WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"is_active"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta(revokeTokenQuery)).WithArgs(claims.ID, userID, claims.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	_, err := authService.RefreshToken(context.Background(), models.RefreshRequest{Refresh: token})
	svcErr := requireKind(t, err, ErrUnauthorized)
	assert.Equal(t, "Token is invalid or expired", svcErr.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthService_RefreshToken_InvalidTokens(t *testing.T) {
	authService, mock, _ := setupAuthTest(t)
	userID := uuid.New()
	access, err := authService.generateJWT(userID)
	require.NoError(t, err)
	verify, err := authService.generateVerifyToken(userID)
	require.NoError(t, err)
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(), "purpose": PurposeRefresh, "jti": uuid.NewString(),
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	expiredToken, err := expired.SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"access token":       access,
		"verification token": verify,
		"expired":            expiredToken,
		"garbage":            "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := authService.RefreshToken(context.Background(), models.RefreshRequest{Refresh: token})
			requireKind(t, err, ErrUnauthorized)
		})
	}

	_, err = authService.RefreshToken(context.Background(), models.RefreshRequest{})
	requireKind(t, err, ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthService_RefreshToken_InactiveUser(t *testing.T) {
	authService, mock, _ := setupAuthTest(t)
	userID := uuid.New()
	token, _ := issueRefresh(t, authService, userID)

	mock.ExpectQuery(regexp.QuoteMeta(selectUserActive)).WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"is_active"}))

	_, err := authService.RefreshToken(context.Background(), models.RefreshRequest{Refresh: token})
	requireKind(t, err, ErrUnauthorized)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthService_Logout(t *testing.T) {
	authService, mock, _ := setupAuthTest(t)
	userID := uuid.New()
	token, claims := issueRefresh(t, authService, userID)

	// Logging out twice revokes once and still succeeds.
	mock.ExpectExec(regexp.QuoteMeta(revokeTokenQuery)).WithArgs(claims.ID, userID, claims.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(revokeTokenQuery)).WithArgs(claims.ID, userID, claims.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, authService.Logout(context.Background(), userID, models.RefreshRequest{Refresh: token}))
	require.NoError(t, authService.Logout(context.Background(), userID, models.RefreshRequest{Refresh: token}))

	err := authService.Logout(context.Background(), uuid.New(), models.RefreshRequest{Refresh: token})
	svcErr := requireKind(t, err, ErrValidation)
	assert.Equal(t, "Invalid refresh token", svcErr.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthService_Login_Failures(t *testing.T) {
	userID := uuid.New()

	t.Run("unknown user", func(t *testing.T) {
		authService, mock, _ := setupAuthTest(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectUserLogin)).WithArgs("ghost").WillReturnRows(pgxmock.NewRows(userCols))

		_, err := authService.Login(context.Background(), models.LoginRequest{UsernameOrEmail: "ghost", Password: "secret123"})
		svcErr := requireKind(t, err, ErrValidation)
		assert.Equal(t, "Invalid User Credentials", svcErr.Message)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password", func(t *testing.T) {
		authService, mock, _ := setupAuthTest(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectUserLogin)).WithArgs("dana").
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow(userID, "dana", "dana@example.com", hashPassword(t, "secret123"), true, fixedNow, fixedNow))

		_, err := authService.Login(context.Background(), models.LoginRequest{UsernameOrEmail: "dana", Password: "wrong"})
		svcErr := requireKind(t, err, ErrValidation)
		assert.Equal(t, "Invalid User Credentials", svcErr.Message)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inactive account", func(t *testing.T) {
		authService, mock, _ := setupAuthTest(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectUserLogin)).WithArgs("dana").
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow(userID, "dana", "dana@example.com", hashPassword(t, "secret123"), false, fixedNow, fixedNow))

		_, err := authService.Login(context.Background(), models.LoginRequest{UsernameOrEmail: "dana", Password: "secret123"})
		svcErr := requireKind(t, err, ErrValidation)
		assert.Equal(t, "User account is not active", svcErr.Message)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuthService_IsActive(t *testing.T) {
	authService, mock, _ := setupAuthTest(t)
	active, missing := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(selectUserActive)).WithArgs(active).
		WillReturnRows(pgxmock.NewRows([]string{"is_active"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(selectUserActive)).WithArgs(missing).
		WillReturnRows(pgxmock.NewRows([]string{"is_active"}))

	ok, err := authService.IsActive(context.Background(), active)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = authService.IsActive(context.Background(), missing)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": uuid.New().String()})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseToken("test-secret-key", signed)
	assert.Error(t, err)
}
