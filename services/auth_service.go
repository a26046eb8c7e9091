package services

import (
	"context" // For database operations context
	"errors"  // For creating standard errors
	"fmt"     // For string formatting
	"strings"
	"time" // For time operations (JWT expiry)

	"github.com/go-playground/validator/v10" // For request validation
	"github.com/golang-jwt/jwt/v5"           // For JWT generation and validation
	"github.com/google/uuid"                 // For UUIDs
	"github.com/jackc/pgx/v5"                // For pgx specific errors (like no rows)
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt" // For password hashing

	"bloodbank/backend/config"   // Local config package
	"bloodbank/backend/database" // Local database package
	"bloodbank/backend/models"   // Local models package
)

// Token purposes. Access tokens carry none; the auth middleware refuses any token that does.
const (
	PurposeVerifyEmail = "verify_email"
	PurposeRefresh     = "refresh"
)

const (
	checkUserExistsQuery = `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1), EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($2))`

	insertUserQuery = `
		INSERT INTO users (id, username, email, password_hash, is_active)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING created_at, updated_at`

	activateUserQuery = `UPDATE users SET is_active = TRUE, updated_at = NOW() WHERE id = $1`
	userColumns       = `id, username, email, password_hash, is_active, created_at, updated_at`
	selectUserByID    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	selectUserActive  = `SELECT is_active FROM users WHERE id = $1`

	// An exact username match wins over another account's email.
	selectUserLogin = `
		SELECT ` + userColumns + ` FROM users
		WHERE username = $1 OR LOWER(email) = LOWER($1)
		ORDER BY (username = $1) DESC
		LIMIT 1`

	revokeTokenQuery = `INSERT INTO revoked_tokens (jti, user_id, expires_at) VALUES ($1, $2, $3) ON CONFLICT (jti) DO NOTHING`
)

// Messages kept stable for clients.
const (
	msgInvalidCredentials = "Invalid User Credentials"
	msgInactiveAccount    = "User account is not active"
	msgInvalidVerifyLink  = "Invalid verification link"
	msgInvalidRefresh     = "Token is invalid or expired"
)

// AuthService handles registration, email verification, login and the identity lookups used
// by the auth middleware.
type AuthService struct {
	cfg       *config.Config
	db        database.DBPool
	notifier  Notifier
	validator *validator.Validate
	log       *zap.Logger
	now       func() time.Time
}

// NewAuthService creates a new AuthService instance.
func NewAuthService(cfg *config.Config, db database.DBPool, notifier Notifier, log *zap.Logger) *AuthService {
	return &AuthService{
		cfg:       cfg,
		db:        db,
		notifier:  notifier,
		validator: newValidator(), // Initialize validator
		log:       log,
		now:       time.Now,
	}
}

// Register creates an inactive user and sends the verification link. The user row is only
// committed once the e-mail has been handed to the notifier.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.UserResponse, error) {
	// 1. Validate request data
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}

	// 2. Check if username or email already exists
	var usernameTaken, emailTaken bool
	if err := s.db.QueryRow(ctx, checkUserExistsQuery, req.Username, req.Email).Scan(&usernameTaken, &emailTaken); err != nil {
		s.log.Error("Error checking user existence", zap.String("email", req.Email), zap.Error(err))
		return nil, fmt.Errorf("database error checking user existence: %w", err)
	}
	if usernameTaken || emailTaken {
		fields := map[string]string{}
		if usernameTaken {
			fields["username"] = "A user with that username already exists."
		}
		if emailTaken {
			fields["email"] = "A user with that email already exists."
		}
		return nil, validationError("invalid input", fields)
	}

	// 3. Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// 4. Create the user and send the verification mail in one transaction
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	user := &models.User{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
	}
	err = tx.QueryRow(ctx, insertUserQuery, user.ID, user.Username, user.Email, user.PasswordHash).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, validationError("invalid input", map[string]string{"username": "A user with that username or email already exists."})
		}
		s.log.Error("Error inserting new user", zap.String("email", req.Email), zap.Error(err))
		return nil, fmt.Errorf("failed to create user in database: %w", err)
	}

	token, err := s.generateVerifyToken(user.ID)
	if err != nil {
		return nil, err
	}
	link := fmt.Sprintf("%s/verify/%s/%s", strings.TrimRight(s.cfg.FrontendURL, "/"), user.ID, token)
	if err := s.notifier.SendVerificationEmail(ctx, user.Email, user.Username, link); err != nil {
		s.log.Error("Verification email failed, registration rolled back", zap.String("email", user.Email), zap.Error(err))
		return nil, fmt.Errorf("sending verification email: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit registration: %w", err)
	}

	s.log.Info("User registered", zap.String("user_id", user.ID.String()), zap.String("username", user.Username))
	resp := models.NewUserResponse(user, nil)
	return &resp, nil
}

// VerifyEmail activates the user identified by uid when token is a valid verification token
// issued for that user.
func (s *AuthService) VerifyEmail(ctx context.Context, uid, token string) error {
	userID, err := uuid.Parse(uid)
	if err != nil {
		return newError(ErrValidation, msgInvalidVerifyLink)
	}
	claims, err := ParseToken(s.cfg.JWTSecret, token)
	if err != nil || claims.Purpose != PurposeVerifyEmail || claims.UserID != userID {
		return newError(ErrValidation, msgInvalidVerifyLink)
	}

	tag, err := s.db.Exec(ctx, activateUserQuery, userID)
	if err != nil {
		return fmt.Errorf("database error activating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return newError(ErrValidation, msgInvalidVerifyLink)
	}
	s.log.Info("User email verified", zap.String("user_id", userID.String()))
	return nil
}

// Login authenticates by username or email and returns an access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	// 1. Validate request data
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}

	// 2. Find the user by username or email
	user, err := scanUser(s.db.QueryRow(ctx, selectUserLogin, req.UsernameOrEmail))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Info("Login failed: unknown user", zap.String("identifier", req.UsernameOrEmail))
			return nil, newError(ErrValidation, msgInvalidCredentials)
		}
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}

	// 3. Compare the provided password with the stored hash
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.log.Info("Login failed: bad password", zap.String("user_id", user.ID.String()))
		return nil, newError(ErrValidation, msgInvalidCredentials)
	}
	if !user.IsActive {
		return nil, newError(ErrValidation, msgInactiveAccount)
	}

	// 4. Generate the access and refresh tokens
	pair, err := s.issueTokens(user.ID)
	if err != nil {
		return nil, err
	}
	roles, err := getRoles(ctx, s.db, user.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info("User logged in", zap.String("user_id", user.ID.String()))
	return &models.LoginResponse{
		Token:   pair.Access,
		Refresh: pair.Refresh,
		User:    models.NewUserResponse(user, roles),
	}, nil
}

// RefreshToken spends a refresh token and returns a new access/refresh pair. A token that was
// already rotated or logged out is refused.
func (s *AuthService) RefreshToken(ctx context.Context, req models.RefreshRequest) (*models.TokenPairResponse, error) {
	if err := validateStruct(s.validator, req); err != nil {
		return nil, err
	}
	claims, err := s.parseRefreshToken(req.Refresh)
	if err != nil {
		s.log.Info("Refresh rejected", zap.Error(err))
		return nil, newError(ErrUnauthorized, msgInvalidRefresh)
	}

	active, err := s.IsActive(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, newError(ErrUnauthorized, msgInvalidRefresh)
	}

	tag, err := s.db.Exec(ctx, revokeTokenQuery, claims.ID, claims.UserID, claims.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("database error revoking refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.log.Warn("Spent refresh token presented again",
			zap.String("user_id", claims.UserID.String()), zap.String("jti", claims.ID.String()))
		return nil, newError(ErrUnauthorized, msgInvalidRefresh)
	}

	pair, err := s.issueTokens(claims.UserID)
	if err != nil {
		return nil, err
	}
	s.log.Info("Tokens refreshed", zap.String("user_id", claims.UserID.String()))
	return pair, nil
}

// Logout revokes the caller's refresh token. Revoking it twice is not an error.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, req models.RefreshRequest) error {
	if err := validateStruct(s.validator, req); err != nil {
		return err
	}
	claims, err := s.parseRefreshToken(req.Refresh)
	if err != nil || claims.UserID != userID {
		return newError(ErrValidation, "Invalid refresh token")
	}

	if _, err := s.db.Exec(ctx, revokeTokenQuery, claims.ID, claims.UserID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("database error revoking refresh token: %w", err)
	}
	s.log.Info("User logged out", zap.String("user_id", userID.String()))
	return nil
}

// GetCurrentUser returns the authenticated user's public data.
func (s *AuthService) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*models.UserResponse, error) {
	user, err := scanUser(s.db.QueryRow(ctx, selectUserByID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, newError(ErrNotFound, "User not found")
		}
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}
	roles, err := getRoles(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	resp := models.NewUserResponse(user, roles)
	return &resp, nil
}

// IsActive reports whether the user exists and has verified their email.
func (s *AuthService) IsActive(ctx context.Context, userID uuid.UUID) (bool, error) {
	var active bool
	err := s.db.QueryRow(ctx, selectUserActive, userID).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("database error checking user: %w", err)
	}
	return active, nil
}

// generateJWT creates a new access token for a given user ID.
func (s *AuthService) generateJWT(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     now.Add(s.cfg.AccessTokenTTL).Unix(),
		"iat":     now.Unix(),
	}
	return s.sign(claims)
}

func (s *AuthService) generateRefreshToken(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"purpose": PurposeRefresh,
		"jti":     uuid.NewString(),
		"exp":     now.Add(s.cfg.RefreshTokenTTL).Unix(),
		"iat":     now.Unix(),
	}
	return s.sign(claims)
}

func (s *AuthService) issueTokens(userID uuid.UUID) (*models.TokenPairResponse, error) {
	access, err := s.generateJWT(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.generateRefreshToken(userID)
	if err != nil {
		return nil, err
	}
	return &models.TokenPairResponse{Access: access, Refresh: refresh}, nil
}

func (s *AuthService) parseRefreshToken(token string) (*TokenClaims, error) {
	claims, err := ParseToken(s.cfg.JWTSecret, token)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != PurposeRefresh || claims.ID == uuid.Nil || claims.ExpiresAt.IsZero() {
		return nil, errors.New("not a refresh token")
	}
	return claims, nil
}

func (s *AuthService) generateVerifyToken(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"purpose": PurposeVerifyEmail,
		"exp":     now.Add(s.cfg.VerifyTokenTTL).Unix(),
		"iat":     now.Unix(),
	}
	return s.sign(claims)
}

func (s *AuthService) sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// TokenClaims are the claims extracted from a verified token.
type TokenClaims struct {
	UserID    uuid.UUID
	Purpose   string    // Empty for access tokens
	ID        uuid.UUID // jti; only refresh tokens carry one
	ExpiresAt time.Time
}

// ParseToken verifies an HS256 token signed with secret and extracts its claims.
func ParseToken(secret, tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	rawID, ok := claims["user_id"].(string)
	if !ok {
		return nil, errors.New("user_id missing from token")
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id in token: %w", err)
	}
	out := &TokenClaims{UserID: userID}
	out.Purpose, _ = claims["purpose"].(string)
	if rawJTI, ok := claims["jti"].(string); ok {
		if out.ID, err = uuid.Parse(rawJTI); err != nil {
			return nil, fmt.Errorf("invalid jti in token: %w", err)
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
