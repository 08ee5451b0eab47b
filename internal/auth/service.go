package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/db"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour

	roleClaim = "role"
)

// Queries lists the statements the auth flows need; *db.Queries satisfies it.
type Queries interface {
	CreateUser(ctx context.Context, arg db.CreateUserParams) (db.User, error)
	GetUserByEmail(ctx context.Context, email string) (db.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (db.User, error)
	CreateUserRank(ctx context.Context, userID uuid.UUID) error
	CreateSession(ctx context.Context, arg db.CreateSessionParams) (db.Session, error)
	GetSessionByToken(ctx context.Context, refreshToken string) (db.Session, error)
	UpdateSessionToken(ctx context.Context, arg db.UpdateSessionTokenParams) (db.Session, error)
	DeleteSessionByToken(ctx context.Context, refreshToken string) error
}

// Store adds transactional execution on top of Queries.
type Store interface {
	Queries
	WithinTx(ctx context.Context, fn func(Queries) error) error
}

type pgStore struct {
	*db.Queries
	pool db.Pool
}

// NewPGStore binds the auth store to a Postgres pool.
func NewPGStore(pool db.Pool) Store {
	return pgStore{Queries: db.New(pool), pool: pool}
}

func (s pgStore) WithinTx(ctx context.Context, fn func(Queries) error) error {
	return db.ExecTx(ctx, s.pool, func(q *db.Queries) error { return fn(q) })
}

// Service coordinates registration, credential checks and session rotation.
type Service struct {
	store      Store
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	signer     jwa.SignatureAlgorithm
	validator  TokenValidator
	issuer     string
	audience   string
	clockSkew  time.Duration
}

// Config configures the auth service.
type Config struct {
	Store           Store
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
	Audience        string
	ClockSkew       time.Duration
}

// User is the public view of an account.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RegisterInput carries a validated registration request.
type RegisterInput struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	Password    string `json:"password" validate:"required,min=6,max=128"`
	FullName    string `json:"full_name" validate:"required,max=255"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,vnphone"`
}

// LoginResult bundles token material returned after register, login and refresh.
type LoginResult struct {
	User          *User     `json:"user,omitempty"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// Claims are the identity facts carried by an access token.
type Claims struct {
	UserID string
	Role   string
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("auth: store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "storefront-api"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "storefront-web"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		store:      cfg.Store,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
		signer:     jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates the account and its starting rank row in one transaction, then signs the
// user in.
func (s *Service) Register(ctx context.Context, in RegisterInput, userAgent, ip string) (LoginResult, error) {
	email := normalizeEmail(in.Email)
	fullName := common.SanitizeText(in.FullName)
	if fullName == "" {
		return LoginResult{}, common.BadRequest("VALIDATION_ERROR", "full_name is required")
	}
	hash, err := argon2id.CreateHash(in.Password, argon2id.DefaultParams)
	if err != nil {
		return LoginResult{}, fmt.Errorf("hash password: %w", err)
	}

	var created db.User
	err = s.store.WithinTx(ctx, func(q Queries) error {
		var err error
		created, err = q.CreateUser(ctx, db.CreateUserParams{
			Email:              email,
			PasswordHash:       hash,
			FullName:           fullName,
			PhoneNumber:        pgText(in.PhoneNumber),
			RegistrationSource: "email",
		})
		if err != nil {
			return err
		}
		return q.CreateUserRank(ctx, created.ID)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return LoginResult{}, common.Conflict("EMAIL_ALREADY_USED", "email is already registered", err)
		}
		return LoginResult{}, fmt.Errorf("create user: %w", err)
	}
	return s.issue(ctx, created, userAgent, ip)
}

// Login verifies credentials and issues a new access/refresh token pair.
func (s *Service) Login(ctx context.Context, email, password, userAgent, ip string) (LoginResult, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || password == "" {
		return LoginResult{}, invalidCredentials()
	}
	user, err := s.store.GetUserByEmail(ctx, normalized)
	if err != nil {
		if db.IsNotFound(err) {
			return LoginResult{}, invalidCredentials()
		}
		return LoginResult{}, fmt.Errorf("load user: %w", err)
	}
	ok, err := argon2id.ComparePasswordAndHash(password, user.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, invalidCredentials()
	}
	return s.issue(ctx, user, userAgent, ip)
}

// Logout revokes the refresh token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return nil
	}
	return s.store.DeleteSessionByToken(ctx, hashRefreshToken(token))
}

// Refresh validates and rotates a refresh token. A rotated-out token can no longer be used.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return LoginResult{}, invalidRefresh()
	}
	hashed := hashRefreshToken(token)
	session, err := s.store.GetSessionByToken(ctx, hashed)
	if err != nil {
		return LoginResult{}, invalidRefresh()
	}
	if s.now().After(session.ExpiresAt) {
		_ = s.store.DeleteSessionByToken(ctx, hashed)
		return LoginResult{}, invalidRefresh()
	}
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		_ = s.store.DeleteSessionByToken(ctx, hashed)
		return LoginResult{}, invalidRefresh()
	}

	accessToken, accessExpiry, err := s.signAccessToken(user.ID.String(), user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	newRefresh, newHashed, refreshExpiry, err := s.newRefreshToken()
	if err != nil {
		return LoginResult{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if _, err := s.store.UpdateSessionToken(ctx, db.UpdateSessionTokenParams{
		ID:           session.ID,
		RefreshToken: newHashed,
		ExpiresAt:    refreshExpiry,
	}); err != nil {
		return LoginResult{}, fmt.Errorf("rotate session token: %w", err)
	}
	return LoginResult{
		AccessToken:   accessToken,
		AccessExpiry:  accessExpiry,
		RefreshToken:  newRefresh,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Me fetches the current authenticated user.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return User{}, common.Unauthorized("unauthorized")
		}
		return User{}, fmt.Errorf("load user: %w", err)
	}
	return ToUser(user), nil
}

// ParseAccessToken validates an access token and returns its subject and role.
func (s *Service) ParseAccessToken(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, common.Unauthorized("missing token")
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	claims := Claims{UserID: parsed.Subject(), Role: common.RoleUser}
	if raw, ok := parsed.Get(roleClaim); ok {
		if role, ok := raw.(string); ok && role != "" {
			claims.Role = role
		}
	}
	return claims, nil
}

func (s *Service) issue(ctx context.Context, user db.User, userAgent, ip string) (LoginResult, error) {
	accessToken, accessExpiry, err := s.signAccessToken(user.ID.String(), user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, hashed, refreshExpiry, err := s.newRefreshToken()
	if err != nil {
		return LoginResult{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if _, err := s.store.CreateSession(ctx, db.CreateSessionParams{
		UserID:       user.ID,
		RefreshToken: hashed,
		UserAgent:    pgText(userAgent),
		Ip:           pgText(ip),
		ExpiresAt:    refreshExpiry,
	}); err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}
	view := ToUser(user)
	return LoginResult{
		User:          &view,
		AccessToken:   accessToken,
		RefreshToken:  refresh,
		AccessExpiry:  accessExpiry,
		RefreshExpiry: refreshExpiry,
	}, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		switch {
		case alg == "":
			return "", errors.New("auth: token missing algorithm")
		case alg == jwa.NoSignature:
			return "", errors.New("auth: token uses none algorithm")
		case algorithm == "":
			algorithm = alg
		case algorithm != alg:
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(userID, role string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	if role == "" {
		role = common.RoleUser
	}
	token, err := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim(roleClaim, role).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func (s *Service) newRefreshToken() (token, hashed string, expiresAt time.Time, err error) {
	token, err = generateToken(48)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, hashRefreshToken(token), s.now().Add(s.refreshTTL), nil
}

// ToUser converts a row into the public view.
func ToUser(u db.User) User {
	out := User{
		ID:        u.ID.String(),
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.PhoneNumber.Valid {
		phone := u.PhoneNumber.String
		out.PhoneNumber = &phone
	}
	return out
}

func generateToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func pgText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func invalidCredentials() error {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)
}

func invalidRefresh() error {
	return common.Unauthorized("invalid refresh token")
}
