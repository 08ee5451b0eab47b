package user

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-api/internal/audit"
	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/db"
)

const dateLayout = "2006-01-02"

var (
	errUserNotFound    = common.NotFound("USER_NOT_FOUND", "user not found")
	errRankNotFound    = common.NotFound("RANK_NOT_FOUND", "rank not found")
	errAddressNotFound = common.NotFound("ADDRESS_NOT_FOUND", "address not found")
)

// Queries captures the database methods required by the user service.
type Queries interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (db.User, error)
	UpdateUserProfile(ctx context.Context, arg db.UpdateUserProfileParams) (db.User, error)
	ListUsers(ctx context.Context, arg db.ListUsersParams) ([]db.User, error)
	CountUsers(ctx context.Context) (int64, error)
	UpdateUserRole(ctx context.Context, arg db.UpdateUserRoleParams) (db.User, error)
	GetUserRank(ctx context.Context, userID uuid.UUID) (db.UserRankRow, error)

	ListAddresses(ctx context.Context, userID uuid.UUID) ([]db.Address, error)
	GetAddress(ctx context.Context, arg db.GetAddressParams) (db.Address, error)
	CountAddresses(ctx context.Context, userID uuid.UUID) (int64, error)
	CreateAddress(ctx context.Context, arg db.CreateAddressParams) (db.Address, error)
	UpdateAddress(ctx context.Context, arg db.UpdateAddressParams) (db.Address, error)
	ClearDefaultAddress(ctx context.Context, userID uuid.UUID) error
	DeactivateAddress(ctx context.Context, arg db.DeactivateAddressParams) (int64, error)
}

// Store exposes Queries and runs callbacks in a transaction.
type Store interface {
	Queries
	WithinTx(ctx context.Context, fn func(Queries) error) error
}

type pgStore struct {
	*db.Queries
	pool db.Pool
}

// NewPGStore returns a Store backed by the pool.
func NewPGStore(pool db.Pool) Store {
	return &pgStore{Queries: db.New(pool), pool: pool}
}

func (s *pgStore) WithinTx(ctx context.Context, fn func(Queries) error) error {
	return db.ExecTx(ctx, s.pool, func(q *db.Queries) error { return fn(q) })
}

// Service manages profiles, address books and roles.
type Service struct {
	Store Store
	Audit *audit.Service
}

// Profile is the API shape of an account.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name"`
	PhoneNumber *string   `json:"phone_number"`
	Gender      *string   `json:"gender"`
	DateOfBirth *string   `json:"date_of_birth"`
	AvatarURL   *string   `json:"avatar_url"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Profile returns the user's profile.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	if err := s.ready(); err != nil {
		return Profile{}, err
	}
	u, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return Profile{}, errUserNotFound
		}
		return Profile{}, err
	}
	return toProfile(u), nil
}

// UpdateProfileInput is a partial profile update; nil fields stay unchanged.
type UpdateProfileInput struct {
	FullName    *string `json:"full_name" validate:"omitempty,max=255"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,vnphone"`
	Gender      *string `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	AvatarURL   *string `json:"avatar_url" validate:"omitempty,url,max=500"`
}

// UpdateProfile applies the provided fields.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, in UpdateProfileInput) (Profile, error) {
	if err := s.ready(); err != nil {
		return Profile{}, err
	}
	params := db.UpdateUserProfileParams{ID: userID}
	if in.FullName != nil {
		name := common.SanitizeText(*in.FullName)
		if name == "" {
			return Profile{}, common.BadRequest("VALIDATION_ERROR", "full_name cannot be empty")
		}
		params.FullName = pgtype.Text{String: name, Valid: true}
	}
	if in.PhoneNumber != nil {
		phone := strings.TrimSpace(*in.PhoneNumber)
		if !common.IsPhoneNumber(phone) {
			return Profile{}, common.BadRequest("VALIDATION_ERROR", "invalid phone number")
		}
		params.PhoneNumber = pgtype.Text{String: phone, Valid: true}
	}
	if in.Gender != nil {
		switch g := strings.ToLower(strings.TrimSpace(*in.Gender)); g {
		case "male", "female", "other":
			params.Gender = pgtype.Text{String: g, Valid: true}
		default:
			return Profile{}, common.BadRequest("VALIDATION_ERROR", "gender must be one of male, female, other")
		}
	}
	if in.DateOfBirth != nil {
		dob, err := time.Parse(dateLayout, strings.TrimSpace(*in.DateOfBirth))
		if err != nil {
			return Profile{}, common.BadRequest("VALIDATION_ERROR", "date_of_birth must be YYYY-MM-DD")
		}
		params.DateOfBirth = pgtype.Date{Time: dob, Valid: true}
	}
	if in.AvatarURL != nil {
		params.AvatarUrl = pgtype.Text{String: strings.TrimSpace(*in.AvatarURL), Valid: true}
	}
	u, err := s.Store.UpdateUserProfile(ctx, params)
	if err != nil {
		if db.IsNotFound(err) {
			return Profile{}, errUserNotFound
		}
		return Profile{}, err
	}
	return toProfile(u), nil
}

// Rank is the user's loyalty standing.
type Rank struct {
	Points          int32           `json:"points"`
	Level           string          `json:"level"`
	MinPoints       int32           `json:"min_points"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Rank returns points and rank level.
func (s *Service) Rank(ctx context.Context, userID uuid.UUID) (Rank, error) {
	if err := s.ready(); err != nil {
		return Rank{}, err
	}
	row, err := s.Store.GetUserRank(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return Rank{}, errRankNotFound
		}
		return Rank{}, err
	}
	return Rank{
		Points:          row.Points,
		Level:           row.RankName,
		MinPoints:       row.MinPoints,
		DiscountPercent: row.DiscountPercent,
		UpdatedAt:       row.UpdatedAt,
	}, nil
}

// List returns a page of users for administrators.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Profile, int64, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	rows, err := s.Store.ListUsers(ctx, db.ListUsersParams{Limit: int32(perPage), Offset: int32(common.Offset(page, perPage))})
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Store.CountUsers(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Profile, 0, len(rows))
	for _, u := range rows {
		out = append(out, toProfile(u))
	}
	return out, total, nil
}

// UpdateRoleInput sets a user's role.
type UpdateRoleInput struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

// UpdateRole changes a user's role.
func (s *Service) UpdateRole(ctx context.Context, userID uuid.UUID, in UpdateRoleInput) (Profile, error) {
	if err := s.ready(); err != nil {
		return Profile{}, err
	}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role != common.RoleUser && role != common.RoleAdmin {
		return Profile{}, common.BadRequest("VALIDATION_ERROR", "role must be user or admin")
	}
	before, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return Profile{}, errUserNotFound
		}
		return Profile{}, err
	}
	u, err := s.Store.UpdateUserRole(ctx, db.UpdateUserRoleParams{ID: userID, Role: role})
	if err != nil {
		if db.IsNotFound(err) {
			return Profile{}, errUserNotFound
		}
		return Profile{}, err
	}
	s.Audit.RecordAsync(ctx, audit.Entry{
		Action:       "UPDATE_USER_ROLE",
		ResourceType: "users",
		ResourceID:   userID.String(),
		Status:       http.StatusOK,
		Old:          map[string]string{"role": before.Role},
		New:          map[string]string{"role": u.Role},
	})
	return toProfile(u), nil
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("user service not configured")
	}
	return nil
}

func toProfile(u db.User) Profile {
	p := Profile{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	p.PhoneNumber = textPtr(u.PhoneNumber)
	p.Gender = textPtr(u.Gender)
	p.AvatarURL = textPtr(u.AvatarUrl)
	if u.DateOfBirth.Valid {
		d := u.DateOfBirth.Time.Format(dateLayout)
		p.DateOfBirth = &d
	}
	return p
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}
