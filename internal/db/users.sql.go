package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, email, password_hash, full_name, phone_number, gender, date_of_birth, avatar_url, role, registration_source, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.PasswordHash,
		&i.FullName,
		&i.PhoneNumber,
		&i.Gender,
		&i.DateOfBirth,
		&i.AvatarUrl,
		&i.Role,
		&i.RegistrationSource,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (email, password_hash, full_name, phone_number, registration_source)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + userColumns

type CreateUserParams struct {
	Email              string
	PasswordHash       string
	FullName           string
	PhoneNumber        pgtype.Text
	RegistrationSource string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser, arg.Email, arg.PasswordHash, arg.FullName, arg.PhoneNumber, arg.RegistrationSource)
	return scanUser(row)
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT ` + userColumns + ` FROM users WHERE email = $1`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByEmail, email))
}

const getUserByID = `-- name: GetUserByID :one
SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByID, id))
}

const updateUserProfile = `-- name: UpdateUserProfile :one
UPDATE users SET
    full_name = COALESCE($2, full_name),
    phone_number = COALESCE($3, phone_number),
    gender = COALESCE($4, gender),
    date_of_birth = COALESCE($5, date_of_birth),
    avatar_url = COALESCE($6, avatar_url),
    updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

type UpdateUserProfileParams struct {
	ID          uuid.UUID
	FullName    pgtype.Text
	PhoneNumber pgtype.Text
	Gender      pgtype.Text
	DateOfBirth pgtype.Date
	AvatarUrl   pgtype.Text
}

func (q *Queries) UpdateUserProfile(ctx context.Context, arg UpdateUserProfileParams) (User, error) {
	row := q.db.QueryRow(ctx, updateUserProfile, arg.ID, arg.FullName, arg.PhoneNumber, arg.Gender, arg.DateOfBirth, arg.AvatarUrl)
	return scanUser(row)
}

const listUsers = `-- name: ListUsers :many
SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

type ListUsersParams struct {
	Limit  int32
	Offset int32
}

func (q *Queries) ListUsers(ctx context.Context, arg ListUsersParams) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsers, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		i, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countUsers = `-- name: CountUsers :one
SELECT count(*) FROM users`

func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countUsers).Scan(&count)
	return count, err
}

const updateUserRole = `-- name: UpdateUserRole :one
UPDATE users SET role = $2, updated_at = now() WHERE id = $1
RETURNING ` + userColumns

type UpdateUserRoleParams struct {
	ID   uuid.UUID
	Role string
}

func (q *Queries) UpdateUserRole(ctx context.Context, arg UpdateUserRoleParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, updateUserRole, arg.ID, arg.Role))
}

const createSession = `-- name: CreateSession :one
INSERT INTO sessions (user_id, refresh_token, user_agent, ip, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, user_id, refresh_token, user_agent, ip, expires_at, created_at`

type CreateSessionParams struct {
	UserID       uuid.UUID
	RefreshToken string
	UserAgent    pgtype.Text
	Ip           pgtype.Text
	ExpiresAt    time.Time
}

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var i Session
	err := row.Scan(&i.ID, &i.UserID, &i.RefreshToken, &i.UserAgent, &i.Ip, &i.ExpiresAt, &i.CreatedAt)
	return i, err
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	row := q.db.QueryRow(ctx, createSession, arg.UserID, arg.RefreshToken, arg.UserAgent, arg.Ip, arg.ExpiresAt)
	return scanSession(row)
}

const getSessionByToken = `-- name: GetSessionByToken :one
SELECT id, user_id, refresh_token, user_agent, ip, expires_at, created_at
FROM sessions WHERE refresh_token = $1`

func (q *Queries) GetSessionByToken(ctx context.Context, refreshToken string) (Session, error) {
	return scanSession(q.db.QueryRow(ctx, getSessionByToken, refreshToken))
}

const updateSessionToken = `-- name: UpdateSessionToken :one
UPDATE sessions SET refresh_token = $2, expires_at = $3 WHERE id = $1
RETURNING id, user_id, refresh_token, user_agent, ip, expires_at, created_at`

type UpdateSessionTokenParams struct {
	ID           uuid.UUID
	RefreshToken string
	ExpiresAt    time.Time
}

func (q *Queries) UpdateSessionToken(ctx context.Context, arg UpdateSessionTokenParams) (Session, error) {
	return scanSession(q.db.QueryRow(ctx, updateSessionToken, arg.ID, arg.RefreshToken, arg.ExpiresAt))
}

const deleteSessionByToken = `-- name: DeleteSessionByToken :exec
DELETE FROM sessions WHERE refresh_token = $1`

func (q *Queries) DeleteSessionByToken(ctx context.Context, refreshToken string) error {
	_, err := q.db.Exec(ctx, deleteSessionByToken, refreshToken)
	return err
}

const createUserRank = `-- name: CreateUserRank :exec
INSERT INTO user_ranks (user_id, rank_level_id)
SELECT $1, id FROM rank_levels ORDER BY min_points ASC LIMIT 1
ON CONFLICT (user_id) DO NOTHING`

func (q *Queries) CreateUserRank(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.Exec(ctx, createUserRank, userID)
	return err
}

const getUserRank = `-- name: GetUserRank :one
SELECT ur.user_id, ur.points, rl.id, rl.name, rl.min_points, rl.discount_percent, ur.updated_at
FROM user_ranks ur
JOIN rank_levels rl ON rl.id = ur.rank_level_id
WHERE ur.user_id = $1`

func (q *Queries) GetUserRank(ctx context.Context, userID uuid.UUID) (UserRankRow, error) {
	var i UserRankRow
	err := q.db.QueryRow(ctx, getUserRank, userID).Scan(
		&i.UserID,
		&i.Points,
		&i.RankLevelID,
		&i.RankName,
		&i.MinPoints,
		&i.DiscountPercent,
		&i.UpdatedAt,
	)
	return i, err
}

const addUserPoints = `-- name: AddUserPoints :exec
UPDATE user_ranks SET
    points = points + $2,
    rank_level_id = (
        SELECT id FROM rank_levels
        WHERE min_points <= user_ranks.points + $2
        ORDER BY min_points DESC LIMIT 1
    ),
    updated_at = now()
WHERE user_id = $1`

type AddUserPointsParams struct {
	UserID uuid.UUID
	Points int32
}

func (q *Queries) AddUserPoints(ctx context.Context, arg AddUserPointsParams) error {
	_, err := q.db.Exec(ctx, addUserPoints, arg.UserID, arg.Points)
	return err
}

const addressColumns = `id, user_id, receiver_name, receiver_phone, street, ward, district, province, latitude, longitude, is_default, is_active, created_at, updated_at`

func scanAddress(row interface{ Scan(...any) error }) (Address, error) {
	var i Address
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.ReceiverName,
		&i.ReceiverPhone,
		&i.Street,
		&i.Ward,
		&i.District,
		&i.Province,
		&i.Latitude,
		&i.Longitude,
		&i.IsDefault,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listAddresses = `-- name: ListAddresses :many
SELECT ` + addressColumns + ` FROM addresses
WHERE user_id = $1 AND is_active
ORDER BY is_default DESC, created_at DESC`

func (q *Queries) ListAddresses(ctx context.Context, userID uuid.UUID) ([]Address, error) {
	rows, err := q.db.Query(ctx, listAddresses, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Address
	for rows.Next() {
		i, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getAddress = `-- name: GetAddress :one
SELECT ` + addressColumns + ` FROM addresses WHERE id = $1 AND user_id = $2 AND is_active`

type GetAddressParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (q *Queries) GetAddress(ctx context.Context, arg GetAddressParams) (Address, error) {
	return scanAddress(q.db.QueryRow(ctx, getAddress, arg.ID, arg.UserID))
}

const getDefaultAddress = `-- name: GetDefaultAddress :one
SELECT ` + addressColumns + ` FROM addresses WHERE user_id = $1 AND is_default AND is_active`

func (q *Queries) GetDefaultAddress(ctx context.Context, userID uuid.UUID) (Address, error) {
	return scanAddress(q.db.QueryRow(ctx, getDefaultAddress, userID))
}

const countAddresses = `-- name: CountAddresses :one
SELECT count(*) FROM addresses WHERE user_id = $1 AND is_active`

func (q *Queries) CountAddresses(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countAddresses, userID).Scan(&count)
	return count, err
}

const createAddress = `-- name: CreateAddress :one
INSERT INTO addresses (user_id, receiver_name, receiver_phone, street, ward, district, province, latitude, longitude, is_default)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + addressColumns

type CreateAddressParams struct {
	UserID        uuid.UUID
	ReceiverName  string
	ReceiverPhone string
	Street        string
	Ward          string
	District      string
	Province      string
	Latitude      pgtype.Float8
	Longitude     pgtype.Float8
	IsDefault     bool
}

func (q *Queries) CreateAddress(ctx context.Context, arg CreateAddressParams) (Address, error) {
	row := q.db.QueryRow(ctx, createAddress,
		arg.UserID,
		arg.ReceiverName,
		arg.ReceiverPhone,
		arg.Street,
		arg.Ward,
		arg.District,
		arg.Province,
		arg.Latitude,
		arg.Longitude,
		arg.IsDefault,
	)
	return scanAddress(row)
}

const updateAddress = `-- name: UpdateAddress :one
UPDATE addresses SET
    receiver_name = COALESCE($3, receiver_name),
    receiver_phone = COALESCE($4, receiver_phone),
    street = COALESCE($5, street),
    ward = COALESCE($6, ward),
    district = COALESCE($7, district),
    province = COALESCE($8, province),
    latitude = COALESCE($9, latitude),
    longitude = COALESCE($10, longitude),
    is_default = COALESCE($11, is_default),
    updated_at = now()
WHERE id = $1 AND user_id = $2 AND is_active
RETURNING ` + addressColumns

type UpdateAddressParams struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	ReceiverName  pgtype.Text
	ReceiverPhone pgtype.Text
	Street        pgtype.Text
	Ward          pgtype.Text
	District      pgtype.Text
	Province      pgtype.Text
	Latitude      pgtype.Float8
	Longitude     pgtype.Float8
	IsDefault     pgtype.Bool
}

func (q *Queries) UpdateAddress(ctx context.Context, arg UpdateAddressParams) (Address, error) {
	row := q.db.QueryRow(ctx, updateAddress,
		arg.ID,
		arg.UserID,
		arg.ReceiverName,
		arg.ReceiverPhone,
		arg.Street,
		arg.Ward,
		arg.District,
		arg.Province,
		arg.Latitude,
		arg.Longitude,
		arg.IsDefault,
	)
	return scanAddress(row)
}

const clearDefaultAddress = `-- name: ClearDefaultAddress :exec
UPDATE addresses SET is_default = false, updated_at = now()
WHERE user_id = $1 AND is_default`

func (q *Queries) ClearDefaultAddress(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.Exec(ctx, clearDefaultAddress, userID)
	return err
}

const deactivateAddress = `-- name: DeactivateAddress :execrows
UPDATE addresses SET is_active = false, is_default = false, updated_at = now()
WHERE id = $1 AND user_id = $2 AND is_active`

type DeactivateAddressParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (q *Queries) DeactivateAddress(ctx context.Context, arg DeactivateAddressParams) (int64, error) {
	tag, err := q.db.Exec(ctx, deactivateAddress, arg.ID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
