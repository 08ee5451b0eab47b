package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const voucherColumns = `id, code, description, kind, value, min_order_value, max_discount_amount,
    valid_from, valid_to, is_active, usage_limit, usage_limit_per_user, used_count, created_at, updated_at`

func voucherScanTargets(i *Voucher) []any {
	return []any{
		&i.ID,
		&i.Code,
		&i.Description,
		&i.Kind,
		&i.Value,
		&i.MinOrderValue,
		&i.MaxDiscountAmount,
		&i.ValidFrom,
		&i.ValidTo,
		&i.IsActive,
		&i.UsageLimit,
		&i.UsageLimitPerUser,
		&i.UsedCount,
		&i.CreatedAt,
		&i.UpdatedAt,
	}
}

func scanVoucher(row interface{ Scan(...any) error }) (Voucher, error) {
	var i Voucher
	err := row.Scan(voucherScanTargets(&i)...)
	return i, err
}

const listActiveVouchers = `-- name: ListActiveVouchers :many
SELECT ` + voucherColumns + ` FROM vouchers
WHERE is_active AND valid_from <= $1 AND valid_to >= $1
ORDER BY valid_to ASC`

func (q *Queries) ListActiveVouchers(ctx context.Context, now time.Time) ([]Voucher, error) {
	rows, err := q.db.Query(ctx, listActiveVouchers, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Voucher
	for rows.Next() {
		i, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getVoucher = `-- name: GetVoucher :one
SELECT ` + voucherColumns + ` FROM vouchers WHERE id = $1`

func (q *Queries) GetVoucher(ctx context.Context, id uuid.UUID) (Voucher, error) {
	return scanVoucher(q.db.QueryRow(ctx, getVoucher, id))
}

const getVoucherForUpdate = `-- name: GetVoucherForUpdate :one
SELECT ` + voucherColumns + ` FROM vouchers WHERE id = $1 FOR UPDATE`

func (q *Queries) GetVoucherForUpdate(ctx context.Context, id uuid.UUID) (Voucher, error) {
	return scanVoucher(q.db.QueryRow(ctx, getVoucherForUpdate, id))
}

const getVoucherByCode = `-- name: GetVoucherByCode :one
SELECT ` + voucherColumns + ` FROM vouchers WHERE code = $1`

func (q *Queries) GetVoucherByCode(ctx context.Context, code string) (Voucher, error) {
	return scanVoucher(q.db.QueryRow(ctx, getVoucherByCode, code))
}

const getVoucherByCodeForUpdate = `-- name: GetVoucherByCodeForUpdate :one
SELECT ` + voucherColumns + ` FROM vouchers WHERE code = $1 FOR UPDATE`

func (q *Queries) GetVoucherByCodeForUpdate(ctx context.Context, code string) (Voucher, error) {
	return scanVoucher(q.db.QueryRow(ctx, getVoucherByCodeForUpdate, code))
}

const createVoucher = `-- name: CreateVoucher :one
INSERT INTO vouchers (code, description, kind, value, min_order_value, max_discount_amount,
    valid_from, valid_to, is_active, usage_limit, usage_limit_per_user)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + voucherColumns

type CreateVoucherParams struct {
	Code              string
	Description       string
	Kind              string
	Value             decimal.Decimal
	MinOrderValue     decimal.NullDecimal
	MaxDiscountAmount decimal.NullDecimal
	ValidFrom         time.Time
	ValidTo           time.Time
	IsActive          bool
	UsageLimit        pgtype.Int4
	UsageLimitPerUser pgtype.Int4
}

func (q *Queries) CreateVoucher(ctx context.Context, arg CreateVoucherParams) (Voucher, error) {
	row := q.db.QueryRow(ctx, createVoucher,
		arg.Code,
		arg.Description,
		arg.Kind,
		arg.Value,
		arg.MinOrderValue,
		arg.MaxDiscountAmount,
		arg.ValidFrom,
		arg.ValidTo,
		arg.IsActive,
		arg.UsageLimit,
		arg.UsageLimitPerUser,
	)
	return scanVoucher(row)
}

const incrementVoucherUsage = `-- name: IncrementVoucherUsage :execrows
UPDATE vouchers SET used_count = used_count + 1, updated_at = now()
WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

// IncrementVoucherUsage bumps used_count only while the global limit still has room; zero rows
// affected means the limit was reached.
func (q *Queries) IncrementVoucherUsage(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, incrementVoucherUsage, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const userVoucherColumns = `id, voucher_id, user_id, is_used, assigned_at, used_at`

func scanUserVoucher(row interface{ Scan(...any) error }) (UserVoucher, error) {
	var i UserVoucher
	err := row.Scan(&i.ID, &i.VoucherID, &i.UserID, &i.IsUsed, &i.AssignedAt, &i.UsedAt)
	return i, err
}

const getOpenAssignment = `-- name: GetOpenAssignment :one
SELECT ` + userVoucherColumns + ` FROM user_vouchers
WHERE voucher_id = $1 AND user_id = $2 AND NOT is_used
ORDER BY assigned_at ASC
LIMIT 1
FOR UPDATE`

type GetOpenAssignmentParams struct {
	VoucherID uuid.UUID
	UserID    uuid.UUID
}

func (q *Queries) GetOpenAssignment(ctx context.Context, arg GetOpenAssignmentParams) (UserVoucher, error) {
	return scanUserVoucher(q.db.QueryRow(ctx, getOpenAssignment, arg.VoucherID, arg.UserID))
}

const countAssignments = `-- name: CountAssignments :one
SELECT count(*) FROM user_vouchers WHERE voucher_id = $1 AND user_id = $2`

type CountAssignmentsParams struct {
	VoucherID uuid.UUID
	UserID    uuid.UUID
}

func (q *Queries) CountAssignments(ctx context.Context, arg CountAssignmentsParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countAssignments, arg.VoucherID, arg.UserID).Scan(&count)
	return count, err
}

const countUsedAssignments = `-- name: CountUsedAssignments :one
SELECT count(*) FROM user_vouchers WHERE voucher_id = $1 AND user_id = $2 AND is_used`

func (q *Queries) CountUsedAssignments(ctx context.Context, arg CountAssignmentsParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countUsedAssignments, arg.VoucherID, arg.UserID).Scan(&count)
	return count, err
}

const createAssignment = `-- name: CreateAssignment :one
INSERT INTO user_vouchers (voucher_id, user_id, assigned_at)
VALUES ($1, $2, $3)
RETURNING ` + userVoucherColumns

type CreateAssignmentParams struct {
	VoucherID  uuid.UUID
	UserID     uuid.UUID
	AssignedAt time.Time
}

func (q *Queries) CreateAssignment(ctx context.Context, arg CreateAssignmentParams) (UserVoucher, error) {
	return scanUserVoucher(q.db.QueryRow(ctx, createAssignment, arg.VoucherID, arg.UserID, arg.AssignedAt))
}

const markAssignmentUsed = `-- name: MarkAssignmentUsed :execrows
UPDATE user_vouchers SET is_used = true, used_at = $2
WHERE id = $1 AND NOT is_used`

type MarkAssignmentUsedParams struct {
	ID     uuid.UUID
	UsedAt time.Time
}

// MarkAssignmentUsed flips an unused assignment to used; zero rows affected means another
// transaction consumed it first.
func (q *Queries) MarkAssignmentUsed(ctx context.Context, arg MarkAssignmentUsedParams) (int64, error) {
	tag, err := q.db.Exec(ctx, markAssignmentUsed, arg.ID, arg.UsedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listUserVouchers = `-- name: ListUserVouchers :many
SELECT uv.id, uv.voucher_id, uv.user_id, uv.is_used, uv.assigned_at, uv.used_at,
    v.id, v.code, v.description, v.kind, v.value, v.min_order_value, v.max_discount_amount,
    v.valid_from, v.valid_to, v.is_active, v.usage_limit, v.usage_limit_per_user, v.used_count,
    v.created_at, v.updated_at
FROM user_vouchers uv
JOIN vouchers v ON v.id = uv.voucher_id
WHERE uv.user_id = $1 AND NOT uv.is_used AND v.is_active AND v.valid_to >= $2
ORDER BY v.valid_to ASC, uv.assigned_at ASC`

type ListUserVouchersParams struct {
	UserID uuid.UUID
	Now    time.Time
}

func (q *Queries) ListUserVouchers(ctx context.Context, arg ListUserVouchersParams) ([]UserVoucherRow, error) {
	rows, err := q.db.Query(ctx, listUserVouchers, arg.UserID, arg.Now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UserVoucherRow
	for rows.Next() {
		var i UserVoucherRow
		a := &i.Assignment
		targets := append([]any{&a.ID, &a.VoucherID, &a.UserID, &a.IsUsed, &a.AssignedAt, &a.UsedAt}, voucherScanTargets(&i.Voucher)...)
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
