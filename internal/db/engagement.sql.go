package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const wishlistRowSelect = `SELECT w.id, w.user_id, w.product_id, w.created_at, p.name, p.is_active, cp.price
FROM wishlists w
JOIN products p ON p.id = w.product_id` + currentPriceJoin

func scanWishlistRow(row interface{ Scan(...any) error }) (WishlistRow, error) {
	var i WishlistRow
	err := row.Scan(&i.ID, &i.UserID, &i.ProductID, &i.CreatedAt, &i.ProductName, &i.ProductActive, &i.CurrentPrice)
	return i, err
}

func collectWishlistRows(ctx context.Context, q *Queries, sql string, args ...any) ([]WishlistRow, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []WishlistRow
	for rows.Next() {
		i, err := scanWishlistRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listWishlist = `-- name: ListWishlist :many
` + wishlistRowSelect + `
WHERE w.user_id = $1
ORDER BY w.created_at DESC`

func (q *Queries) ListWishlist(ctx context.Context, userID uuid.UUID) ([]WishlistRow, error) {
	return collectWishlistRows(ctx, q, listWishlist, userID)
}

const listAllWishlists = `-- name: ListAllWishlists :many
` + wishlistRowSelect + `
ORDER BY w.created_at DESC
LIMIT $1 OFFSET $2`

type ListAllWishlistsParams struct {
	Limit  int32
	Offset int32
}

func (q *Queries) ListAllWishlists(ctx context.Context, arg ListAllWishlistsParams) ([]WishlistRow, error) {
	return collectWishlistRows(ctx, q, listAllWishlists, arg.Limit, arg.Offset)
}

const countAllWishlists = `-- name: CountAllWishlists :one
SELECT count(*) FROM wishlists`

func (q *Queries) CountAllWishlists(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countAllWishlists).Scan(&count)
	return count, err
}

const addWishlist = `-- name: AddWishlist :one
INSERT INTO wishlists (user_id, product_id) VALUES ($1, $2)
RETURNING id, user_id, product_id, created_at`

type AddWishlistParams struct {
	UserID    uuid.UUID
	ProductID uuid.UUID
}

func (q *Queries) AddWishlist(ctx context.Context, arg AddWishlistParams) (Wishlist, error) {
	var i Wishlist
	err := q.db.QueryRow(ctx, addWishlist, arg.UserID, arg.ProductID).Scan(&i.ID, &i.UserID, &i.ProductID, &i.CreatedAt)
	return i, err
}

const deleteWishlist = `-- name: DeleteWishlist :one
DELETE FROM wishlists WHERE id = $1 AND user_id = $2
RETURNING id, user_id, product_id, created_at`

type DeleteWishlistParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (q *Queries) DeleteWishlist(ctx context.Context, arg DeleteWishlistParams) (Wishlist, error) {
	var i Wishlist
	err := q.db.QueryRow(ctx, deleteWishlist, arg.ID, arg.UserID).Scan(&i.ID, &i.UserID, &i.ProductID, &i.CreatedAt)
	return i, err
}

const notificationColumns = `id, user_id, type, title, content, action_url, is_read, read_at, is_dismissed, created_at`

func scanNotification(row interface{ Scan(...any) error }) (Notification, error) {
	var i Notification
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Type,
		&i.Title,
		&i.Content,
		&i.ActionUrl,
		&i.IsRead,
		&i.ReadAt,
		&i.IsDismissed,
		&i.CreatedAt,
	)
	return i, err
}

const createNotification = `-- name: CreateNotification :one
INSERT INTO notifications (user_id, type, title, content, action_url)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + notificationColumns

type CreateNotificationParams struct {
	UserID    uuid.UUID
	Type      string
	Title     string
	Content   string
	ActionUrl pgtype.Text
}

func (q *Queries) CreateNotification(ctx context.Context, arg CreateNotificationParams) (Notification, error) {
	row := q.db.QueryRow(ctx, createNotification, arg.UserID, arg.Type, arg.Title, arg.Content, arg.ActionUrl)
	return scanNotification(row)
}

const listNotifications = `-- name: ListNotifications :many
SELECT ` + notificationColumns + ` FROM notifications
WHERE user_id = $1 AND NOT is_dismissed
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

type ListNotificationsParams struct {
	UserID uuid.UUID
	Limit  int32
	Offset int32
}

func (q *Queries) ListNotifications(ctx context.Context, arg ListNotificationsParams) ([]Notification, error) {
	rows, err := q.db.Query(ctx, listNotifications, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Notification
	for rows.Next() {
		i, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countNotifications = `-- name: CountNotifications :one
SELECT count(*), count(*) FILTER (WHERE NOT is_read)
FROM notifications WHERE user_id = $1 AND NOT is_dismissed`

type CountNotificationsRow struct {
	Total  int64
	Unread int64
}

func (q *Queries) CountNotifications(ctx context.Context, userID uuid.UUID) (CountNotificationsRow, error) {
	var i CountNotificationsRow
	err := q.db.QueryRow(ctx, countNotifications, userID).Scan(&i.Total, &i.Unread)
	return i, err
}

const markNotificationRead = `-- name: MarkNotificationRead :one
UPDATE notifications SET is_read = true, read_at = COALESCE(read_at, $3)
WHERE id = $1 AND user_id = $2
RETURNING ` + notificationColumns

type MarkNotificationReadParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
	ReadAt time.Time
}

func (q *Queries) MarkNotificationRead(ctx context.Context, arg MarkNotificationReadParams) (Notification, error) {
	return scanNotification(q.db.QueryRow(ctx, markNotificationRead, arg.ID, arg.UserID, arg.ReadAt))
}

const insertAuditLog = `-- name: InsertAuditLog :one
INSERT INTO audit_logs (actor_kind, actor_user_id, action, resource_type, resource_id, method, path,
    route, status, ip, user_agent, request_id, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id, created_at`

type InsertAuditLogParams struct {
	ActorKind    string
	ActorUserID  uuid.NullUUID
	Action       string
	ResourceType string
	ResourceID   pgtype.Text
	Method       string
	Path         string
	Route        pgtype.Text
	Status       int32
	Ip           pgtype.Text
	UserAgent    pgtype.Text
	RequestID    pgtype.Text
	Metadata     []byte
}

type InsertAuditLogRow struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (InsertAuditLogRow, error) {
	var i InsertAuditLogRow
	err := q.db.QueryRow(ctx, insertAuditLog,
		arg.ActorKind,
		arg.ActorUserID,
		arg.Action,
		arg.ResourceType,
		arg.ResourceID,
		arg.Method,
		arg.Path,
		arg.Route,
		arg.Status,
		arg.Ip,
		arg.UserAgent,
		arg.RequestID,
		arg.Metadata,
	).Scan(&i.ID, &i.CreatedAt)
	return i, err
}

const listAuditLogs = `-- name: ListAuditLogs :many
SELECT id, actor_kind, actor_user_id, action, resource_type, resource_id, method, path, route,
    status, ip, user_agent, request_id, metadata, created_at
FROM audit_logs
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`

type ListAuditLogsParams struct {
	Limit  int32
	Offset int32
}

func (q *Queries) ListAuditLogs(ctx context.Context, arg ListAuditLogsParams) ([]AuditLog, error) {
	rows, err := q.db.Query(ctx, listAuditLogs, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AuditLog
	for rows.Next() {
		var i AuditLog
		if err := rows.Scan(
			&i.ID,
			&i.ActorKind,
			&i.ActorUserID,
			&i.Action,
			&i.ResourceType,
			&i.ResourceID,
			&i.Method,
			&i.Path,
			&i.Route,
			&i.Status,
			&i.Ip,
			&i.UserAgent,
			&i.RequestID,
			&i.Metadata,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
