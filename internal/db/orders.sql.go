package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, order_number, user_id, address_id, cart_id, status, payment_method, payment_status,
    subtotal, discount_amount, shipping_fee, tax_amount, total, voucher_id, notes, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.OrderNumber,
		&i.UserID,
		&i.AddressID,
		&i.CartID,
		&i.Status,
		&i.PaymentMethod,
		&i.PaymentStatus,
		&i.Subtotal,
		&i.DiscountAmount,
		&i.ShippingFee,
		&i.TaxAmount,
		&i.Total,
		&i.VoucherID,
		&i.Notes,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (order_number, user_id, address_id, cart_id, payment_method,
    subtotal, discount_amount, shipping_fee, tax_amount, total, voucher_id, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	OrderNumber    string
	UserID         uuid.UUID
	AddressID      uuid.NullUUID
	CartID         uuid.NullUUID
	PaymentMethod  string
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingFee    decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
	VoucherID      uuid.NullUUID
	Notes          pgtype.Text
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OrderNumber,
		arg.UserID,
		arg.AddressID,
		arg.CartID,
		arg.PaymentMethod,
		arg.Subtotal,
		arg.DiscountAmount,
		arg.ShippingFee,
		arg.TaxAmount,
		arg.Total,
		arg.VoucherID,
		arg.Notes,
	)
	return scanOrder(row)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const listOrdersByUser = `-- name: ListOrdersByUser :many
SELECT ` + orderColumns + ` FROM orders
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

type ListOrdersByUserParams struct {
	UserID uuid.UUID
	Limit  int32
	Offset int32
}

func (q *Queries) ListOrdersByUser(ctx context.Context, arg ListOrdersByUserParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByUser, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countOrdersByUser = `-- name: CountOrdersByUser :one
SELECT count(*) FROM orders WHERE user_id = $1`

func (q *Queries) CountOrdersByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countOrdersByUser, userID).Scan(&count)
	return count, err
}

const applyOrderVoucher = `-- name: ApplyOrderVoucher :execrows
UPDATE orders SET voucher_id = $2, discount_amount = $3, tax_amount = $4, total = $5, updated_at = now()
WHERE id = $1 AND voucher_id IS NULL AND status = 'pending'`

type ApplyOrderVoucherParams struct {
	ID             uuid.UUID
	VoucherID      uuid.UUID
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

// ApplyOrderVoucher attaches a voucher to a pending order that has none yet.
func (q *Queries) ApplyOrderVoucher(ctx context.Context, arg ApplyOrderVoucherParams) (int64, error) {
	tag, err := q.db.Exec(ctx, applyOrderVoucher, arg.ID, arg.VoucherID, arg.DiscountAmount, arg.TaxAmount, arg.Total)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const updateOrderStatus = `-- name: UpdateOrderStatus :execrows
UPDATE orders SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`

type UpdateOrderStatusParams struct {
	ID         uuid.UUID
	FromStatus string
	ToStatus   string
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateOrderStatus, arg.ID, arg.FromStatus, arg.ToStatus)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (order_id, product_id, variant_id, product_name, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, order_id, product_id, variant_id, product_name, quantity, unit_price, line_total`

type CreateOrderItemParams struct {
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	VariantID   uuid.NullUUID
	ProductName string
	Quantity    int32
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

func scanOrderItem(row interface{ Scan(...any) error }) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(&i.ID, &i.OrderID, &i.ProductID, &i.VariantID, &i.ProductName, &i.Quantity, &i.UnitPrice, &i.LineTotal)
	return i, err
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.ProductID,
		arg.VariantID,
		arg.ProductName,
		arg.Quantity,
		arg.UnitPrice,
		arg.LineTotal,
	)
	return scanOrderItem(row)
}

const listOrderItems = `-- name: ListOrderItems :many
SELECT id, order_id, product_id, variant_id, product_name, quantity, unit_price, line_total
FROM order_items WHERE order_id = $1 ORDER BY id`

func (q *Queries) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		i, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createOrderStatusHistory = `-- name: CreateOrderStatusHistory :one
INSERT INTO order_status_history (order_id, from_status, to_status, note, changed_by)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, from_status, to_status, note, changed_by, created_at`

type CreateOrderStatusHistoryParams struct {
	OrderID    uuid.UUID
	FromStatus pgtype.Text
	ToStatus   string
	Note       pgtype.Text
	ChangedBy  uuid.NullUUID
}

func scanOrderStatusHistory(row interface{ Scan(...any) error }) (OrderStatusHistory, error) {
	var i OrderStatusHistory
	err := row.Scan(&i.ID, &i.OrderID, &i.FromStatus, &i.ToStatus, &i.Note, &i.ChangedBy, &i.CreatedAt)
	return i, err
}

func (q *Queries) CreateOrderStatusHistory(ctx context.Context, arg CreateOrderStatusHistoryParams) (OrderStatusHistory, error) {
	row := q.db.QueryRow(ctx, createOrderStatusHistory, arg.OrderID, arg.FromStatus, arg.ToStatus, arg.Note, arg.ChangedBy)
	return scanOrderStatusHistory(row)
}

const listOrderStatusHistory = `-- name: ListOrderStatusHistory :many
SELECT id, order_id, from_status, to_status, note, changed_by, created_at
FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id`

func (q *Queries) ListOrderStatusHistory(ctx context.Context, orderID uuid.UUID) ([]OrderStatusHistory, error) {
	rows, err := q.db.Query(ctx, listOrderStatusHistory, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderStatusHistory
	for rows.Next() {
		i, err := scanOrderStatusHistory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
