package db

import (
	"context"

	"github.com/google/uuid"
)

const cartColumns = `id, user_id, status, created_at, updated_at`

func scanCart(row interface{ Scan(...any) error }) (Cart, error) {
	var i Cart
	err := row.Scan(&i.ID, &i.UserID, &i.Status, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getActiveCart = `-- name: GetActiveCart :one
SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1 AND status = 'active'`

func (q *Queries) GetActiveCart(ctx context.Context, userID uuid.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, getActiveCart, userID))
}

const getActiveCartForUpdate = `-- name: GetActiveCartForUpdate :one
SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1 AND status = 'active' FOR UPDATE`

func (q *Queries) GetActiveCartForUpdate(ctx context.Context, userID uuid.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, getActiveCartForUpdate, userID))
}

const ensureActiveCart = `-- name: EnsureActiveCart :one
INSERT INTO carts (user_id) VALUES ($1)
ON CONFLICT (user_id) WHERE status = 'active' DO UPDATE SET updated_at = now()
RETURNING ` + cartColumns

// EnsureActiveCart returns the user's active cart, creating it when missing.
func (q *Queries) EnsureActiveCart(ctx context.Context, userID uuid.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, ensureActiveCart, userID))
}

const markCartConverted = `-- name: MarkCartConverted :execrows
UPDATE carts SET status = 'converted', updated_at = now() WHERE id = $1 AND status = 'active'`

func (q *Queries) MarkCartConverted(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, markCartConverted, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listCartLines = `-- name: ListCartLines :many
SELECT ci.id, ci.cart_id, ci.product_id, ci.variant_id, ci.quantity,
    p.name, p.is_active, v.color, v.size,
    COALESCE(v.additional_price, 0),
    cp.price + COALESCE(v.additional_price, 0)
FROM cart_items ci
JOIN products p ON p.id = ci.product_id
LEFT JOIN product_variants v ON v.id = ci.variant_id` + currentPriceJoin + `
WHERE ci.cart_id = $1
ORDER BY ci.created_at, ci.id`

func (q *Queries) ListCartLines(ctx context.Context, cartID uuid.UUID) ([]CartLine, error) {
	rows, err := q.db.Query(ctx, listCartLines, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CartLine
	for rows.Next() {
		var i CartLine
		if err := rows.Scan(
			&i.ID,
			&i.CartID,
			&i.ProductID,
			&i.VariantID,
			&i.Quantity,
			&i.ProductName,
			&i.ProductActive,
			&i.Color,
			&i.Size,
			&i.AdditionalPrice,
			&i.UnitPrice,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const cartItemColumns = `id, cart_id, product_id, variant_id, quantity, created_at, updated_at`

func scanCartItem(row interface{ Scan(...any) error }) (CartItem, error) {
	var i CartItem
	err := row.Scan(&i.ID, &i.CartID, &i.ProductID, &i.VariantID, &i.Quantity, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const upsertCartItem = `-- name: UpsertCartItem :one
INSERT INTO cart_items (cart_id, product_id, variant_id, quantity)
VALUES ($1, $2, $3, $4)
ON CONFLICT (cart_id, product_id, COALESCE(variant_id, '00000000-0000-0000-0000-000000000000'::uuid))
DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = now()
RETURNING ` + cartItemColumns

type UpsertCartItemParams struct {
	CartID    uuid.UUID
	ProductID uuid.UUID
	VariantID uuid.NullUUID
	Quantity  int32
}

// UpsertCartItem adds a line or increases the quantity of the matching product/variant line.
func (q *Queries) UpsertCartItem(ctx context.Context, arg UpsertCartItemParams) (CartItem, error) {
	row := q.db.QueryRow(ctx, upsertCartItem, arg.CartID, arg.ProductID, arg.VariantID, arg.Quantity)
	return scanCartItem(row)
}

const updateCartItemQuantity = `-- name: UpdateCartItemQuantity :one
UPDATE cart_items SET quantity = $3, updated_at = now()
WHERE id = $1 AND cart_id = $2
RETURNING ` + cartItemColumns

type UpdateCartItemQuantityParams struct {
	ID       uuid.UUID
	CartID   uuid.UUID
	Quantity int32
}

func (q *Queries) UpdateCartItemQuantity(ctx context.Context, arg UpdateCartItemQuantityParams) (CartItem, error) {
	return scanCartItem(q.db.QueryRow(ctx, updateCartItemQuantity, arg.ID, arg.CartID, arg.Quantity))
}

const deleteCartItem = `-- name: DeleteCartItem :execrows
DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`

type DeleteCartItemParams struct {
	ID     uuid.UUID
	CartID uuid.UUID
}

func (q *Queries) DeleteCartItem(ctx context.Context, arg DeleteCartItemParams) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteCartItem, arg.ID, arg.CartID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
