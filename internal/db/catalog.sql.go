package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// currentPriceJoin resolves the price row in effect at now(): active, started, and either open
// ended or ending in the future.
const currentPriceJoin = `
LEFT JOIN LATERAL (
    SELECT ph.price FROM product_price_history ph
    WHERE ph.product_id = p.id
      AND ph.is_active
      AND ph.effective_date <= now()
      AND (ph.end_date IS NULL OR ph.end_date > now())
    ORDER BY ph.effective_date DESC
    LIMIT 1
) cp ON true`

const productRowSelect = `SELECT p.id, p.name, p.description, p.sku, p.brand_id, p.type_id, p.image_urls,
    p.average_rating, p.is_active, p.created_at, p.updated_at,
    b.name, t.name, cp.price
FROM products p
LEFT JOIN brands b ON b.id = p.brand_id
LEFT JOIN product_types t ON t.id = p.type_id` + currentPriceJoin

func scanProductRow(row interface{ Scan(...any) error }) (ProductRow, error) {
	var i ProductRow
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.Sku,
		&i.BrandID,
		&i.TypeID,
		&i.ImageUrls,
		&i.AverageRating,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.BrandName,
		&i.TypeName,
		&i.CurrentPrice,
	)
	return i, err
}

const listActiveProducts = `-- name: ListActiveProducts :many
` + productRowSelect + `
WHERE p.is_active
ORDER BY p.created_at DESC
LIMIT $1 OFFSET $2`

type ListActiveProductsParams struct {
	Limit  int32
	Offset int32
}

func (q *Queries) ListActiveProducts(ctx context.Context, arg ListActiveProductsParams) ([]ProductRow, error) {
	rows, err := q.db.Query(ctx, listActiveProducts, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProductRow
	for rows.Next() {
		i, err := scanProductRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countActiveProducts = `-- name: CountActiveProducts :one
SELECT count(*) FROM products WHERE is_active`

func (q *Queries) CountActiveProducts(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countActiveProducts).Scan(&count)
	return count, err
}

const getProduct = `-- name: GetProduct :one
` + productRowSelect + `
WHERE p.id = $1`

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (ProductRow, error) {
	return scanProductRow(q.db.QueryRow(ctx, getProduct, id))
}

const productColumns = `id, name, description, sku, brand_id, type_id, image_urls, average_rating, is_active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.Sku,
		&i.BrandID,
		&i.TypeID,
		&i.ImageUrls,
		&i.AverageRating,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createProduct = `-- name: CreateProduct :one
INSERT INTO products (name, description, sku, brand_id, type_id, image_urls)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + productColumns

type CreateProductParams struct {
	Name        string
	Description string
	Sku         string
	BrandID     uuid.NullUUID
	TypeID      uuid.NullUUID
	ImageUrls   []string
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	imageUrls := arg.ImageUrls
	if imageUrls == nil {
		imageUrls = []string{}
	}
	row := q.db.QueryRow(ctx, createProduct, arg.Name, arg.Description, arg.Sku, arg.BrandID, arg.TypeID, imageUrls)
	return scanProduct(row)
}

const updateProduct = `-- name: UpdateProduct :one
UPDATE products SET
    name = COALESCE($2, name),
    description = COALESCE($3, description),
    image_urls = COALESCE($4, image_urls),
    is_active = COALESCE($5, is_active),
    updated_at = now()
WHERE id = $1
RETURNING ` + productColumns

type UpdateProductParams struct {
	ID          uuid.UUID
	Name        pgtype.Text
	Description pgtype.Text
	ImageUrls   []string
	IsActive    pgtype.Bool
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, updateProduct, arg.ID, arg.Name, arg.Description, arg.ImageUrls, arg.IsActive)
	return scanProduct(row)
}

const deactivateProduct = `-- name: DeactivateProduct :execrows
UPDATE products SET is_active = false, updated_at = now() WHERE id = $1 AND is_active`

func (q *Queries) DeactivateProduct(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deactivateProduct, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const closeActivePrices = `-- name: CloseActivePrices :exec
UPDATE product_price_history SET end_date = $2
WHERE product_id = $1 AND is_active AND (end_date IS NULL OR end_date > $2)`

type CloseActivePricesParams struct {
	ProductID uuid.UUID
	EndDate   time.Time
}

func (q *Queries) CloseActivePrices(ctx context.Context, arg CloseActivePricesParams) error {
	_, err := q.db.Exec(ctx, closeActivePrices, arg.ProductID, arg.EndDate)
	return err
}

const insertProductPrice = `-- name: InsertProductPrice :one
INSERT INTO product_price_history (product_id, price, effective_date)
VALUES ($1, $2, $3)
RETURNING id, product_id, price, effective_date, end_date, is_active`

type InsertProductPriceParams struct {
	ProductID     uuid.UUID
	Price         decimal.Decimal
	EffectiveDate time.Time
}

func (q *Queries) InsertProductPrice(ctx context.Context, arg InsertProductPriceParams) (ProductPrice, error) {
	var i ProductPrice
	err := q.db.QueryRow(ctx, insertProductPrice, arg.ProductID, arg.Price, arg.EffectiveDate).Scan(
		&i.ID,
		&i.ProductID,
		&i.Price,
		&i.EffectiveDate,
		&i.EndDate,
		&i.IsActive,
	)
	return i, err
}

const variantColumns = `id, product_id, sku, color, size, additional_price, stock, is_active`

func scanVariant(row interface{ Scan(...any) error }) (ProductVariant, error) {
	var i ProductVariant
	err := row.Scan(
		&i.ID,
		&i.ProductID,
		&i.Sku,
		&i.Color,
		&i.Size,
		&i.AdditionalPrice,
		&i.Stock,
		&i.IsActive,
	)
	return i, err
}

const listVariantsByProduct = `-- name: ListVariantsByProduct :many
SELECT ` + variantColumns + ` FROM product_variants
WHERE product_id = $1 AND is_active
ORDER BY sku`

func (q *Queries) ListVariantsByProduct(ctx context.Context, productID uuid.UUID) ([]ProductVariant, error) {
	rows, err := q.db.Query(ctx, listVariantsByProduct, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProductVariant
	for rows.Next() {
		i, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getVariantForProduct = `-- name: GetVariantForProduct :one
SELECT ` + variantColumns + ` FROM product_variants
WHERE id = $1 AND product_id = $2 AND is_active`

type GetVariantForProductParams struct {
	ID        uuid.UUID
	ProductID uuid.UUID
}

func (q *Queries) GetVariantForProduct(ctx context.Context, arg GetVariantForProductParams) (ProductVariant, error) {
	return scanVariant(q.db.QueryRow(ctx, getVariantForProduct, arg.ID, arg.ProductID))
}

const createVariant = `-- name: CreateVariant :one
INSERT INTO product_variants (product_id, sku, color, size, additional_price, stock)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + variantColumns

type CreateVariantParams struct {
	ProductID       uuid.UUID
	Sku             string
	Color           pgtype.Text
	Size            pgtype.Text
	AdditionalPrice decimal.Decimal
	Stock           int32
}

func (q *Queries) CreateVariant(ctx context.Context, arg CreateVariantParams) (ProductVariant, error) {
	row := q.db.QueryRow(ctx, createVariant, arg.ProductID, arg.Sku, arg.Color, arg.Size, arg.AdditionalPrice, arg.Stock)
	return scanVariant(row)
}
