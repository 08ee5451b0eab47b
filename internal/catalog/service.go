// Package catalog serves the product listing and detail endpoints and the administrator
// product management flows. Public reads are cached in Redis.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-api/internal/audit"
	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/db"
	"github.com/noah-isme/storefront-api/internal/obs"
	"github.com/noah-isme/storefront-api/internal/pricing"
)

const (
	listKeyPrefix   = "catalog:products:"
	detailKeyPrefix = "catalog:product:"
)

var (
	errProductNotFound = common.NotFound("PRODUCT_NOT_FOUND", "product not found")
	errInvalidPrice    = common.BadRequest("VALIDATION_ERROR", "price must not be negative")
)

// Queries captures the database methods required by the catalog service.
type Queries interface {
	ListActiveProducts(ctx context.Context, arg db.ListActiveProductsParams) ([]db.ProductRow, error)
	CountActiveProducts(ctx context.Context) (int64, error)
	GetProduct(ctx context.Context, id uuid.UUID) (db.ProductRow, error)
	CreateProduct(ctx context.Context, arg db.CreateProductParams) (db.Product, error)
	UpdateProduct(ctx context.Context, arg db.UpdateProductParams) (db.Product, error)
	DeactivateProduct(ctx context.Context, id uuid.UUID) (int64, error)
	CloseActivePrices(ctx context.Context, arg db.CloseActivePricesParams) error
	InsertProductPrice(ctx context.Context, arg db.InsertProductPriceParams) (db.ProductPrice, error)
	ListVariantsByProduct(ctx context.Context, productID uuid.UUID) ([]db.ProductVariant, error)
	CreateVariant(ctx context.Context, arg db.CreateVariantParams) (db.ProductVariant, error)
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

// Variant is the API shape of a product variant.
type Variant struct {
	ID              uuid.UUID       `json:"id"`
	SKU             string          `json:"sku"`
	Color           *string         `json:"color,omitempty"`
	Size            *string         `json:"size,omitempty"`
	AdditionalPrice decimal.Decimal `json:"additional_price"`
	Stock           int32           `json:"stock"`
}

// Product is the API shape of a catalog product. Price is nil when no price row is in effect.
type Product struct {
	ID            uuid.UUID        `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	SKU           string           `json:"sku"`
	BrandID       *uuid.UUID       `json:"brand_id,omitempty"`
	Brand         *string          `json:"brand,omitempty"`
	TypeID        *uuid.UUID       `json:"type_id,omitempty"`
	Type          *string          `json:"type,omitempty"`
	ImageURLs     []string         `json:"image_urls"`
	AverageRating decimal.Decimal  `json:"average_rating"`
	Price         *decimal.Decimal `json:"price"`
	IsActive      bool             `json:"is_active"`
	Variants      []Variant        `json:"variants"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Page is one page of active products.
type Page struct {
	Items   []Product `json:"items"`
	Total   int64     `json:"total"`
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
}

// VariantInput describes a variant created together with its product.
type VariantInput struct {
	SKU             string          `json:"sku" validate:"required,max=100"`
	Color           *string         `json:"color" validate:"omitempty,max=50"`
	Size            *string         `json:"size" validate:"omitempty,max=50"`
	AdditionalPrice decimal.Decimal `json:"additional_price"`
	Stock           int32           `json:"stock" validate:"gte=0"`
}

// CreateInput is the payload for a new product.
type CreateInput struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Description string          `json:"description"`
	SKU         string          `json:"sku" validate:"required,max=100"`
	BrandID     *uuid.UUID      `json:"brand_id"`
	TypeID      *uuid.UUID      `json:"type_id"`
	ImageURLs   []string        `json:"image_urls" validate:"omitempty,dive,url"`
	Price       decimal.Decimal `json:"price"`
	Variants    []VariantInput  `json:"variants" validate:"omitempty,dive"`
}

// UpdateInput changes the provided fields. A new Price closes the current price row and opens
// another one effective immediately.
type UpdateInput struct {
	Name        *string          `json:"name" validate:"omitempty,max=255"`
	Description *string          `json:"description"`
	ImageURLs   []string         `json:"image_urls" validate:"omitempty,dive,url"`
	IsActive    *bool            `json:"is_active"`
	Price       *decimal.Decimal `json:"price"`
}

// Service serves the catalog.
type Service struct {
	Store        Store
	Cache        *Cache
	Audit        *audit.Service
	DefaultLimit int
	MaxLimit     int
	Now          func() time.Time
}

// Limits returns the default and maximum page sizes.
func (s *Service) Limits() (int, int) {
	def, maxLimit := 20, 100
	if s != nil && s.DefaultLimit > 0 {
		def = s.DefaultLimit
	}
	if s != nil && s.MaxLimit > 0 {
		maxLimit = s.MaxLimit
	}
	if def > maxLimit {
		def = maxLimit
	}
	return def, maxLimit
}

// List returns a page of active products, newest first.
func (s *Service) List(ctx context.Context, page, perPage int) (Page, error) {
	if err := s.ready(); err != nil {
		return Page{}, err
	}
	def, maxLimit := s.Limits()
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = def
	}
	if perPage > maxLimit {
		perPage = maxLimit
	}

	key := fmt.Sprintf("%sp%d:l%d", listKeyPrefix, page, perPage)
	var cached Page
	if s.lookup(ctx, key, &cached) {
		return cached, nil
	}

	rows, err := s.Store.ListActiveProducts(ctx, db.ListActiveProductsParams{
		Limit:  int32(perPage),
		Offset: int32(common.Offset(page, perPage)),
	})
	if err != nil {
		return Page{}, err
	}
	total, err := s.Store.CountActiveProducts(ctx)
	if err != nil {
		return Page{}, err
	}
	out := Page{Items: make([]Product, 0, len(rows)), Total: total, Page: page, PerPage: perPage}
	for _, row := range rows {
		variants, err := s.Store.ListVariantsByProduct(ctx, row.ID)
		if err != nil {
			return Page{}, err
		}
		out.Items = append(out.Items, toProduct(row, variants))
	}
	s.store(ctx, key, out)
	return out, nil
}

// Get returns an active product with its variants.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	if err := s.ready(); err != nil {
		return Product{}, err
	}
	key := detailKeyPrefix + id.String()
	var cached Product
	if s.lookup(ctx, key, &cached) {
		return cached, nil
	}

	row, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return Product{}, errProductNotFound
		}
		return Product{}, err
	}
	if !row.IsActive {
		return Product{}, errProductNotFound
	}
	variants, err := s.Store.ListVariantsByProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	out := toProduct(row, variants)
	s.store(ctx, key, out)
	return out, nil
}

// Create adds a product with its opening price and variants.
func (s *Service) Create(ctx context.Context, in CreateInput) (Product, error) {
	if err := s.ready(); err != nil {
		return Product{}, err
	}
	if err := common.Validate(in); err != nil {
		return Product{}, err
	}
	if in.Price.IsNegative() {
		return Product{}, errInvalidPrice
	}
	name := common.SanitizeText(in.Name)
	sku := strings.TrimSpace(in.SKU)
	if name == "" || sku == "" {
		return Product{}, common.BadRequest("VALIDATION_ERROR", "name and sku are required")
	}
	for _, v := range in.Variants {
		if v.AdditionalPrice.IsNegative() {
			return Product{}, common.BadRequest("VALIDATION_ERROR", "additional_price must not be negative")
		}
	}
	now := s.now()
	price := in.Price.Round(pricing.Scale)

	var (
		created  db.Product
		variants []db.ProductVariant
	)
	err := s.Store.WithinTx(ctx, func(q Queries) error {
		var err error
		created, err = q.CreateProduct(ctx, db.CreateProductParams{
			Name:        name,
			Description: common.SanitizeRichText(in.Description),
			Sku:         sku,
			BrandID:     nullUUID(in.BrandID),
			TypeID:      nullUUID(in.TypeID),
			ImageUrls:   in.ImageURLs,
		})
		if err != nil {
			if db.IsUniqueViolation(err) {
				return common.Conflict("PRODUCT_SKU_EXISTS", "a product with this sku already exists", err)
			}
			return err
		}
		if _, err := q.InsertProductPrice(ctx, db.InsertProductPriceParams{ProductID: created.ID, Price: price, EffectiveDate: now}); err != nil {
			return err
		}
		for _, v := range in.Variants {
			row, err := q.CreateVariant(ctx, db.CreateVariantParams{
				ProductID:       created.ID,
				Sku:             strings.TrimSpace(v.SKU),
				Color:           text(common.SanitizeTextPtr(v.Color)),
				Size:            text(common.SanitizeTextPtr(v.Size)),
				AdditionalPrice: v.AdditionalPrice.Round(pricing.Scale),
				Stock:           v.Stock,
			})
			if err != nil {
				if db.IsUniqueViolation(err) {
					return common.Conflict("VARIANT_SKU_EXISTS", "a variant with this sku already exists", err)
				}
				return err
			}
			variants = append(variants, row)
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}

	s.invalidate(ctx)
	out := toProduct(db.ProductRow{Product: created, CurrentPrice: decimal.NullDecimal{Decimal: price, Valid: true}}, variants)
	s.Audit.RecordAsync(ctx, audit.Entry{
		Action:       "CREATE_PRODUCT",
		ResourceType: "products",
		ResourceID:   created.ID.String(),
		Status:       http.StatusCreated,
		New:          out,
	})
	return out, nil
}

// Update edits a product. Setting a price different from the current one records a new price row.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (Product, error) {
	if err := s.ready(); err != nil {
		return Product{}, err
	}
	if err := common.Validate(in); err != nil {
		return Product{}, err
	}
	if in.Price != nil && in.Price.IsNegative() {
		return Product{}, errInvalidPrice
	}
	if in.Name != nil && common.SanitizeText(*in.Name) == "" {
		return Product{}, common.BadRequest("VALIDATION_ERROR", "name must not be empty")
	}
	now := s.now()

	var (
		before   db.ProductRow
		updated  db.ProductRow
		variants []db.ProductVariant
	)
	err := s.Store.WithinTx(ctx, func(q Queries) error {
		var err error
		before, err = q.GetProduct(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return errProductNotFound
			}
			return err
		}
		params := db.UpdateProductParams{ID: id, ImageUrls: in.ImageURLs}
		if in.Name != nil {
			params.Name = pgtype.Text{String: common.SanitizeText(*in.Name), Valid: true}
		}
		if in.Description != nil {
			params.Description = pgtype.Text{String: common.SanitizeRichText(*in.Description), Valid: true}
		}
		if in.IsActive != nil {
			params.IsActive = pgtype.Bool{Bool: *in.IsActive, Valid: true}
		}
		product, err := q.UpdateProduct(ctx, params)
		if err != nil {
			return err
		}
		updated = db.ProductRow{Product: product, BrandName: before.BrandName, TypeName: before.TypeName, CurrentPrice: before.CurrentPrice}

		if in.Price != nil {
			price := in.Price.Round(pricing.Scale)
			if !before.CurrentPrice.Valid || !before.CurrentPrice.Decimal.Equal(price) {
				if err := q.CloseActivePrices(ctx, db.CloseActivePricesParams{ProductID: id, EndDate: now}); err != nil {
					return err
				}
				if _, err := q.InsertProductPrice(ctx, db.InsertProductPriceParams{ProductID: id, Price: price, EffectiveDate: now}); err != nil {
					return err
				}
				updated.CurrentPrice = decimal.NullDecimal{Decimal: price, Valid: true}
			}
		}
		variants, err = q.ListVariantsByProduct(ctx, id)
		return err
	})
	if err != nil {
		return Product{}, err
	}

	s.invalidate(ctx, id)
	out := toProduct(updated, variants)
	s.Audit.RecordAsync(ctx, audit.Entry{
		Action:       "UPDATE_PRODUCT",
		ResourceType: "products",
		ResourceID:   id.String(),
		Old:          toProduct(before, nil),
		New:          out,
	})
	return out, nil
}

// Deactivate hides a product from the catalog. Existing orders keep their snapshot.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	n, err := s.Store.DeactivateProduct(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return errProductNotFound
	}
	s.invalidate(ctx, id)
	s.Audit.RecordAsync(ctx, audit.Entry{
		Action:       "DEACTIVATE_PRODUCT",
		ResourceType: "products",
		ResourceID:   id.String(),
	})
	return nil
}

func (s *Service) lookup(ctx context.Context, key string, dst any) bool {
	if s.Cache == nil {
		return false
	}
	ok, err := s.Cache.GetJSON(ctx, key, dst)
	switch {
	case err != nil:
		obs.IncCounter(obs.CatalogCacheTotal, "error")
		obs.Logger(ctx).Warn().Err(err).Str("key", key).Msg("catalog_cache_get_failed")
		return false
	case ok:
		obs.IncCounter(obs.CatalogCacheTotal, "hit")
		return true
	default:
		obs.IncCounter(obs.CatalogCacheTotal, "miss")
		return false
	}
}

func (s *Service) store(ctx context.Context, key string, v any) {
	if err := s.Cache.SetJSON(ctx, key, v); err != nil {
		obs.Logger(ctx).Warn().Err(err).Str("key", key).Msg("catalog_cache_set_failed")
	}
}

// invalidate drops every cached list page and the detail entries of ids.
func (s *Service) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if s.Cache == nil {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, detailKeyPrefix+id.String())
	}
	if err := errors.Join(s.Cache.Delete(ctx, keys...), s.Cache.DeletePrefix(ctx, listKeyPrefix)); err != nil {
		obs.Logger(ctx).Warn().Err(err).Msg("catalog_cache_invalidate_failed")
	}
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("catalog service not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func toProduct(row db.ProductRow, variants []db.ProductVariant) Product {
	out := Product{
		ID:            row.ID,
		Name:          row.Name,
		Description:   row.Description,
		SKU:           row.Sku,
		ImageURLs:     row.ImageUrls,
		AverageRating: row.AverageRating,
		IsActive:      row.IsActive,
		Variants:      make([]Variant, 0, len(variants)),
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if out.ImageURLs == nil {
		out.ImageURLs = []string{}
	}
	if row.BrandID.Valid {
		id := row.BrandID.UUID
		out.BrandID = &id
	}
	if row.TypeID.Valid {
		id := row.TypeID.UUID
		out.TypeID = &id
	}
	out.Brand = textPtr(row.BrandName)
	out.Type = textPtr(row.TypeName)
	if row.CurrentPrice.Valid {
		p := row.CurrentPrice.Decimal
		out.Price = &p
	}
	for _, v := range variants {
		out.Variants = append(out.Variants, Variant{
			ID:              v.ID,
			SKU:             v.Sku,
			Color:           textPtr(v.Color),
			Size:            textPtr(v.Size),
			AdditionalPrice: v.AdditionalPrice,
			Stock:           v.Stock,
		})
	}
	return out
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

func text(s *string) pgtype.Text {
	if s == nil || *s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
