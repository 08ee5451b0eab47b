package catalog_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-api/internal/catalog"
	"github.com/noah-isme/storefront-api/internal/db"
)

type fakeStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]db.Product
	prices   []db.ProductPrice
	variants []db.ProductVariant
	brands   map[uuid.UUID]string
	clock    time.Time
	calls    map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: map[uuid.UUID]db.Product{},
		brands:   map[uuid.UUID]string{},
		clock:    time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
		calls:    map[string]int{},
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func (f *fakeStore) seed(name string, price string, active bool) db.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.tick()
	p := db.Product{ID: uuid.New(), Name: name, Sku: "SKU-" + name, ImageUrls: []string{}, IsActive: active, CreatedAt: now, UpdatedAt: now}
	f.products[p.ID] = p
	f.prices = append(f.prices, db.ProductPrice{ID: uuid.New(), ProductID: p.ID, Price: decimal.RequireFromString(price), EffectiveDate: now, IsActive: true})
	f.variants = append(f.variants, db.ProductVariant{ID: uuid.New(), ProductID: p.ID, Sku: p.Sku + "-M", Size: pgtype.Text{String: "M", Valid: true}, Stock: 5, IsActive: true})
	return p
}

func (f *fakeStore) currentPrice(id uuid.UUID) decimal.NullDecimal {
	var (
		best  decimal.NullDecimal
		start time.Time
	)
	for _, pr := range f.prices {
		if pr.ProductID != id || !pr.IsActive || pr.EndDate.Valid {
			continue
		}
		if !best.Valid || pr.EffectiveDate.After(start) {
			best = decimal.NullDecimal{Decimal: pr.Price, Valid: true}
			start = pr.EffectiveDate
		}
	}
	return best
}

func (f *fakeStore) row(p db.Product) db.ProductRow {
	row := db.ProductRow{Product: p, CurrentPrice: f.currentPrice(p.ID)}
	if p.BrandID.Valid {
		if name, ok := f.brands[p.BrandID.UUID]; ok {
			row.BrandName = pgtype.Text{String: name, Valid: true}
		}
	}
	return row
}

func (f *fakeStore) openPrices(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, pr := range f.prices {
		if pr.ProductID == id && !pr.EndDate.Valid {
			n++
		}
	}
	return n
}

func (f *fakeStore) ListActiveProducts(_ context.Context, arg db.ListActiveProductsParams) ([]db.ProductRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	var active []db.Product
	for _, p := range f.products {
		if p.IsActive {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.After(active[j].CreatedAt) })
	start := int(arg.Offset)
	if start > len(active) {
		return nil, nil
	}
	end := start + int(arg.Limit)
	if end > len(active) {
		end = len(active)
	}
	out := make([]db.ProductRow, 0, end-start)
	for _, p := range active[start:end] {
		out = append(out, f.row(p))
	}
	return out, nil
}

func (f *fakeStore) CountActiveProducts(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, p := range f.products {
		if p.IsActive {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetProduct(_ context.Context, id uuid.UUID) (db.ProductRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["get"]++
	p, ok := f.products[id]
	if !ok {
		return db.ProductRow{}, pgx.ErrNoRows
	}
	return f.row(p), nil
}

func (f *fakeStore) CreateProduct(_ context.Context, arg db.CreateProductParams) (db.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.Sku == arg.Sku {
			return db.Product{}, &pgconn.PgError{Code: "23505"}
		}
	}
	now := f.tick()
	p := db.Product{
		ID:          uuid.New(),
		Name:        arg.Name,
		Description: arg.Description,
		Sku:         arg.Sku,
		BrandID:     arg.BrandID,
		TypeID:      arg.TypeID,
		ImageUrls:   arg.ImageUrls,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.ImageUrls == nil {
		p.ImageUrls = []string{}
	}
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeStore) UpdateProduct(_ context.Context, arg db.UpdateProductParams) (db.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[arg.ID]
	if !ok {
		return db.Product{}, pgx.ErrNoRows
	}
	if arg.Name.Valid {
		p.Name = arg.Name.String
	}
	if arg.Description.Valid {
		p.Description = arg.Description.String
	}
	if arg.ImageUrls != nil {
		p.ImageUrls = arg.ImageUrls
	}
	if arg.IsActive.Valid {
		p.IsActive = arg.IsActive.Bool
	}
	p.UpdatedAt = f.tick()
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeStore) DeactivateProduct(_ context.Context, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || !p.IsActive {
		return 0, nil
	}
	p.IsActive = false
	f.products[id] = p
	return 1, nil
}

func (f *fakeStore) CloseActivePrices(_ context.Context, arg db.CloseActivePricesParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, pr := range f.prices {
		if pr.ProductID == arg.ProductID && pr.IsActive && !pr.EndDate.Valid {
			f.prices[i].EndDate = pgtype.Timestamptz{Time: arg.EndDate, Valid: true}
		}
	}
	return nil
}

func (f *fakeStore) InsertProductPrice(_ context.Context, arg db.InsertProductPriceParams) (db.ProductPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr := db.ProductPrice{ID: uuid.New(), ProductID: arg.ProductID, Price: arg.Price, EffectiveDate: arg.EffectiveDate, IsActive: true}
	f.prices = append(f.prices, pr)
	return pr, nil
}

func (f *fakeStore) ListVariantsByProduct(_ context.Context, productID uuid.UUID) ([]db.ProductVariant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.ProductVariant
	for _, v := range f.variants {
		if v.ProductID == productID && v.IsActive {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateVariant(_ context.Context, arg db.CreateVariantParams) (db.ProductVariant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.variants {
		if v.Sku == arg.Sku {
			return db.ProductVariant{}, &pgconn.PgError{Code: "23505"}
		}
	}
	v := db.ProductVariant{
		ID:              uuid.New(),
		ProductID:       arg.ProductID,
		Sku:             arg.Sku,
		Color:           arg.Color,
		Size:            arg.Size,
		AdditionalPrice: arg.AdditionalPrice,
		Stock:           arg.Stock,
		IsActive:        true,
	}
	f.variants = append(f.variants, v)
	return v, nil
}

func (f *fakeStore) WithinTx(_ context.Context, fn func(catalog.Queries) error) error {
	f.mu.Lock()
	products := make(map[uuid.UUID]db.Product, len(f.products))
	for k, v := range f.products {
		products[k] = v
	}
	prices := append([]db.ProductPrice(nil), f.prices...)
	variants := append([]db.ProductVariant(nil), f.variants...)
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.products, f.prices, f.variants = products, prices, variants
		f.mu.Unlock()
		return err
	}
	return nil
}
