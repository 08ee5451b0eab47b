package cart

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-api/internal/db"
)

type fakeStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]db.ProductRow
	variants map[uuid.UUID]db.ProductVariant
	carts    map[uuid.UUID]db.Cart
	items    []db.CartItem
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: make(map[uuid.UUID]db.ProductRow),
		variants: make(map[uuid.UUID]db.ProductVariant),
		carts:    make(map[uuid.UUID]db.Cart),
	}
}

func (f *fakeStore) addProduct(name string, price string, active bool) db.ProductRow {
	p := db.ProductRow{Product: db.Product{ID: uuid.New(), Name: name, IsActive: active}}
	if price != "" {
		p.CurrentPrice = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	f.products[p.ID] = p
	return p
}

func (f *fakeStore) addVariant(productID uuid.UUID, extra string) db.ProductVariant {
	v := db.ProductVariant{ID: uuid.New(), ProductID: productID, AdditionalPrice: decimal.RequireFromString(extra), IsActive: true}
	f.variants[v.ID] = v
	return v
}

func (f *fakeStore) WithinTx(_ context.Context, fn func(Queries) error) error {
	f.mu.Lock()
	carts := make(map[uuid.UUID]db.Cart, len(f.carts))
	for k, v := range f.carts {
		carts[k] = v
	}
	items := append([]db.CartItem(nil), f.items...)
	f.mu.Unlock()
	if err := fn(f); err != nil {
		f.mu.Lock()
		f.carts, f.items = carts, items
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) EnsureActiveCart(_ context.Context, userID uuid.UUID) (db.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.carts[userID]; ok {
		return c, nil
	}
	c := db.Cart{ID: uuid.New(), UserID: userID, Status: "active", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.carts[userID] = c
	return c, nil
}

func (f *fakeStore) GetActiveCart(_ context.Context, userID uuid.UUID) (db.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok {
		return db.Cart{}, pgx.ErrNoRows
	}
	return c, nil
}

func (f *fakeStore) ListCartLines(_ context.Context, cartID uuid.UUID) ([]db.CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.CartLine
	for _, it := range f.items {
		if it.CartID != cartID {
			continue
		}
		p := f.products[it.ProductID]
		line := db.CartLine{
			ID:            it.ID,
			CartID:        it.CartID,
			ProductID:     it.ProductID,
			VariantID:     it.VariantID,
			Quantity:      it.Quantity,
			ProductName:   p.Name,
			ProductActive: p.IsActive,
		}
		if it.VariantID.Valid {
			line.AdditionalPrice = f.variants[it.VariantID.UUID].AdditionalPrice
		}
		if p.CurrentPrice.Valid {
			line.UnitPrice = decimal.NewNullDecimal(p.CurrentPrice.Decimal.Add(line.AdditionalPrice))
		}
		out = append(out, line)
	}
	return out, nil
}

func (f *fakeStore) UpsertCartItem(_ context.Context, arg db.UpsertCartItemParams) (db.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, it := range f.items {
		if it.CartID == arg.CartID && it.ProductID == arg.ProductID && it.VariantID == arg.VariantID {
			f.items[i].Quantity += arg.Quantity
			return f.items[i], nil
		}
	}
	it := db.CartItem{ID: uuid.New(), CartID: arg.CartID, ProductID: arg.ProductID, VariantID: arg.VariantID, Quantity: arg.Quantity}
	f.items = append(f.items, it)
	return it, nil
}

func (f *fakeStore) UpdateCartItemQuantity(_ context.Context, arg db.UpdateCartItemQuantityParams) (db.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, it := range f.items {
		if it.ID == arg.ID && it.CartID == arg.CartID {
			f.items[i].Quantity = arg.Quantity
			return f.items[i], nil
		}
	}
	return db.CartItem{}, pgx.ErrNoRows
}

func (f *fakeStore) DeleteCartItem(_ context.Context, arg db.DeleteCartItemParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, it := range f.items {
		if it.ID == arg.ID && it.CartID == arg.CartID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeStore) GetProduct(_ context.Context, id uuid.UUID) (db.ProductRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return db.ProductRow{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) GetVariantForProduct(_ context.Context, arg db.GetVariantForProductParams) (db.ProductVariant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.variants[arg.ID]
	if !ok || v.ProductID != arg.ProductID || !v.IsActive {
		return db.ProductVariant{}, pgx.ErrNoRows
	}
	return v, nil
}
