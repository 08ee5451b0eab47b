package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/db"
	"github.com/noah-isme/storefront-api/internal/pricing"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

var (
	// ErrProductUnavailable is returned when a line refers to an inactive or unpriced product.
	ErrProductUnavailable = errors.New("product unavailable")

	errProductNotFound = common.NotFound("PRODUCT_NOT_FOUND", "product not found")
	errVariantNotFound = common.NotFound("VARIANT_NOT_FOUND", "variant not found for product")
	errItemNotFound    = common.NotFound("CART_ITEM_NOT_FOUND", "cart item not found")
)

// DefaultMaxQuantity bounds the quantity of a single cart line.
const DefaultMaxQuantity = 99

// Queries lists the statements the cart service runs.
type Queries interface {
	EnsureActiveCart(ctx context.Context, userID uuid.UUID) (db.Cart, error)
	GetActiveCart(ctx context.Context, userID uuid.UUID) (db.Cart, error)
	ListCartLines(ctx context.Context, cartID uuid.UUID) ([]db.CartLine, error)
	UpsertCartItem(ctx context.Context, arg db.UpsertCartItemParams) (db.CartItem, error)
	UpdateCartItemQuantity(ctx context.Context, arg db.UpdateCartItemQuantityParams) (db.CartItem, error)
	DeleteCartItem(ctx context.Context, arg db.DeleteCartItemParams) (int64, error)
	GetProduct(ctx context.Context, id uuid.UUID) (db.ProductRow, error)
	GetVariantForProduct(ctx context.Context, arg db.GetVariantForProductParams) (db.ProductVariant, error)
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

// Service encapsulates cart domain operations.
type Service struct {
	Store       Store
	Shipping    shipping.Quoter
	TaxBPS      int
	MaxQuantity int
}

// Line is one cart item as shown to the shopper.
type Line struct {
	ID          uuid.UUID        `json:"id"`
	ProductID   uuid.UUID        `json:"product_id"`
	VariantID   *uuid.UUID       `json:"variant_id,omitempty"`
	ProductName string           `json:"product_name"`
	Color       *string          `json:"color,omitempty"`
	Size        *string          `json:"size,omitempty"`
	Quantity    int32            `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	LineTotal   *decimal.Decimal `json:"line_total"`
	Available   bool             `json:"available"`
}

// View is the active cart with a price estimate before vouchers.
type View struct {
	ID     *uuid.UUID     `json:"id"`
	Status string         `json:"status"`
	Items  []Line         `json:"items"`
	Totals pricing.Totals `json:"totals"`
}

// Get returns the user's active cart. A user without a cart gets an empty one.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	c, err := s.Store.GetActiveCart(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return View{Status: "active", Items: []Line{}, Totals: zeroTotals()}, nil
		}
		return View{}, err
	}
	lines, err := s.Store.ListCartLines(ctx, c.ID)
	if err != nil {
		return View{}, err
	}
	id := c.ID
	view := View{ID: &id, Status: c.Status, Items: make([]Line, 0, len(lines))}
	var priced []pricing.LineItem
	for _, l := range lines {
		line := toLine(l)
		if line.Available {
			priced = append(priced, toLineItem(l))
		}
		view.Items = append(view.Items, line)
	}
	view.Totals, err = s.estimate(ctx, priced)
	if err != nil {
		return View{}, err
	}
	return view, nil
}

func (s *Service) estimate(ctx context.Context, items []pricing.LineItem) (pricing.Totals, error) {
	if len(items) == 0 {
		return zeroTotals(), nil
	}
	subtotal, err := pricing.ComputeSubtotal(items)
	if err != nil {
		return pricing.Totals{}, err
	}
	fee := decimal.Zero
	if s.Shipping != nil {
		fee, err = s.Shipping.Quote(ctx, shipping.Request{Subtotal: subtotal})
		if err != nil {
			return pricing.Totals{}, err
		}
	}
	tax := pricing.ComputeTax(subtotal, decimal.Zero, s.TaxBPS)
	return pricing.Summarize(subtotal, fee, tax, decimal.Zero)
}

// AddItemInput is the payload for adding a product to the cart.
type AddItemInput struct {
	ProductID string  `json:"product_id" validate:"required,uuid"`
	VariantID *string `json:"variant_id" validate:"omitempty,uuid"`
	Quantity  int32   `json:"quantity" validate:"required,gt=0"`
}

// AddItem puts a product in the active cart, creating the cart when needed. Adding a product that
// is already in the cart increases its quantity.
func (s *Service) AddItem(ctx context.Context, userID uuid.UUID, in AddItemInput) (db.CartItem, error) {
	if err := s.ready(); err != nil {
		return db.CartItem{}, err
	}
	if err := s.checkQuantity(in.Quantity); err != nil {
		return db.CartItem{}, err
	}
	productID, err := common.ParseUUID("product_id", in.ProductID)
	if err != nil {
		return db.CartItem{}, err
	}
	var variantID uuid.NullUUID
	if in.VariantID != nil && *in.VariantID != "" {
		id, err := common.ParseUUID("variant_id", *in.VariantID)
		if err != nil {
			return db.CartItem{}, err
		}
		variantID = uuid.NullUUID{UUID: id, Valid: true}
	}

	var item db.CartItem
	err = s.Store.WithinTx(ctx, func(q Queries) error {
		product, err := q.GetProduct(ctx, productID)
		if err != nil {
			if db.IsNotFound(err) {
				return errProductNotFound
			}
			return err
		}
		if !product.IsActive || !product.CurrentPrice.Valid {
			return ErrProductUnavailable
		}
		if variantID.Valid {
			if _, err := q.GetVariantForProduct(ctx, db.GetVariantForProductParams{ID: variantID.UUID, ProductID: productID}); err != nil {
				if db.IsNotFound(err) {
					return errVariantNotFound
				}
				return err
			}
		}
		c, err := q.EnsureActiveCart(ctx, userID)
		if err != nil {
			return err
		}
		item, err = q.UpsertCartItem(ctx, db.UpsertCartItemParams{
			CartID:    c.ID,
			ProductID: productID,
			VariantID: variantID,
			Quantity:  in.Quantity,
		})
		if err != nil {
			return err
		}
		return s.checkQuantity(item.Quantity)
	})
	return item, err
}

// UpdateItemInput sets a new quantity.
type UpdateItemInput struct {
	Quantity int32 `json:"quantity" validate:"required,gt=0"`
}

// UpdateItem changes the quantity of a line in the user's active cart.
func (s *Service) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, in UpdateItemInput) (db.CartItem, error) {
	if err := s.ready(); err != nil {
		return db.CartItem{}, err
	}
	if err := s.checkQuantity(in.Quantity); err != nil {
		return db.CartItem{}, err
	}
	c, err := s.Store.GetActiveCart(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return db.CartItem{}, errItemNotFound
		}
		return db.CartItem{}, err
	}
	item, err := s.Store.UpdateCartItemQuantity(ctx, db.UpdateCartItemQuantityParams{ID: itemID, CartID: c.ID, Quantity: in.Quantity})
	if err != nil {
		if db.IsNotFound(err) {
			return db.CartItem{}, errItemNotFound
		}
		return db.CartItem{}, err
	}
	return item, nil
}

// RemoveItem deletes a line from the user's active cart.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	c, err := s.Store.GetActiveCart(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return errItemNotFound
		}
		return err
	}
	n, err := s.Store.DeleteCartItem(ctx, db.DeleteCartItemParams{ID: itemID, CartID: c.ID})
	if err != nil {
		return err
	}
	if n == 0 {
		return errItemNotFound
	}
	return nil
}

// PriceLines converts cart lines into priced line items. Lines whose product is inactive or has
// no current price fail with ErrProductUnavailable.
func PriceLines(lines []db.CartLine) ([]pricing.LineItem, error) {
	items := make([]pricing.LineItem, 0, len(lines))
	for _, l := range lines {
		if !l.ProductActive || !l.UnitPrice.Valid {
			return nil, &UnavailableError{ProductID: l.ProductID, Name: l.ProductName}
		}
		items = append(items, toLineItem(l))
	}
	return items, nil
}

// UnavailableError names the product that blocked pricing.
type UnavailableError struct {
	ProductID uuid.UUID
	Name      string
}

func (e *UnavailableError) Error() string {
	return "product " + e.Name + " is no longer available"
}

func (e *UnavailableError) Unwrap() error { return ErrProductUnavailable }

func (s *Service) checkQuantity(q int32) error {
	limit := s.MaxQuantity
	if limit <= 0 {
		limit = DefaultMaxQuantity
	}
	if q <= 0 || int(q) > limit {
		return common.BadRequest("VALIDATION_ERROR", "quantity must be between 1 and the per-line maximum").
			WithDetails(map[string]int{"max_quantity": limit})
	}
	return nil
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

func toLineItem(l db.CartLine) pricing.LineItem {
	item := pricing.LineItem{ProductID: l.ProductID, Quantity: int(l.Quantity), UnitPrice: l.UnitPrice.Decimal}
	if l.VariantID.Valid {
		id := l.VariantID.UUID
		item.VariantID = &id
	}
	return item
}

func toLine(l db.CartLine) Line {
	line := Line{
		ID:          l.ID,
		ProductID:   l.ProductID,
		ProductName: l.ProductName,
		Quantity:    l.Quantity,
		Available:   l.ProductActive && l.UnitPrice.Valid,
	}
	if l.VariantID.Valid {
		id := l.VariantID.UUID
		line.VariantID = &id
	}
	if l.Color.Valid {
		line.Color = &l.Color.String
	}
	if l.Size.Valid {
		line.Size = &l.Size.String
	}
	if l.UnitPrice.Valid {
		price := l.UnitPrice.Decimal
		total := toLineItem(l).LineTotal()
		line.UnitPrice = &price
		line.LineTotal = &total
	}
	return line
}

func zeroTotals() pricing.Totals {
	return pricing.Totals{
		Subtotal:       decimal.Zero,
		DiscountAmount: decimal.Zero,
		ShippingFee:    decimal.Zero,
		TaxAmount:      decimal.Zero,
		Total:          decimal.Zero,
	}
}
