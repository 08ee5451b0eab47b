// Package order turns the active cart into an order and tracks the order through its status
// lifecycle.
package order

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-api/internal/audit"
	"github.com/noah-isme/storefront-api/internal/cart"
	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/db"
	"github.com/noah-isme/storefront-api/internal/events"
	"github.com/noah-isme/storefront-api/internal/lock"
	"github.com/noah-isme/storefront-api/internal/obs"
	"github.com/noah-isme/storefront-api/internal/pricing"
	"github.com/noah-isme/storefront-api/internal/shipping"
	"github.com/noah-isme/storefront-api/internal/voucher"
)

// Order statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusShipping  = "shipping"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

var transitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipping, StatusCancelled},
	StatusShipping:  {StatusDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	errOrderNotFound   = common.NotFound("ORDER_NOT_FOUND", "order not found")
	errAddressNotFound = common.NotFound("ADDRESS_NOT_FOUND", "address not found")
	errCheckoutBusy    = common.Conflict("CHECKOUT_IN_PROGRESS", "another checkout for this cart is in progress", nil)
	errCartChanged     = common.Conflict("CART_CHANGED", "cart changed during checkout", nil)
)

const defaultLockTTL = 10 * time.Second

// Queries captures the database methods required by the order service.
type Queries interface {
	voucher.RedeemQueries

	GetActiveCartForUpdate(ctx context.Context, userID uuid.UUID) (db.Cart, error)
	ListCartLines(ctx context.Context, cartID uuid.UUID) ([]db.CartLine, error)
	MarkCartConverted(ctx context.Context, id uuid.UUID) (int64, error)
	GetAddress(ctx context.Context, arg db.GetAddressParams) (db.Address, error)

	CreateOrder(ctx context.Context, arg db.CreateOrderParams) (db.Order, error)
	CreateOrderItem(ctx context.Context, arg db.CreateOrderItemParams) (db.OrderItem, error)
	CreateOrderStatusHistory(ctx context.Context, arg db.CreateOrderStatusHistoryParams) (db.OrderStatusHistory, error)
	GetOrder(ctx context.Context, id uuid.UUID) (db.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (db.Order, error)
	ListOrdersByUser(ctx context.Context, arg db.ListOrdersByUserParams) ([]db.Order, error)
	CountOrdersByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]db.OrderItem, error)
	ListOrderStatusHistory(ctx context.Context, orderID uuid.UUID) ([]db.OrderStatusHistory, error)
	UpdateOrderStatus(ctx context.Context, arg db.UpdateOrderStatusParams) (int64, error)
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

// Locker serialises checkouts; lock.Locker implements it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service coordinates order creation and status changes.
type Service struct {
	Store    Store
	Locker   Locker
	LockTTL  time.Duration
	Shipping shipping.Quoter
	TaxBPS   int
	Vouchers *voucher.Service
	Events   events.Emitter
	Audit    *audit.Service
	Now      func() time.Time
	// NewOrderNumber overrides the ORD-<ULID> generator.
	NewOrderNumber func() string
}

// Item is the API shape of an order line.
type Item struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	VariantID   *uuid.UUID      `json:"variant_id,omitempty"`
	ProductName string          `json:"product_name"`
	Quantity    int32           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// StatusChange is one row of the status history.
type StatusChange struct {
	From      *string    `json:"from_status"`
	To        string     `json:"to_status"`
	Note      *string    `json:"note,omitempty"`
	ChangedBy *uuid.UUID `json:"changed_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Order is the API shape of an order.
type Order struct {
	ID            uuid.UUID      `json:"id"`
	OrderNumber   string         `json:"order_number"`
	UserID        uuid.UUID      `json:"user_id"`
	AddressID     *uuid.UUID     `json:"address_id,omitempty"`
	Status        string         `json:"status"`
	PaymentMethod string         `json:"payment_method"`
	PaymentStatus string         `json:"payment_status"`
	Totals        pricing.Totals `json:"totals"`
	VoucherID     *uuid.UUID     `json:"voucher_id,omitempty"`
	Notes         *string        `json:"notes,omitempty"`
	Items         []Item         `json:"items,omitempty"`
	History       []StatusChange `json:"history,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// CreateInput is the payload of POST /orders.
type CreateInput struct {
	AddressID     *uuid.UUID `json:"address_id"`
	VoucherCode   string     `json:"voucher_code" validate:"omitempty,max=50"`
	PaymentMethod string     `json:"payment_method" validate:"omitempty,oneof=cod bank_transfer card"`
	Notes         string     `json:"notes" validate:"omitempty,max=1000"`
}

// Create converts the user's active cart into a pending order. The optional voucher is redeemed in
// the same transaction, so a failed redemption leaves the cart and the voucher untouched.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	if err := common.Validate(in); err != nil {
		return Order{}, err
	}
	code := strings.TrimSpace(in.VoucherCode)
	payment := in.PaymentMethod
	if payment == "" {
		payment = "cod"
	}
	now := s.now()

	var (
		created db.Order
		items   []db.OrderItem
		red     *voucher.Redemption
	)
	checkout := func(ctx context.Context) error {
		return s.Store.WithinTx(ctx, func(q Queries) error {
			c, err := q.GetActiveCartForUpdate(ctx, userID)
			if err != nil {
				if db.IsNotFound(err) {
					return pricing.ErrEmptyCart
				}
				return err
			}
			lines, err := q.ListCartLines(ctx, c.ID)
			if err != nil {
				return err
			}
			priced, err := cart.PriceLines(lines)
			if err != nil {
				return err
			}
			if err := pricing.RequireItems(priced); err != nil {
				return err
			}
			subtotal, err := pricing.ComputeSubtotal(priced)
			if err != nil {
				return err
			}

			req := shipping.Request{Subtotal: subtotal}
			var addressID uuid.NullUUID
			if in.AddressID != nil {
				addr, err := q.GetAddress(ctx, db.GetAddressParams{ID: *in.AddressID, UserID: userID})
				if err != nil {
					if db.IsNotFound(err) {
						return errAddressNotFound
					}
					return err
				}
				addressID = uuid.NullUUID{UUID: addr.ID, Valid: true}
				req.Province = addr.Province
			}
			fee, err := s.quoteShipping(ctx, req)
			if err != nil {
				return err
			}

			discount, goodsDiscount := decimal.Zero, decimal.Zero
			var voucherID uuid.NullUUID
			if code != "" {
				r, err := voucher.Redeem(ctx, q, voucher.RedeemRequest{
					Code:        code,
					UserID:      userID,
					Subtotal:    subtotal,
					ShippingFee: fee,
					Now:         now,
				})
				if err != nil {
					return err
				}
				red = &r
				discount, goodsDiscount = r.Discount, r.GoodsDiscount()
				voucherID = uuid.NullUUID{UUID: r.Voucher.ID, Valid: true}
			}
			tax := pricing.ComputeTax(subtotal, goodsDiscount, s.TaxBPS)
			totals, err := pricing.Summarize(subtotal, fee, tax, discount)
			if err != nil {
				return err
			}

			created, err = q.CreateOrder(ctx, db.CreateOrderParams{
				OrderNumber:    s.orderNumber(),
				UserID:         userID,
				AddressID:      addressID,
				CartID:         uuid.NullUUID{UUID: c.ID, Valid: true},
				PaymentMethod:  payment,
				Subtotal:       totals.Subtotal,
				DiscountAmount: totals.DiscountAmount,
				ShippingFee:    totals.ShippingFee,
				TaxAmount:      totals.TaxAmount,
				Total:          totals.Total,
				VoucherID:      voucherID,
				Notes:          text(common.SanitizeText(in.Notes)),
			})
			if err != nil {
				return err
			}
			items = make([]db.OrderItem, 0, len(lines))
			for i, line := range lines {
				item, err := q.CreateOrderItem(ctx, db.CreateOrderItemParams{
					OrderID:     created.ID,
					ProductID:   line.ProductID,
					VariantID:   line.VariantID,
					ProductName: line.ProductName,
					Quantity:    line.Quantity,
					UnitPrice:   priced[i].UnitPrice.Round(pricing.Scale),
					LineTotal:   priced[i].LineTotal(),
				})
				if err != nil {
					return err
				}
				items = append(items, item)
			}
			if _, err := q.CreateOrderStatusHistory(ctx, db.CreateOrderStatusHistoryParams{
				OrderID:   created.ID,
				ToStatus:  StatusPending,
				ChangedBy: uuid.NullUUID{UUID: userID, Valid: true},
			}); err != nil {
				return err
			}
			n, err := q.MarkCartConverted(ctx, c.ID)
			if err != nil {
				return err
			}
			if n == 0 {
				return errCartChanged
			}
			return nil
		})
	}

	var err error
	if s.Locker != nil {
		ttl := s.LockTTL
		if ttl <= 0 {
			ttl = defaultLockTTL
		}
		err = s.Locker.WithLock(ctx, lock.CheckoutKey(userID), ttl, checkout)
		if errors.Is(err, lock.ErrNotAcquired) {
			err = errCheckoutBusy
		}
	} else {
		err = checkout(ctx)
	}
	if code != "" {
		obs.IncCounter(obs.VoucherEvaluationsTotal, "checkout", voucher.ResultLabel(err))
	}
	if err != nil {
		return Order{}, err
	}

	out := toOrder(created, items, nil)
	s.afterCreate(ctx, out, red)
	return out, nil
}

func (s *Service) afterCreate(ctx context.Context, o Order, red *voucher.Redemption) {
	label := "none"
	payload := events.OrderCreated{OrderID: o.ID, OrderNumber: o.OrderNumber, Total: o.Totals.Total}
	if red != nil {
		label = string(red.Voucher.Kind)
		payload.VoucherCode = red.Voucher.Code
		s.Vouchers.RecordRedemption(ctx, red.Voucher.Kind)
	}
	obs.IncCounter(obs.OrdersCreatedTotal, label)
	obs.Observe(obs.OrderTotalAmount, o.Totals.Total.InexactFloat64())

	events.EmitAfterCommit(ctx, s.Events, events.TopicOrderCreated, o.ID, o.UserID, payload)
	if red != nil {
		events.EmitAfterCommit(ctx, s.Events, events.TopicVoucherRedeemed, red.Voucher.ID, o.UserID, events.VoucherRedeemed{
			VoucherID: red.Voucher.ID,
			OrderID:   o.ID,
			Code:      red.Voucher.Code,
			Discount:  o.Totals.DiscountAmount,
		})
	}
	s.Audit.RecordAsync(ctx, audit.Entry{
		Action:       "CREATE_ORDER",
		ResourceType: "orders",
		ResourceID:   o.ID.String(),
		Status:       http.StatusCreated,
		New:          o,
	})
}

// List returns a page of the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, page, perPage int) ([]Order, int64, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	rows, err := s.Store.ListOrdersByUser(ctx, db.ListOrdersByUserParams{
		UserID: userID,
		Limit:  int32(perPage),
		Offset: int32(common.Offset(page, perPage)),
	})
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Store.CountOrdersByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, toOrder(row, nil, nil))
	}
	return out, total, nil
}

// Get returns an order with its items and history. Orders of other users are reported as missing
// unless asAdmin is set.
func (s *Service) Get(ctx context.Context, userID, orderID uuid.UUID, asAdmin bool) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	row, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return Order{}, errOrderNotFound
		}
		return Order{}, err
	}
	if row.UserID != userID && !asAdmin {
		return Order{}, errOrderNotFound
	}
	items, err := s.Store.ListOrderItems(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	history, err := s.Store.ListOrderStatusHistory(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	return toOrder(row, items, history), nil
}

// UpdateStatusInput is the payload of PATCH /orders/{id}/status.
type UpdateStatusInput struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed shipping delivered cancelled"`
	Note   string `json:"note" validate:"omitempty,max=500"`
}

// UpdateStatus moves an order along its lifecycle and records the change in the history.
func (s *Service) UpdateStatus(ctx context.Context, actorID, orderID uuid.UUID, in UpdateStatusInput) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	if err := common.Validate(in); err != nil {
		return Order{}, err
	}
	var before db.Order
	err := s.Store.WithinTx(ctx, func(q Queries) error {
		var err error
		before, err = q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if db.IsNotFound(err) {
				return errOrderNotFound
			}
			return err
		}
		if !CanTransition(before.Status, in.Status) {
			return common.Conflict("INVALID_STATUS_TRANSITION", "cannot move order from "+before.Status+" to "+in.Status, nil)
		}
		n, err := q.UpdateOrderStatus(ctx, db.UpdateOrderStatusParams{ID: orderID, FromStatus: before.Status, ToStatus: in.Status})
		if err != nil {
			return err
		}
		if n == 0 {
			return common.Conflict("ORDER_STATUS_CHANGED", "order status changed concurrently", nil)
		}
		_, err = q.CreateOrderStatusHistory(ctx, db.CreateOrderStatusHistoryParams{
			OrderID:    orderID,
			FromStatus: pgtype.Text{String: before.Status, Valid: true},
			ToStatus:   in.Status,
			Note:       text(common.SanitizeText(in.Note)),
			ChangedBy:  uuid.NullUUID{UUID: actorID, Valid: actorID != uuid.Nil},
		})
		return err
	})
	if err != nil {
		return Order{}, err
	}

	obs.IncCounter(obs.OrderStatusTransitionsTotal, before.Status, in.Status)
	events.EmitAfterCommit(ctx, s.Events, events.TopicOrderStatusChanged, orderID, before.UserID, events.OrderStatusChanged{
		OrderID:     orderID,
		OrderNumber: before.OrderNumber,
		From:        before.Status,
		To:          in.Status,
	})
	s.Audit.RecordAsync(ctx, audit.Entry{
		Action:       "UPDATE_ORDER_STATUS",
		ResourceType: "orders",
		ResourceID:   orderID.String(),
		Old:          map[string]string{"status": before.Status},
		New:          map[string]string{"status": in.Status},
	})
	return s.Get(ctx, actorID, orderID, true)
}

func (s *Service) quoteShipping(ctx context.Context, req shipping.Request) (decimal.Decimal, error) {
	if s.Shipping == nil {
		return decimal.Zero, nil
	}
	return s.Shipping.Quote(ctx, req)
}

func (s *Service) orderNumber() string {
	if s.NewOrderNumber != nil {
		return s.NewOrderNumber()
	}
	return "ORD-" + ulid.Make().String()
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("order service not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func toOrder(o db.Order, items []db.OrderItem, history []db.OrderStatusHistory) Order {
	out := Order{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Totals: pricing.Totals{
			Subtotal:       o.Subtotal,
			DiscountAmount: o.DiscountAmount,
			ShippingFee:    o.ShippingFee,
			TaxAmount:      o.TaxAmount,
			Total:          o.Total,
		},
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	if o.AddressID.Valid {
		id := o.AddressID.UUID
		out.AddressID = &id
	}
	if o.VoucherID.Valid {
		id := o.VoucherID.UUID
		out.VoucherID = &id
	}
	if o.Notes.Valid {
		n := o.Notes.String
		out.Notes = &n
	}
	for _, it := range items {
		item := Item{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		}
		if it.VariantID.Valid {
			id := it.VariantID.UUID
			item.VariantID = &id
		}
		out.Items = append(out.Items, item)
	}
	for _, h := range history {
		change := StatusChange{To: h.ToStatus, CreatedAt: h.CreatedAt}
		if h.FromStatus.Valid {
			from := h.FromStatus.String
			change.From = &from
		}
		if h.Note.Valid {
			note := h.Note.String
			change.Note = &note
		}
		if h.ChangedBy.Valid {
			id := h.ChangedBy.UUID
			change.ChangedBy = &id
		}
		out.History = append(out.History, change)
	}
	return out
}

func text(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
