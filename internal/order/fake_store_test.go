package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-api/internal/db"
)

type fakeStore struct {
	mu          sync.Mutex
	carts       map[uuid.UUID]db.Cart
	lines       map[uuid.UUID][]db.CartLine
	addresses   map[uuid.UUID]db.Address
	vouchers    map[uuid.UUID]db.Voucher
	assignments []db.UserVoucher
	orders      map[uuid.UUID]db.Order
	items       []db.OrderItem
	history     []db.OrderStatusHistory
	clock       time.Time

	// failCreateItem makes CreateOrderItem fail after the order row exists.
	failCreateItem error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		carts:     map[uuid.UUID]db.Cart{},
		lines:     map[uuid.UUID][]db.CartLine{},
		addresses: map[uuid.UUID]db.Address{},
		vouchers:  map[uuid.UUID]db.Voucher{},
		orders:    map[uuid.UUID]db.Order{},
		clock:     testNow,
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) seedCart(userID uuid.UUID, prices ...string) db.Cart {
	c := db.Cart{ID: uuid.New(), UserID: userID, Status: "active"}
	f.carts[c.ID] = c
	for i, p := range prices {
		f.lines[c.ID] = append(f.lines[c.ID], db.CartLine{
			ID:            uuid.New(),
			CartID:        c.ID,
			ProductID:     uuid.New(),
			Quantity:      int32(i + 1),
			ProductName:   "Product " + p,
			ProductActive: true,
			UnitPrice:     decimal.NullDecimal{Decimal: decimal.RequireFromString(p), Valid: true},
		})
	}
	return c
}

func (f *fakeStore) snapshot() func() {
	carts := make(map[uuid.UUID]db.Cart, len(f.carts))
	for k, v := range f.carts {
		carts[k] = v
	}
	vouchers := make(map[uuid.UUID]db.Voucher, len(f.vouchers))
	for k, v := range f.vouchers {
		vouchers[k] = v
	}
	orders := make(map[uuid.UUID]db.Order, len(f.orders))
	for k, v := range f.orders {
		orders[k] = v
	}
	assignments := append([]db.UserVoucher(nil), f.assignments...)
	items := append([]db.OrderItem(nil), f.items...)
	history := append([]db.OrderStatusHistory(nil), f.history...)
	return func() {
		f.carts, f.vouchers, f.orders = carts, vouchers, orders
		f.assignments, f.items, f.history = assignments, items, history
	}
}

func (f *fakeStore) WithinTx(_ context.Context, fn func(Queries) error) error {
	f.mu.Lock()
	restore := f.snapshot()
	f.mu.Unlock()
	if err := fn(f); err != nil {
		f.mu.Lock()
		restore()
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) GetActiveCartForUpdate(_ context.Context, userID uuid.UUID) (db.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.carts {
		if c.UserID == userID && c.Status == "active" {
			return c, nil
		}
	}
	return db.Cart{}, pgx.ErrNoRows
}

func (f *fakeStore) ListCartLines(_ context.Context, cartID uuid.UUID) ([]db.CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]db.CartLine(nil), f.lines[cartID]...), nil
}

func (f *fakeStore) MarkCartConverted(_ context.Context, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[id]
	if !ok || c.Status != "active" {
		return 0, nil
	}
	c.Status = "converted"
	f.carts[id] = c
	return 1, nil
}

func (f *fakeStore) GetAddress(_ context.Context, arg db.GetAddressParams) (db.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.addresses[arg.ID]
	if !ok || a.UserID != arg.UserID || !a.IsActive {
		return db.Address{}, pgx.ErrNoRows
	}
	return a, nil
}

func (f *fakeStore) GetVoucherByCodeForUpdate(_ context.Context, code string) (db.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.vouchers {
		if v.Code == code {
			return v, nil
		}
	}
	return db.Voucher{}, pgx.ErrNoRows
}

func (f *fakeStore) GetOpenAssignment(_ context.Context, arg db.GetOpenAssignmentParams) (db.UserVoucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assignments {
		if a.VoucherID == arg.VoucherID && a.UserID == arg.UserID && !a.IsUsed {
			return a, nil
		}
	}
	return db.UserVoucher{}, pgx.ErrNoRows
}

func (f *fakeStore) CountUsedAssignments(_ context.Context, arg db.CountAssignmentsParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.assignments {
		if a.VoucherID == arg.VoucherID && a.UserID == arg.UserID && a.IsUsed {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) MarkAssignmentUsed(_ context.Context, arg db.MarkAssignmentUsedParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.assignments {
		if a.ID == arg.ID && !a.IsUsed {
			f.assignments[i].IsUsed = true
			f.assignments[i].UsedAt = pgtype.Timestamptz{Time: arg.UsedAt, Valid: true}
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeStore) IncrementVoucherUsage(_ context.Context, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vouchers[id]
	if !ok || (v.UsageLimit.Valid && v.UsedCount >= v.UsageLimit.Int32) {
		return 0, nil
	}
	v.UsedCount++
	f.vouchers[id] = v
	return 1, nil
}

func (f *fakeStore) CreateOrder(_ context.Context, arg db.CreateOrderParams) (db.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.tick()
	o := db.Order{
		ID:             uuid.New(),
		OrderNumber:    arg.OrderNumber,
		UserID:         arg.UserID,
		AddressID:      arg.AddressID,
		CartID:         arg.CartID,
		Status:         StatusPending,
		PaymentMethod:  arg.PaymentMethod,
		PaymentStatus:  "unpaid",
		Subtotal:       arg.Subtotal,
		DiscountAmount: arg.DiscountAmount,
		ShippingFee:    arg.ShippingFee,
		TaxAmount:      arg.TaxAmount,
		Total:          arg.Total,
		VoucherID:      arg.VoucherID,
		Notes:          arg.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeStore) CreateOrderItem(_ context.Context, arg db.CreateOrderItemParams) (db.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateItem != nil {
		return db.OrderItem{}, f.failCreateItem
	}
	it := db.OrderItem{
		ID:          uuid.New(),
		OrderID:     arg.OrderID,
		ProductID:   arg.ProductID,
		VariantID:   arg.VariantID,
		ProductName: arg.ProductName,
		Quantity:    arg.Quantity,
		UnitPrice:   arg.UnitPrice,
		LineTotal:   arg.LineTotal,
	}
	f.items = append(f.items, it)
	return it, nil
}

func (f *fakeStore) CreateOrderStatusHistory(_ context.Context, arg db.CreateOrderStatusHistoryParams) (db.OrderStatusHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := db.OrderStatusHistory{
		ID:         uuid.New(),
		OrderID:    arg.OrderID,
		FromStatus: arg.FromStatus,
		ToStatus:   arg.ToStatus,
		Note:       arg.Note,
		ChangedBy:  arg.ChangedBy,
		CreatedAt:  f.tick(),
	}
	f.history = append(f.history, h)
	return h, nil
}

func (f *fakeStore) GetOrder(_ context.Context, id uuid.UUID) (db.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return db.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (f *fakeStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (db.Order, error) {
	return f.GetOrder(ctx, id)
}

func (f *fakeStore) ListOrdersByUser(_ context.Context, arg db.ListOrdersByUserParams) ([]db.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.Order
	for _, o := range f.orders {
		if o.UserID == arg.UserID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	start := int(arg.Offset)
	if start > len(out) {
		return nil, nil
	}
	end := start + int(arg.Limit)
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

func (f *fakeStore) CountOrdersByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, o := range f.orders {
		if o.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListOrderItems(_ context.Context, orderID uuid.UUID) ([]db.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.OrderItem
	for _, it := range f.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOrderStatusHistory(_ context.Context, orderID uuid.UUID) ([]db.OrderStatusHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.OrderStatusHistory
	for _, h := range f.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, arg db.UpdateOrderStatusParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[arg.ID]
	if !ok || o.Status != arg.FromStatus {
		return 0, nil
	}
	o.Status = arg.ToStatus
	o.UpdatedAt = f.tick()
	f.orders[arg.ID] = o
	return 1, nil
}
