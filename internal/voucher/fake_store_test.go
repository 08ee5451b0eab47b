package voucher

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/storefront-api/internal/db"
)

type fakeStore struct {
	mu sync.Mutex
	// txMu serializes transactions the way the voucher row lock does, so a rollback
	// never restores state over another transaction's committed writes.
	txMu        sync.Mutex
	vouchers    map[uuid.UUID]db.Voucher
	assignments []db.UserVoucher
	users       map[uuid.UUID]db.User
	orders      map[uuid.UUID]db.Order
	carts       map[uuid.UUID]db.Cart
	lines       map[uuid.UUID][]db.CartLine

	// loseRace makes MarkAssignmentUsed report zero rows, as if another transaction won.
	loseRace bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		vouchers: make(map[uuid.UUID]db.Voucher),
		users:    make(map[uuid.UUID]db.User),
		orders:   make(map[uuid.UUID]db.Order),
		carts:    make(map[uuid.UUID]db.Cart),
		lines:    make(map[uuid.UUID][]db.CartLine),
	}
}

func (f *fakeStore) WithinTx(_ context.Context, fn func(Queries) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	f.mu.Lock()
	vouchers := make(map[uuid.UUID]db.Voucher, len(f.vouchers))
	for k, v := range f.vouchers {
		vouchers[k] = v
	}
	orders := make(map[uuid.UUID]db.Order, len(f.orders))
	for k, v := range f.orders {
		orders[k] = v
	}
	assignments := append([]db.UserVoucher(nil), f.assignments...)
	f.mu.Unlock()
	if err := fn(f); err != nil {
		f.mu.Lock()
		f.vouchers, f.orders, f.assignments = vouchers, orders, assignments
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) addUser() uuid.UUID {
	id := uuid.New()
	f.users[id] = db.User{ID: id, Email: id.String() + "@example.com", Role: "user"}
	return id
}

func (f *fakeStore) addVoucher(v db.Voucher) db.Voucher {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	f.vouchers[v.ID] = v
	return v
}

func (f *fakeStore) assign(voucherID, userID uuid.UUID) db.UserVoucher {
	a := db.UserVoucher{ID: uuid.New(), VoucherID: voucherID, UserID: userID, AssignedAt: testNow.Add(-time.Hour)}
	f.assignments = append(f.assignments, a)
	return a
}

func (f *fakeStore) byCode(code string) (db.Voucher, error) {
	for _, v := range f.vouchers {
		if v.Code == code {
			return v, nil
		}
	}
	return db.Voucher{}, pgx.ErrNoRows
}

func (f *fakeStore) GetVoucherByCodeForUpdate(_ context.Context, code string) (db.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byCode(code)
}

func (f *fakeStore) GetVoucherByCode(_ context.Context, code string) (db.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byCode(code)
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

func (f *fakeStore) CountAssignments(_ context.Context, arg db.CountAssignmentsParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.assignments {
		if a.VoucherID == arg.VoucherID && a.UserID == arg.UserID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) MarkAssignmentUsed(_ context.Context, arg db.MarkAssignmentUsedParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loseRace {
		return 0, nil
	}
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
	if !ok {
		return 0, nil
	}
	if v.UsageLimit.Valid && v.UsedCount >= v.UsageLimit.Int32 {
		return 0, nil
	}
	v.UsedCount++
	f.vouchers[id] = v
	return 1, nil
}

func (f *fakeStore) ListActiveVouchers(_ context.Context, now time.Time) ([]db.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.Voucher
	for _, v := range f.vouchers {
		if v.IsActive && !now.Before(v.ValidFrom) && !now.After(v.ValidTo) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (f *fakeStore) GetVoucher(_ context.Context, id uuid.UUID) (db.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vouchers[id]
	if !ok {
		return db.Voucher{}, pgx.ErrNoRows
	}
	return v, nil
}

func (f *fakeStore) GetVoucherForUpdate(ctx context.Context, id uuid.UUID) (db.Voucher, error) {
	return f.GetVoucher(ctx, id)
}

func (f *fakeStore) CreateVoucher(_ context.Context, arg db.CreateVoucherParams) (db.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.byCode(arg.Code); err == nil {
		return db.Voucher{}, &pgconn.PgError{Code: "23505"}
	}
	v := db.Voucher{
		ID:                uuid.New(),
		Code:              arg.Code,
		Description:       arg.Description,
		Kind:              arg.Kind,
		Value:             arg.Value,
		MinOrderValue:     arg.MinOrderValue,
		MaxDiscountAmount: arg.MaxDiscountAmount,
		ValidFrom:         arg.ValidFrom,
		ValidTo:           arg.ValidTo,
		IsActive:          arg.IsActive,
		UsageLimit:        arg.UsageLimit,
		UsageLimitPerUser: arg.UsageLimitPerUser,
		CreatedAt:         testNow,
		UpdatedAt:         testNow,
	}
	f.vouchers[v.ID] = v
	return v, nil
}

func (f *fakeStore) CreateAssignment(_ context.Context, arg db.CreateAssignmentParams) (db.UserVoucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := db.UserVoucher{ID: uuid.New(), VoucherID: arg.VoucherID, UserID: arg.UserID, AssignedAt: arg.AssignedAt}
	f.assignments = append(f.assignments, a)
	return a, nil
}

func (f *fakeStore) ListUserVouchers(_ context.Context, arg db.ListUserVouchersParams) ([]db.UserVoucherRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.UserVoucherRow
	for _, a := range f.assignments {
		if a.UserID != arg.UserID || a.IsUsed {
			continue
		}
		v := f.vouchers[a.VoucherID]
		if !v.IsActive || arg.Now.After(v.ValidTo) {
			continue
		}
		out = append(out, db.UserVoucherRow{Assignment: a, Voucher: v})
	}
	return out, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id uuid.UUID) (db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return db.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) GetOrderForUpdate(_ context.Context, id uuid.UUID) (db.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return db.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (f *fakeStore) ApplyOrderVoucher(_ context.Context, arg db.ApplyOrderVoucherParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[arg.ID]
	if !ok || o.Status != "pending" || o.VoucherID.Valid {
		return 0, nil
	}
	o.VoucherID = uuid.NullUUID{UUID: arg.VoucherID, Valid: true}
	o.DiscountAmount = arg.DiscountAmount
	o.TaxAmount = arg.TaxAmount
	o.Total = arg.Total
	f.orders[arg.ID] = o
	return 1, nil
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
	return append([]db.CartLine(nil), f.lines[cartID]...), nil
}
