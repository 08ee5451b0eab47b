package voucher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/cart"
	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/db"
	"github.com/noah-isme/storefront-api/internal/events"
	"github.com/noah-isme/storefront-api/internal/pricing"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

type recordingEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingEmitter) Emit(_ context.Context, topic string, aggregateID, userID uuid.UUID, _ any) (events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return events.Event{ID: uuid.New(), Topic: topic, AggregateID: aggregateID, UserID: userID}, nil
}

func newTestService(store *fakeStore, emitter events.Emitter) *Service {
	return &Service{
		Store:    store,
		Shipping: shipping.FlatRate{Fee: decimal.NewFromInt(30000)},
		TaxBPS:   1000,
		Events:   emitter,
		Now:      func() time.Time { return testNow },
	}
}

func voucherRow(code string, kind Kind, value string) db.Voucher {
	return db.Voucher{
		Code:      code,
		Kind:      string(kind),
		Value:     dec(value),
		ValidFrom: testNow.Add(-24 * time.Hour),
		ValidTo:   testNow.Add(24 * time.Hour),
		IsActive:  true,
	}
}

func pendingOrder(store *fakeStore, userID uuid.UUID) db.Order {
	o := db.Order{
		ID:             uuid.New(),
		OrderNumber:    "ORD-TEST",
		UserID:         userID,
		Status:         "pending",
		Subtotal:       dec("200000"),
		DiscountAmount: decimal.Zero,
		ShippingFee:    dec("30000"),
		TaxAmount:      dec("20000"),
		Total:          dec("250000"),
	}
	store.orders[o.ID] = o
	return o
}

func TestApplyToOrderRecomputesTaxOnDiscountedGoods(t *testing.T) {
	store := newFakeStore()
	emitter := &recordingEmitter{}
	svc := newTestService(store, emitter)
	userID := store.addUser()
	v := store.addVoucher(voucherRow("TENOFF", KindPercentage, "10"))
	store.assign(v.ID, userID)
	order := pendingOrder(store, userID)

	res, err := svc.ApplyToOrder(context.Background(), userID, ApplyInput{OrderID: order.ID.String(), VoucherCode: " TENOFF "})
	require.NoError(t, err)
	require.Equal(t, v.ID, res.VoucherID)
	require.Equal(t, "20000", res.Totals.DiscountAmount.String())
	require.Equal(t, "18000", res.Totals.TaxAmount.String())
	require.Equal(t, "228000", res.Totals.Total.String())

	stored := store.orders[order.ID]
	require.True(t, stored.VoucherID.Valid)
	require.Equal(t, "228000", stored.Total.String())
	require.EqualValues(t, 1, store.vouchers[v.ID].UsedCount)
	require.True(t, store.assignments[0].IsUsed)
	require.Equal(t, []string{events.TopicVoucherRedeemed}, emitter.topics)
}

func TestApplyFreeShippingKeepsGoodsTax(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	userID := store.addUser()
	v := store.addVoucher(voucherRow("SHIPFREE", KindFreeShipping, "0"))
	store.assign(v.ID, userID)
	order := pendingOrder(store, userID)

	res, err := svc.ApplyToOrder(context.Background(), userID, ApplyInput{OrderID: order.ID.String(), VoucherCode: "SHIPFREE"})
	require.NoError(t, err)
	require.Equal(t, "30000", res.Totals.DiscountAmount.String())
	require.Equal(t, "20000", res.Totals.TaxAmount.String())
	require.Equal(t, "220000", res.Totals.Total.String())
}

func TestApplyFixedAmountIsCappedAtOrderValue(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	userID := store.addUser()
	v := store.addVoucher(voucherRow("BIG", KindFixedAmount, "500000"))
	store.assign(v.ID, userID)
	order := pendingOrder(store, userID)

	res, err := svc.ApplyToOrder(context.Background(), userID, ApplyInput{OrderID: order.ID.String(), VoucherCode: "BIG"})
	require.NoError(t, err)
	require.Equal(t, "230000", res.Totals.DiscountAmount.String())
	require.True(t, res.Totals.TaxAmount.IsZero())
	require.True(t, res.Totals.Total.IsZero())
}

func TestApplyLostRaceRollsBack(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	userID := store.addUser()
	v := store.addVoucher(voucherRow("RACE", KindFixedAmount, "10000"))
	store.assign(v.ID, userID)
	order := pendingOrder(store, userID)
	store.loseRace = true

	_, err := svc.ApplyToOrder(context.Background(), userID, ApplyInput{OrderID: order.ID.String(), VoucherCode: "RACE"})
	require.ErrorIs(t, err, ErrConcurrentVoucherConflict)
	require.False(t, store.orders[order.ID].VoucherID.Valid)
	require.EqualValues(t, 0, store.vouchers[v.ID].UsedCount)
}

func TestConcurrentApplySameVoucher(t *testing.T) {
	for round := 0; round < 50; round++ {
		store := newFakeStore()
		svc := newTestService(store, nil)
		userID := store.addUser()
		v := store.addVoucher(voucherRow("ONCE", KindFixedAmount, "10000"))
		store.assign(v.ID, userID)
		orders := []db.Order{pendingOrder(store, userID), pendingOrder(store, userID)}

		start := make(chan struct{})
		errs := make([]error, len(orders))
		var wg sync.WaitGroup
		for i, o := range orders {
			wg.Add(1)
			go func(i int, orderID uuid.UUID) {
				defer wg.Done()
				<-start
				_, errs[i] = svc.ApplyToOrder(context.Background(), userID, ApplyInput{OrderID: orderID.String(), VoucherCode: "ONCE"})
			}(i, o.ID)
		}
		close(start)
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.True(t, errors.Is(err, ErrConcurrentVoucherConflict) || errors.Is(err, ErrVoucherNotAssignedOrUsed), "unexpected error: %v", err)
		}
		require.Equal(t, 1, succeeded, "round %d", round)
		require.EqualValues(t, 1, store.vouchers[v.ID].UsedCount, "round %d", round)
		require.True(t, store.assignments[0].IsUsed)

		discounted := 0
		for _, o := range orders {
			if store.orders[o.ID].VoucherID.Valid {
				discounted++
			}
		}
		require.Equal(t, 1, discounted, "round %d", round)
	}
}

func TestApplyRejectsExhaustedVoucherWithoutConsumingAssignment(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	userID := store.addUser()
	row := voucherRow("GONE", KindFixedAmount, "10000")
	row.UsageLimit = pgtype.Int4{Int32: 1, Valid: true}
	row.UsedCount = 1
	v := store.addVoucher(row)
	store.assign(v.ID, userID)
	order := pendingOrder(store, userID)

	_, err := svc.ApplyToOrder(context.Background(), userID, ApplyInput{OrderID: order.ID.String(), VoucherCode: "GONE"})
	require.ErrorIs(t, err, ErrVoucherUsageLimitReached)
	require.False(t, store.assignments[0].IsUsed)
}

func TestApplyChecksOrderOwnershipAndStatus(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	owner := store.addUser()
	v := store.addVoucher(voucherRow("OWN", KindFixedAmount, "10000"))
	store.assign(v.ID, owner)
	order := pendingOrder(store, owner)
	ctx := context.Background()

	_, err := svc.ApplyToOrder(ctx, store.addUser(), ApplyInput{OrderID: order.ID.String(), VoucherCode: "OWN"})
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, http.StatusNotFound, appErr.HTTPStatus)

	shipped := store.orders[order.ID]
	shipped.Status = "shipped"
	store.orders[order.ID] = shipped
	_, err = svc.ApplyToOrder(ctx, owner, ApplyInput{OrderID: order.ID.String(), VoucherCode: "OWN"})
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "ORDER_NOT_PENDING", appErr.Code)
	require.False(t, store.assignments[0].IsUsed)
}

func TestApplySecondVoucherIsRejected(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	userID := store.addUser()
	first := store.addVoucher(voucherRow("ONE", KindFixedAmount, "10000"))
	second := store.addVoucher(voucherRow("TWO", KindFixedAmount, "10000"))
	store.assign(first.ID, userID)
	store.assign(second.ID, userID)
	order := pendingOrder(store, userID)
	ctx := context.Background()

	_, err := svc.ApplyToOrder(ctx, userID, ApplyInput{OrderID: order.ID.String(), VoucherCode: "ONE"})
	require.NoError(t, err)
	_, err = svc.ApplyToOrder(ctx, userID, ApplyInput{OrderID: order.ID.String(), VoucherCode: "TWO"})
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "VOUCHER_ALREADY_APPLIED", appErr.Code)
}

func TestAssignHonoursPerUserLimit(t *testing.T) {
	store := newFakeStore()
	emitter := &recordingEmitter{}
	svc := newTestService(store, emitter)
	userID := store.addUser()
	row := voucherRow("ONCE", KindPercentage, "5")
	row.UsageLimitPerUser = pgtype.Int4{Int32: 1, Valid: true}
	v := store.addVoucher(row)
	ctx := context.Background()

	a, err := svc.Assign(ctx, v.ID, userID)
	require.NoError(t, err)
	require.Equal(t, userID, a.UserID)
	require.False(t, a.IsUsed)
	require.Equal(t, []string{events.TopicVoucherAssigned}, emitter.topics)

	_, err = svc.Assign(ctx, v.ID, userID)
	require.ErrorIs(t, err, ErrPerUserUsageLimitReached)
	require.Len(t, store.assignments, 1)
	require.Len(t, emitter.topics, 1)
}

func TestAssignUnknownUserOrVoucher(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	v := store.addVoucher(voucherRow("WHO", KindPercentage, "5"))
	ctx := context.Background()

	_, err := svc.Assign(ctx, v.ID, uuid.New())
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "USER_NOT_FOUND", appErr.Code)

	_, err = svc.Assign(ctx, uuid.New(), store.addUser())
	require.ErrorIs(t, err, ErrVoucherNotFound)
}

func TestAssignExpiredVoucher(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	row := voucherRow("OLD", KindPercentage, "5")
	row.ValidTo = testNow.Add(-time.Minute)
	v := store.addVoucher(row)

	_, err := svc.Assign(context.Background(), v.ID, store.addUser())
	require.ErrorIs(t, err, ErrVoucherExpiredOrInactive)
}

func seedCart(store *fakeStore, userID uuid.UUID, price string, qty int32) {
	c := db.Cart{ID: uuid.New(), UserID: userID, Status: "active"}
	store.carts[userID] = c
	store.lines[c.ID] = []db.CartLine{{
		ID:            uuid.New(),
		CartID:        c.ID,
		ProductID:     uuid.New(),
		Quantity:      qty,
		ProductName:   "Jacket",
		ProductActive: true,
		UnitPrice:     decimal.NewNullDecimal(dec(price)),
	}}
}

func TestPreviewDoesNotConsumeAssignment(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	userID := store.addUser()
	v := store.addVoucher(voucherRow("FIFTY", KindFixedAmount, "50000"))
	store.assign(v.ID, userID)
	seedCart(store, userID, "100000", 3)

	res, err := svc.Preview(context.Background(), userID, PreviewInput{VoucherCode: "FIFTY"})
	require.NoError(t, err)
	require.Equal(t, KindFixedAmount, res.Type)
	require.Equal(t, "50000", res.Discount.String())
	require.Equal(t, "300000", res.Totals.Subtotal.String())
	require.Equal(t, "25000", res.Totals.TaxAmount.String())
	require.Equal(t, "305000", res.Totals.Total.String())
	require.False(t, store.assignments[0].IsUsed)
	require.EqualValues(t, 0, store.vouchers[v.ID].UsedCount)
}

func TestPreviewErrors(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	userID := store.addUser()
	ctx := context.Background()

	_, err := svc.Preview(ctx, userID, PreviewInput{VoucherCode: "ANY"})
	require.ErrorIs(t, err, pricing.ErrEmptyCart)

	seedCart(store, userID, "100000", 1)
	_, err = svc.Preview(ctx, userID, PreviewInput{VoucherCode: "MISSING"})
	require.ErrorIs(t, err, ErrVoucherNotFound)

	row := voucherRow("MIN", KindPercentage, "10")
	row.MinOrderValue = decimal.NewNullDecimal(dec("500000"))
	v := store.addVoucher(row)
	store.assign(v.ID, userID)
	_, err = svc.Preview(ctx, userID, PreviewInput{VoucherCode: "MIN"})
	var minErr *MinimumOrderValueError
	require.True(t, errors.As(err, &minErr))
	require.Equal(t, "500000", minErr.Threshold.String())

	other := store.addVoucher(voucherRow("NOTMINE", KindPercentage, "10"))
	_, err = svc.Preview(ctx, userID, PreviewInput{VoucherCode: other.Code})
	require.ErrorIs(t, err, ErrVoucherNotAssignedOrUsed)
}

func TestPreviewUnavailableProduct(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	userID := store.addUser()
	seedCart(store, userID, "100000", 1)
	for _, lines := range store.lines {
		lines[0].ProductActive = false
	}

	_, err := svc.Preview(context.Background(), userID, PreviewInput{VoucherCode: "X"})
	require.ErrorIs(t, err, cart.ErrProductUnavailable)
}

func TestCreateValidatesAndRejectsDuplicates(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	ctx := context.Background()
	in := CreateInput{
		Code:      "WELCOME",
		Type:      "percentage",
		Value:     dec("15"),
		ValidFrom: testNow,
		ValidTo:   testNow.Add(30 * 24 * time.Hour),
	}

	view, err := svc.Create(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "WELCOME", view.Code)
	require.True(t, view.IsActive)

	_, err = svc.Create(ctx, in)
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "VOUCHER_CODE_TAKEN", appErr.Code)
	require.Equal(t, http.StatusConflict, appErr.HTTPStatus)

	bad := in
	bad.Code = "TOOMUCH"
	bad.Value = dec("150")
	_, err = svc.Create(ctx, bad)
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)

	bad = in
	bad.Code = "BACKWARDS"
	bad.ValidTo = testNow.Add(-time.Hour)
	_, err = svc.Create(ctx, bad)
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)

	bad = in
	bad.Code = "WEIRD"
	bad.Type = "bogo"
	_, err = svc.Create(ctx, bad)
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestListForUserSkipsUsedAssignments(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	userID := store.addUser()
	v := store.addVoucher(voucherRow("MINE", KindFixedAmount, "10000"))
	store.assign(v.ID, userID)
	used := store.assign(v.ID, userID)
	store.assignments[1].IsUsed = true

	out, err := svc.ListForUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotEqual(t, used.ID, out[0].AssignmentID)
	require.Equal(t, "MINE", out[0].Voucher.Code)
}

func TestErrorStatusKeepsEngineErrorsDistinct(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ErrVoucherNotFound, http.StatusNotFound, "VOUCHER_NOT_FOUND"},
		{ErrVoucherExpiredOrInactive, http.StatusBadRequest, "VOUCHER_EXPIRED_OR_INACTIVE"},
		{ErrVoucherNotAssignedOrUsed, http.StatusBadRequest, "VOUCHER_NOT_ASSIGNED_OR_USED"},
		{&MinimumOrderValueError{Threshold: dec("100000")}, http.StatusUnprocessableEntity, "MIN_ORDER_VALUE_NOT_MET"},
		{ErrVoucherUsageLimitReached, http.StatusConflict, "VOUCHER_USAGE_LIMIT_REACHED"},
		{ErrPerUserUsageLimitReached, http.StatusConflict, "VOUCHER_PER_USER_LIMIT_REACHED"},
		{ErrConcurrentVoucherConflict, http.StatusConflict, "VOUCHER_CONFLICT"},
		{pricing.ErrEmptyCart, http.StatusBadRequest, "CART_EMPTY"},
	}
	for _, tc := range cases {
		status, code, ok := ErrorStatus(tc.err)
		require.True(t, ok, tc.code)
		require.Equal(t, tc.status, status, tc.code)
		require.Equal(t, tc.code, code)
	}
	_, _, ok := ErrorStatus(errors.New("boom"))
	require.False(t, ok)
}

func newRouter(h *Handler, userID uuid.UUID) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(common.WithUserID(req.Context(), userID.String())))
		})
	})
	r.Post("/vouchers/preview", h.Preview)
	r.Post("/vouchers/apply", h.Apply)
	r.Get("/vouchers/{id}", h.Get)
	return r
}

func TestPreviewHandlerReportsMinimumOrderValue(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	userID := store.addUser()
	seedCart(store, userID, "100000", 1)
	row := voucherRow("MIN", KindPercentage, "10")
	row.MinOrderValue = decimal.NewNullDecimal(dec("500000"))
	v := store.addVoucher(row)
	store.assign(v.ID, userID)
	router := newRouter(&Handler{Svc: svc}, userID)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/vouchers/preview", strings.NewReader(`{"voucher_code":"MIN"}`))
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var body struct {
		Error struct {
			Code    string            `json:"code"`
			Message string            `json:"message"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "MIN_ORDER_VALUE_NOT_MET", body.Error.Code)
	require.Contains(t, body.Error.Message, "500,000")
	require.Equal(t, "500000", body.Error.Details["min_order_value"])
}

func TestApplyHandler(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	userID := store.addUser()
	v := store.addVoucher(voucherRow("TENOFF", KindPercentage, "10"))
	store.assign(v.ID, userID)
	order := pendingOrder(store, userID)
	router := newRouter(&Handler{Svc: svc}, userID)

	rr := httptest.NewRecorder()
	body := `{"order_id":"` + order.ID.String() + `","voucher_code":"TENOFF"}`
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/vouchers/apply", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data struct {
			Code   string `json:"code"`
			Totals struct {
				Total decimal.Decimal `json:"total"`
			} `json:"totals"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "TENOFF", resp.Data.Code)
	require.Equal(t, "228000", resp.Data.Totals.Total.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/vouchers/apply", strings.NewReader(body)))
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestGetHandlerNotFound(t *testing.T) {
	router := newRouter(&Handler{Svc: newTestService(newFakeStore(), nil)}, uuid.New())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/vouchers/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "VOUCHER_NOT_FOUND")
}
