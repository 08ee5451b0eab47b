package voucher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/storefront-api/internal/audit"
	"github.com/noah-isme/storefront-api/internal/cart"
	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/db"
	"github.com/noah-isme/storefront-api/internal/events"
	"github.com/noah-isme/storefront-api/internal/obs"
	"github.com/noah-isme/storefront-api/internal/pricing"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

// ErrVoucherNotFound is returned when no voucher matches the code or id.
var ErrVoucherNotFound = errors.New("voucher not found")

// RedeemQueries are the statements a redemption runs inside the caller's transaction.
type RedeemQueries interface {
	GetVoucherByCodeForUpdate(ctx context.Context, code string) (db.Voucher, error)
	GetOpenAssignment(ctx context.Context, arg db.GetOpenAssignmentParams) (db.UserVoucher, error)
	CountUsedAssignments(ctx context.Context, arg db.CountAssignmentsParams) (int64, error)
	MarkAssignmentUsed(ctx context.Context, arg db.MarkAssignmentUsedParams) (int64, error)
	IncrementVoucherUsage(ctx context.Context, id uuid.UUID) (int64, error)
}

// RedeemRequest describes one attempt to consume a voucher against an order.
type RedeemRequest struct {
	Code        string
	UserID      uuid.UUID
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Now         time.Time
}

// Redemption is the outcome of a successful evaluation.
type Redemption struct {
	Voucher      Voucher
	AssignmentID uuid.UUID
	Discount     decimal.Decimal
}

// GoodsDiscount is the part of the discount that reduces the taxable goods value.
func (r Redemption) GoodsDiscount() decimal.Decimal {
	if r.Voucher.Kind == KindFreeShipping {
		return decimal.Zero
	}
	return r.Discount
}

// Redeem evaluates the voucher with its row locked and consumes the user's assignment. It must run
// inside a transaction; any error leaves the caller to roll back.
func Redeem(ctx context.Context, q RedeemQueries, req RedeemRequest) (Redemption, error) {
	row, err := q.GetVoucherByCodeForUpdate(ctx, normalizeCode(req.Code))
	if err != nil {
		if db.IsNotFound(err) {
			return Redemption{}, ErrVoucherNotFound
		}
		return Redemption{}, err
	}
	red, err := evaluateRow(ctx, q, row, req)
	if err != nil {
		return Redemption{}, err
	}

	n, err := q.MarkAssignmentUsed(ctx, db.MarkAssignmentUsedParams{ID: red.AssignmentID, UsedAt: req.Now})
	if err != nil {
		return Redemption{}, err
	}
	if n == 0 {
		return Redemption{}, ErrConcurrentVoucherConflict
	}
	n, err = q.IncrementVoucherUsage(ctx, row.ID)
	if err != nil {
		return Redemption{}, err
	}
	if n == 0 {
		return Redemption{}, ErrVoucherUsageLimitReached
	}
	red.Voucher.UsedCount++
	return red, nil
}

type assignmentQueries interface {
	GetOpenAssignment(ctx context.Context, arg db.GetOpenAssignmentParams) (db.UserVoucher, error)
	CountUsedAssignments(ctx context.Context, arg db.CountAssignmentsParams) (int64, error)
}

func evaluateRow(ctx context.Context, q assignmentQueries, row db.Voucher, req RedeemRequest) (Redemption, error) {
	v, err := FromModel(row)
	if err != nil {
		return Redemption{}, err
	}
	var assignment *Assignment
	open, err := q.GetOpenAssignment(ctx, db.GetOpenAssignmentParams{VoucherID: row.ID, UserID: req.UserID})
	switch {
	case err == nil:
		a := assignmentFromModel(open)
		assignment = &a
	case !db.IsNotFound(err):
		return Redemption{}, err
	}
	used, err := q.CountUsedAssignments(ctx, db.CountAssignmentsParams{VoucherID: row.ID, UserID: req.UserID})
	if err != nil {
		return Redemption{}, err
	}
	discount, err := Evaluate(Input{
		Voucher:     v,
		Assignment:  assignment,
		UsedByUser:  int(used),
		Subtotal:    req.Subtotal,
		ShippingFee: req.ShippingFee,
		Now:         req.Now,
	})
	if err != nil {
		return Redemption{}, err
	}
	return Redemption{Voucher: v, AssignmentID: assignment.ID, Discount: discount}, nil
}

// Queries captures the database methods required by the voucher service.
type Queries interface {
	RedeemQueries
	ListActiveVouchers(ctx context.Context, now time.Time) ([]db.Voucher, error)
	GetVoucher(ctx context.Context, id uuid.UUID) (db.Voucher, error)
	GetVoucherForUpdate(ctx context.Context, id uuid.UUID) (db.Voucher, error)
	GetVoucherByCode(ctx context.Context, code string) (db.Voucher, error)
	CreateVoucher(ctx context.Context, arg db.CreateVoucherParams) (db.Voucher, error)
	CountAssignments(ctx context.Context, arg db.CountAssignmentsParams) (int64, error)
	CreateAssignment(ctx context.Context, arg db.CreateAssignmentParams) (db.UserVoucher, error)
	ListUserVouchers(ctx context.Context, arg db.ListUserVouchersParams) ([]db.UserVoucherRow, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (db.User, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (db.Order, error)
	ApplyOrderVoucher(ctx context.Context, arg db.ApplyOrderVoucherParams) (int64, error)
	GetActiveCart(ctx context.Context, userID uuid.UUID) (db.Cart, error)
	ListCartLines(ctx context.Context, cartID uuid.UUID) ([]db.CartLine, error)
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

// Service encapsulates voucher administration, preview and application to orders.
type Service struct {
	Store    Store
	Shipping shipping.Quoter
	TaxBPS   int
	Events   events.Emitter
	Audit    *audit.Service
	Meter    metric.Meter
	Now      func() time.Time

	meterOnce   sync.Once
	redemptions metric.Int64Counter
}

// List returns the active vouchers valid now.
func (s *Service) List(ctx context.Context) ([]View, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.Store.ListActiveVouchers(ctx, s.now())
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(rows))
	for _, row := range rows {
		out = append(out, ViewFromModel(row))
	}
	return out, nil
}

// Get loads one voucher by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	row, err := s.Store.GetVoucher(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return View{}, ErrVoucherNotFound
		}
		return View{}, err
	}
	return ViewFromModel(row), nil
}

// CreateInput is the admin payload for a new voucher.
type CreateInput struct {
	Code              string           `json:"code" validate:"required,min=3,max=50"`
	Description       string           `json:"description" validate:"max=1000"`
	Type              string           `json:"type" validate:"required"`
	Value             decimal.Decimal  `json:"value"`
	MinOrderValue     *decimal.Decimal `json:"min_order_value"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount"`
	ValidFrom         time.Time        `json:"valid_from" validate:"required"`
	ValidTo           time.Time        `json:"valid_to" validate:"required"`
	UsageLimit        *int32           `json:"usage_limit" validate:"omitempty,gt=0"`
	UsageLimitPerUser *int32           `json:"usage_limit_per_user" validate:"omitempty,gt=0"`
	IsActive          *bool            `json:"is_active"`
}

// Create validates and stores a voucher.
func (s *Service) Create(ctx context.Context, in CreateInput) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	params, err := in.params()
	if err != nil {
		return View{}, err
	}
	row, err := s.Store.CreateVoucher(ctx, params)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return View{}, common.Conflict("VOUCHER_CODE_TAKEN", "voucher code already exists", err)
		}
		return View{}, err
	}
	view := ViewFromModel(row)
	s.Audit.RecordAsync(ctx, audit.Entry{
		Action:       "CREATE_VOUCHER",
		ResourceType: "vouchers",
		ResourceID:   row.ID.String(),
		Status:       http.StatusCreated,
		New:          view,
	})
	return view, nil
}

func (in CreateInput) params() (db.CreateVoucherParams, error) {
	kind, err := ParseKind(in.Type)
	if err != nil {
		return db.CreateVoucherParams{}, invalid("type must be one of percentage, fixed_amount, free_shipping")
	}
	value := in.Value
	switch kind {
	case KindFreeShipping:
		if value.IsNegative() {
			return db.CreateVoucherParams{}, invalid("value must not be negative")
		}
	case KindPercentage:
		if !value.IsPositive() || value.GreaterThan(decimal.NewFromInt(100)) {
			return db.CreateVoucherParams{}, invalid("percentage value must be greater than 0 and at most 100")
		}
	default:
		if !value.IsPositive() {
			return db.CreateVoucherParams{}, invalid("value must be greater than 0")
		}
	}
	if in.ValidTo.Before(in.ValidFrom) {
		return db.CreateVoucherParams{}, invalid("valid_to must not be before valid_from")
	}
	minOrder, err := optionalAmount("min_order_value", in.MinOrderValue)
	if err != nil {
		return db.CreateVoucherParams{}, err
	}
	maxDiscount, err := optionalAmount("max_discount_amount", in.MaxDiscountAmount)
	if err != nil {
		return db.CreateVoucherParams{}, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return db.CreateVoucherParams{
		Code:              normalizeCode(in.Code),
		Description:       common.SanitizeText(in.Description),
		Kind:              string(kind),
		Value:             value.Round(pricing.Scale),
		MinOrderValue:     minOrder,
		MaxDiscountAmount: maxDiscount,
		ValidFrom:         in.ValidFrom,
		ValidTo:           in.ValidTo,
		IsActive:          active,
		UsageLimit:        optionalInt4(in.UsageLimit),
		UsageLimitPerUser: optionalInt4(in.UsageLimitPerUser),
	}, nil
}

// AssignInput names the user receiving a voucher.
type AssignInput struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// AssignmentView is the API shape of a voucher assignment.
type AssignmentView struct {
	ID         uuid.UUID `json:"id"`
	VoucherID  uuid.UUID `json:"voucher_id"`
	UserID     uuid.UUID `json:"user_id"`
	IsUsed     bool      `json:"is_used"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Assign gives the user one more entitlement to the voucher, honouring the per-user and global
// limits. The user is notified through the voucher.assigned event.
func (s *Service) Assign(ctx context.Context, voucherID, userID uuid.UUID) (AssignmentView, error) {
	if err := s.ready(); err != nil {
		return AssignmentView{}, err
	}
	now := s.now()
	var (
		row     db.Voucher
		created db.UserVoucher
	)
	err := s.Store.WithinTx(ctx, func(q Queries) error {
		var err error
		row, err = q.GetVoucherForUpdate(ctx, voucherID)
		if err != nil {
			if db.IsNotFound(err) {
				return ErrVoucherNotFound
			}
			return err
		}
		if _, err := q.GetUserByID(ctx, userID); err != nil {
			if db.IsNotFound(err) {
				return common.NotFound("USER_NOT_FOUND", "user not found")
			}
			return err
		}
		v, err := FromModel(row)
		if err != nil {
			return err
		}
		prior, err := q.CountAssignments(ctx, db.CountAssignmentsParams{VoucherID: voucherID, UserID: userID})
		if err != nil {
			return err
		}
		if err := CheckAssignable(v, int(prior), now); err != nil {
			return err
		}
		created, err = q.CreateAssignment(ctx, db.CreateAssignmentParams{VoucherID: voucherID, UserID: userID, AssignedAt: now})
		return err
	})
	if err != nil {
		obs.IncCounter(obs.VoucherAssignmentsTotal, ResultLabel(err))
		return AssignmentView{}, err
	}
	obs.IncCounter(obs.VoucherAssignmentsTotal, "ok")

	view := AssignmentView{
		ID:         created.ID,
		VoucherID:  created.VoucherID,
		UserID:     created.UserID,
		IsUsed:     created.IsUsed,
		AssignedAt: created.AssignedAt,
	}
	events.EmitAfterCommit(ctx, s.Events, events.TopicVoucherAssigned, voucherID, userID, events.VoucherAssigned{
		VoucherID:    voucherID,
		AssignmentID: created.ID,
		Code:         row.Code,
		ValidTo:      row.ValidTo,
	})
	s.Audit.RecordAsync(ctx, audit.Entry{
		Action:       "ASSIGN_VOUCHER",
		ResourceType: "user_vouchers",
		ResourceID:   created.ID.String(),
		Status:       http.StatusCreated,
		New:          view,
	})
	return view, nil
}

// UserVoucherView pairs an open assignment with the voucher it grants.
type UserVoucherView struct {
	AssignmentID uuid.UUID `json:"assignment_id"`
	AssignedAt   time.Time `json:"assigned_at"`
	Voucher      View      `json:"voucher"`
}

// ListForUser returns the user's unused assignments of vouchers that have not expired.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]UserVoucherView, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.Store.ListUserVouchers(ctx, db.ListUserVouchersParams{UserID: userID, Now: s.now()})
	if err != nil {
		return nil, err
	}
	out := make([]UserVoucherView, 0, len(rows))
	for _, row := range rows {
		out = append(out, UserVoucherView{
			AssignmentID: row.Assignment.ID,
			AssignedAt:   row.Assignment.AssignedAt,
			Voucher:      ViewFromModel(row.Voucher),
		})
	}
	return out, nil
}

// PreviewInput names the voucher to try against the active cart.
type PreviewInput struct {
	VoucherCode string `json:"voucher_code" validate:"required,max=50"`
}

// PreviewResult describes the outcome of evaluating a voucher without mutating state.
type PreviewResult struct {
	Code     string          `json:"code"`
	Type     Kind            `json:"type"`
	Discount decimal.Decimal `json:"discount"`
	Totals   pricing.Totals  `json:"totals"`
}

// Preview performs a dry-run evaluation against the user's active cart.
func (s *Service) Preview(ctx context.Context, userID uuid.UUID, in PreviewInput) (PreviewResult, error) {
	if err := s.ready(); err != nil {
		return PreviewResult{}, err
	}
	c, err := s.Store.GetActiveCart(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return PreviewResult{}, pricing.ErrEmptyCart
		}
		return PreviewResult{}, err
	}
	lines, err := s.Store.ListCartLines(ctx, c.ID)
	if err != nil {
		return PreviewResult{}, err
	}
	items, err := cart.PriceLines(lines)
	if err != nil {
		return PreviewResult{}, err
	}
	if err := pricing.RequireItems(items); err != nil {
		return PreviewResult{}, err
	}
	subtotal, err := pricing.ComputeSubtotal(items)
	if err != nil {
		return PreviewResult{}, err
	}
	fee, err := s.quoteShipping(ctx, subtotal)
	if err != nil {
		return PreviewResult{}, err
	}

	row, err := s.Store.GetVoucherByCode(ctx, normalizeCode(in.VoucherCode))
	if err != nil {
		if db.IsNotFound(err) {
			err = ErrVoucherNotFound
		}
		obs.IncCounter(obs.VoucherEvaluationsTotal, "preview", ResultLabel(err))
		return PreviewResult{}, err
	}
	red, err := evaluateRow(ctx, s.Store, row, RedeemRequest{UserID: userID, Subtotal: subtotal, ShippingFee: fee, Now: s.now()})
	obs.IncCounter(obs.VoucherEvaluationsTotal, "preview", ResultLabel(err))
	if err != nil {
		return PreviewResult{}, err
	}
	tax := pricing.ComputeTax(subtotal, red.GoodsDiscount(), s.TaxBPS)
	totals, err := pricing.Summarize(subtotal, fee, tax, red.Discount)
	if err != nil {
		return PreviewResult{}, err
	}
	return PreviewResult{Code: row.Code, Type: red.Voucher.Kind, Discount: red.Discount, Totals: totals}, nil
}

// ApplyInput names the voucher and the pending order it should discount.
type ApplyInput struct {
	OrderID     string `json:"order_id" validate:"required,uuid"`
	VoucherCode string `json:"voucher_code" validate:"required,max=50"`
}

// ApplyResult is the order totals after the voucher was applied.
type ApplyResult struct {
	OrderID   uuid.UUID      `json:"order_id"`
	VoucherID uuid.UUID      `json:"voucher_id"`
	Code      string         `json:"code"`
	Totals    pricing.Totals `json:"totals"`
}

// ApplyToOrder redeems a voucher against a pending order the user owns. The assignment, the usage
// counter and the order totals change in one transaction.
func (s *Service) ApplyToOrder(ctx context.Context, userID uuid.UUID, in ApplyInput) (ApplyResult, error) {
	if err := s.ready(); err != nil {
		return ApplyResult{}, err
	}
	orderID, err := common.ParseUUID("order_id", in.OrderID)
	if err != nil {
		return ApplyResult{}, err
	}
	now := s.now()
	var (
		before db.Order
		red    Redemption
		totals pricing.Totals
	)
	err = s.Store.WithinTx(ctx, func(q Queries) error {
		var err error
		before, err = q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if db.IsNotFound(err) {
				return errOrderNotFound
			}
			return err
		}
		if before.UserID != userID {
			return errOrderNotFound
		}
		if before.Status != "pending" {
			return errOrderNotPending
		}
		if before.VoucherID.Valid {
			return errVoucherAlreadyApplied
		}

		red, err = Redeem(ctx, q, RedeemRequest{
			Code:        in.VoucherCode,
			UserID:      userID,
			Subtotal:    before.Subtotal,
			ShippingFee: before.ShippingFee,
			Now:         now,
		})
		if err != nil {
			return err
		}
		tax := pricing.ComputeTax(before.Subtotal, red.GoodsDiscount(), s.TaxBPS)
		totals, err = pricing.Summarize(before.Subtotal, before.ShippingFee, tax, red.Discount)
		if err != nil {
			return err
		}
		n, err := q.ApplyOrderVoucher(ctx, db.ApplyOrderVoucherParams{
			ID:             orderID,
			VoucherID:      red.Voucher.ID,
			DiscountAmount: totals.DiscountAmount,
			TaxAmount:      totals.TaxAmount,
			Total:          totals.Total,
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrConcurrentVoucherConflict
		}
		return nil
	})
	obs.IncCounter(obs.VoucherEvaluationsTotal, "apply", ResultLabel(err))
	if err != nil {
		return ApplyResult{}, err
	}
	s.recordRedemption(ctx, red.Voucher.Kind)

	result := ApplyResult{OrderID: orderID, VoucherID: red.Voucher.ID, Code: red.Voucher.Code, Totals: totals}
	events.EmitAfterCommit(ctx, s.Events, events.TopicVoucherRedeemed, red.Voucher.ID, userID, events.VoucherRedeemed{
		VoucherID: red.Voucher.ID,
		OrderID:   orderID,
		Code:      red.Voucher.Code,
		Discount:  totals.DiscountAmount,
	})
	s.Audit.RecordAsync(ctx, audit.Entry{
		Action:       "APPLY_VOUCHER",
		ResourceType: "orders",
		ResourceID:   orderID.String(),
		Old: map[string]any{
			"voucher_id":      nil,
			"discount_amount": before.DiscountAmount,
			"tax_amount":      before.TaxAmount,
			"total":           before.Total,
		},
		New: map[string]any{
			"voucher_id":      red.Voucher.ID,
			"discount_amount": totals.DiscountAmount,
			"tax_amount":      totals.TaxAmount,
			"total":           totals.Total,
		},
	})
	return result, nil
}

// RecordRedemption counts a redemption made outside the service, such as at order creation.
func (s *Service) RecordRedemption(ctx context.Context, kind Kind) {
	s.recordRedemption(ctx, kind)
}

func (s *Service) recordRedemption(ctx context.Context, kind Kind) {
	if s == nil {
		return
	}
	s.meterOnce.Do(func() {
		meter := s.Meter
		if meter == nil {
			meter = otel.GetMeterProvider().Meter("github.com/noah-isme/storefront-api/internal/voucher")
		}
		counter, err := meter.Int64Counter("voucher.redemptions",
			metric.WithDescription("Vouchers consumed by orders."),
			metric.WithUnit("{redemption}"),
		)
		if err == nil {
			s.redemptions = counter
		}
	})
	if s.redemptions != nil {
		s.redemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("voucher.type", string(kind))))
	}
}

func (s *Service) quoteShipping(ctx context.Context, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if s.Shipping == nil {
		return decimal.Zero, nil
	}
	return s.Shipping.Quote(ctx, shipping.Request{Subtotal: subtotal})
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("voucher service not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

var (
	errOrderNotFound         = common.NotFound("ORDER_NOT_FOUND", "order not found")
	errOrderNotPending       = common.Conflict("ORDER_NOT_PENDING", "vouchers can only be applied to pending orders", nil)
	errVoucherAlreadyApplied = common.Conflict("VOUCHER_ALREADY_APPLIED", "order already has a voucher", nil)
)

// FromModel converts a stored voucher into the evaluation type.
func FromModel(v db.Voucher) (Voucher, error) {
	kind, err := ParseKind(v.Kind)
	if err != nil {
		return Voucher{}, err
	}
	return Voucher{
		ID:                v.ID,
		Code:              v.Code,
		Kind:              kind,
		Value:             v.Value,
		MinOrderValue:     v.MinOrderValue,
		MaxDiscountAmount: v.MaxDiscountAmount,
		ValidFrom:         v.ValidFrom,
		ValidTo:           v.ValidTo,
		IsActive:          v.IsActive,
		UsageLimit:        nullableInt32(v.UsageLimit),
		UsageLimitPerUser: nullableInt32(v.UsageLimitPerUser),
		UsedCount:         v.UsedCount,
	}, nil
}

func assignmentFromModel(a db.UserVoucher) Assignment {
	out := Assignment{ID: a.ID, VoucherID: a.VoucherID, UserID: a.UserID, IsUsed: a.IsUsed, AssignedAt: a.AssignedAt}
	if a.UsedAt.Valid {
		t := a.UsedAt.Time
		out.UsedAt = &t
	}
	return out
}

// View is the API shape of a voucher.
type View struct {
	ID                uuid.UUID        `json:"id"`
	Code              string           `json:"code"`
	Description       string           `json:"description"`
	Type              string           `json:"type"`
	Value             decimal.Decimal  `json:"value"`
	MinOrderValue     *decimal.Decimal `json:"min_order_value"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount"`
	ValidFrom         time.Time        `json:"valid_from"`
	ValidTo           time.Time        `json:"valid_to"`
	IsActive          bool             `json:"is_active"`
	UsageLimit        *int32           `json:"usage_limit"`
	UsageLimitPerUser *int32           `json:"usage_limit_per_user"`
	UsedCount         int32            `json:"used_count"`
}

// ViewFromModel renders a stored voucher.
func ViewFromModel(v db.Voucher) View {
	return View{
		ID:                v.ID,
		Code:              v.Code,
		Description:       v.Description,
		Type:              v.Kind,
		Value:             v.Value,
		MinOrderValue:     nullableDecimal(v.MinOrderValue),
		MaxDiscountAmount: nullableDecimal(v.MaxDiscountAmount),
		ValidFrom:         v.ValidFrom,
		ValidTo:           v.ValidTo,
		IsActive:          v.IsActive,
		UsageLimit:        nullableInt32(v.UsageLimit),
		UsageLimitPerUser: nullableInt32(v.UsageLimitPerUser),
		UsedCount:         v.UsedCount,
	}
}

// ResultLabel maps an evaluation outcome to the metric label used for voucher counters.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrVoucherNotFound):
		return "not_found"
	case errors.Is(err, ErrVoucherExpiredOrInactive):
		return "expired"
	case errors.Is(err, ErrVoucherNotAssignedOrUsed):
		return "not_assigned"
	case errors.Is(err, ErrMinimumOrderValueNotMet):
		return "min_order"
	case errors.Is(err, ErrVoucherUsageLimitReached):
		return "usage_limit"
	case errors.Is(err, ErrPerUserUsageLimitReached):
		return "per_user_limit"
	case errors.Is(err, ErrConcurrentVoucherConflict):
		return "conflict"
	case common.IsAppError(err):
		return "rejected"
	default:
		return "error"
	}
}

func normalizeCode(code string) string {
	return strings.TrimSpace(code)
}

func invalid(msg string) error {
	return common.BadRequest("VALIDATION_ERROR", msg)
}

func optionalAmount(field string, v *decimal.Decimal) (decimal.NullDecimal, error) {
	if v == nil {
		return decimal.NullDecimal{}, nil
	}
	if v.IsNegative() {
		return decimal.NullDecimal{}, invalid(fmt.Sprintf("%s must not be negative", field))
	}
	return decimal.NewNullDecimal(v.Round(pricing.Scale)), nil
}

func optionalInt4(v *int32) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: *v, Valid: true}
}

func nullableInt32(v pgtype.Int4) *int32 {
	if v.Valid {
		val := v.Int32
		return &val
	}
	return nil
}

func nullableDecimal(v decimal.NullDecimal) *decimal.Decimal {
	if v.Valid {
		d := v.Decimal
		return &d
	}
	return nil
}
