// Command seed loads a demo catalog, two accounts and a few vouchers through the
// domain services, so seeded rows obey the same validation as API writes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-api/internal/app"
	"github.com/noah-isme/storefront-api/internal/auth"
	"github.com/noah-isme/storefront-api/internal/catalog"
	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/config"
	"github.com/noah-isme/storefront-api/internal/obs"
	"github.com/noah-isme/storefront-api/internal/shipping"
	"github.com/noah-isme/storefront-api/internal/user"
	"github.com/noah-isme/storefront-api/internal/voucher"
)

const seedPassword = "password123"

type account struct {
	email, name, role string
}

var accounts = []account{
	{email: "admin@storefront.local", name: "Store Admin", role: common.RoleAdmin},
	{email: "customer@storefront.local", name: "Demo Customer", role: common.RoleUser},
}

var products = []catalog.CreateInput{
	{
		Name: "Classic Tee", SKU: "TEE-CLASSIC", Price: decimal.NewFromInt(150000),
		Description: "Cotton crew neck t-shirt",
		Variants: []catalog.VariantInput{
			{SKU: "TEE-CLASSIC-M", Size: strPtr("M"), Stock: 50},
			{SKU: "TEE-CLASSIC-L", Size: strPtr("L"), Stock: 40},
			{SKU: "TEE-CLASSIC-XL", Size: strPtr("XL"), AdditionalPrice: decimal.NewFromInt(10000), Stock: 20},
		},
	},
	{
		Name: "Canvas Tote", SKU: "TOTE-CANVAS", Price: decimal.NewFromInt(90000),
		Variants: []catalog.VariantInput{{SKU: "TOTE-CANVAS-STD", Stock: 100}},
	},
	{
		Name: "Denim Jacket", SKU: "JKT-DENIM", Price: decimal.NewFromInt(650000),
		Variants: []catalog.VariantInput{
			{SKU: "JKT-DENIM-BLUE", Color: strPtr("blue"), Stock: 15},
			{SKU: "JKT-DENIM-BLACK", Color: strPtr("black"), Stock: 10},
		},
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "seed").Logger()
	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background()), time.Minute)
	defer cancel()

	pool, err := app.OpenPool(ctx, cfg, "storefront-seed")
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()

	authSvc, err := auth.NewService(auth.Config{
		Store:           auth.NewPGStore(pool),
		Secret:          cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		Issuer:          cfg.JWTIssuer,
		Audience:        cfg.JWTAudience,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("auth service")
	}
	userSvc := &user.Service{Store: user.NewPGStore(pool)}
	catalogSvc := &catalog.Service{Store: catalog.NewPGStore(pool)}
	quoter, err := shipping.NewFlatRate(cfg.ShippingFlatFee, cfg.ShippingFreeThreshold)
	if err != nil {
		logger.Fatal().Err(err).Msg("shipping")
	}
	voucherSvc := &voucher.Service{Store: voucher.NewPGStore(pool), Shipping: quoter, TaxBPS: cfg.TaxRateBPS}

	var customerID uuid.UUID
	for _, a := range accounts {
		id, err := seedAccount(ctx, authSvc, userSvc, a)
		if err != nil {
			logger.Fatal().Err(err).Str("email", a.email).Msg("seed account")
		}
		if a.role == common.RoleUser {
			customerID = id
		}
		logger.Info().Str("email", a.email).Str("role", a.role).Msg("account ready")
	}

	for _, p := range products {
		created, err := catalogSvc.Create(ctx, p)
		if skipConflict(logger, err, p.SKU) {
			continue
		}
		if err != nil {
			logger.Fatal().Err(err).Str("sku", p.SKU).Msg("seed product")
		}
		logger.Info().Str("sku", p.SKU).Stringer("id", created.ID).Msg("product created")
	}

	now := time.Now().UTC()
	for _, in := range demoVouchers(now) {
		v, err := voucherSvc.Create(ctx, in)
		if skipConflict(logger, err, in.Code) {
			continue
		}
		if err != nil {
			logger.Fatal().Err(err).Str("code", in.Code).Msg("seed voucher")
		}
		if _, err := voucherSvc.Assign(ctx, v.ID, customerID); err != nil && !skipConflict(logger, err, in.Code) {
			logger.Fatal().Err(err).Str("code", in.Code).Msg("assign voucher")
		}
		logger.Info().Str("code", v.Code).Msg("voucher created")
	}

	existing, err := userSvc.Addresses(ctx, customerID)
	if err != nil {
		logger.Fatal().Err(err).Msg("list addresses")
	}
	if len(existing) > 0 {
		logger.Info().Msg("seed completed")
		return
	}
	_, err = userSvc.AddAddress(ctx, customerID, user.AddressInput{
		ReceiverName:  "Demo Customer",
		ReceiverPhone: "0901234567",
		Street:        "12 Nguyen Hue",
		Ward:          "Ben Nghe",
		District:      "District 1",
		Province:      "Ho Chi Minh",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed address")
	}
	logger.Info().Msg("seed completed")
}

// seedAccount registers the account or, when it already exists, logs in to
// recover its id. The role is reapplied either way.
func seedAccount(ctx context.Context, authSvc *auth.Service, userSvc *user.Service, a account) (uuid.UUID, error) {
	res, err := authSvc.Register(ctx, auth.RegisterInput{Email: a.email, Password: seedPassword, FullName: a.name}, "seed", "127.0.0.1")
	if isConflict(err) {
		res, err = authSvc.Login(ctx, a.email, seedPassword, "seed", "127.0.0.1")
	}
	if err != nil {
		return uuid.Nil, err
	}
	if res.User == nil {
		return uuid.Nil, errors.New("auth returned no user")
	}
	id, err := uuid.Parse(res.User.ID)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := userSvc.UpdateRole(ctx, id, user.UpdateRoleInput{Role: a.role}); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func demoVouchers(now time.Time) []voucher.CreateInput {
	until := now.AddDate(0, 3, 0)
	perUser := int32(1)
	return []voucher.CreateInput{
		{
			Code: "WELCOME10", Description: "10% off your first order", Type: string(voucher.KindPercentage),
			Value: decimal.NewFromInt(10), MaxDiscountAmount: decPtr(100000),
			ValidFrom: now, ValidTo: until, UsageLimitPerUser: &perUser,
		},
		{
			Code: "SAVE50K", Description: "50,000 off orders above 500,000", Type: string(voucher.KindFixedAmount),
			Value: decimal.NewFromInt(50000), MinOrderValue: decPtr(500000),
			ValidFrom: now, ValidTo: until,
		},
		{
			Code: "FREESHIP", Description: "Free shipping", Type: string(voucher.KindFreeShipping),
			ValidFrom: now, ValidTo: until,
		},
	}
}

func isConflict(err error) bool {
	var appErr *common.AppError
	return errors.As(err, &appErr) && appErr.HTTPStatus == http.StatusConflict
}

func skipConflict(logger zerolog.Logger, err error, key string) bool {
	if !isConflict(err) {
		return false
	}
	logger.Info().Str("key", key).Msg("already seeded")
	return true
}

func strPtr(s string) *string { return &s }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}
