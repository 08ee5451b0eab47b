package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type User struct {
	ID                 uuid.UUID
	Email              string
	PasswordHash       string
	FullName           string
	PhoneNumber        pgtype.Text
	Gender             pgtype.Text
	DateOfBirth        pgtype.Date
	AvatarUrl          pgtype.Text
	Role               string
	RegistrationSource string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Session struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	RefreshToken string
	UserAgent    pgtype.Text
	Ip           pgtype.Text
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

type UserRankRow struct {
	UserID          uuid.UUID
	Points          int32
	RankLevelID     uuid.UUID
	RankName        string
	MinPoints       int32
	DiscountPercent decimal.Decimal
	UpdatedAt       time.Time
}

type Address struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	ReceiverName  string
	ReceiverPhone string
	Street        string
	Ward          string
	District      string
	Province      string
	Latitude      pgtype.Float8
	Longitude     pgtype.Float8
	IsDefault     bool
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Product struct {
	ID            uuid.UUID
	Name          string
	Description   string
	Sku           string
	BrandID       uuid.NullUUID
	TypeID        uuid.NullUUID
	ImageUrls     []string
	AverageRating decimal.Decimal
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProductRow is a product joined with its brand, type and current price.
type ProductRow struct {
	Product
	BrandName    pgtype.Text
	TypeName     pgtype.Text
	CurrentPrice decimal.NullDecimal
}

type ProductPrice struct {
	ID            uuid.UUID
	ProductID     uuid.UUID
	Price         decimal.Decimal
	EffectiveDate time.Time
	EndDate       pgtype.Timestamptz
	IsActive      bool
}

type ProductVariant struct {
	ID              uuid.UUID
	ProductID       uuid.UUID
	Sku             string
	Color           pgtype.Text
	Size            pgtype.Text
	AdditionalPrice decimal.Decimal
	Stock           int32
	IsActive        bool
}

type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CartItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	VariantID uuid.NullUUID
	Quantity  int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartLine is a cart item with the unit price resolved from price history and variant surcharge.
// UnitPrice is NULL when the product has no current price.
type CartLine struct {
	ID              uuid.UUID
	CartID          uuid.UUID
	ProductID       uuid.UUID
	VariantID       uuid.NullUUID
	Quantity        int32
	ProductName     string
	ProductActive   bool
	Color           pgtype.Text
	Size            pgtype.Text
	AdditionalPrice decimal.Decimal
	UnitPrice       decimal.NullDecimal
}

type Voucher struct {
	ID                uuid.UUID
	Code              string
	Description       string
	Kind              string
	Value             decimal.Decimal
	MinOrderValue     decimal.NullDecimal
	MaxDiscountAmount decimal.NullDecimal
	ValidFrom         time.Time
	ValidTo           time.Time
	IsActive          bool
	UsageLimit        pgtype.Int4
	UsageLimitPerUser pgtype.Int4
	UsedCount         int32
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type UserVoucher struct {
	ID         uuid.UUID
	VoucherID  uuid.UUID
	UserID     uuid.UUID
	IsUsed     bool
	AssignedAt time.Time
	UsedAt     pgtype.Timestamptz
}

// UserVoucherRow pairs an open assignment with its voucher.
type UserVoucherRow struct {
	Assignment UserVoucher
	Voucher    Voucher
}

type Order struct {
	ID             uuid.UUID
	OrderNumber    string
	UserID         uuid.UUID
	AddressID      uuid.NullUUID
	CartID         uuid.NullUUID
	Status         string
	PaymentMethod  string
	PaymentStatus  string
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingFee    decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
	VoucherID      uuid.NullUUID
	Notes          pgtype.Text
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	VariantID   uuid.NullUUID
	ProductName string
	Quantity    int32
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

type OrderStatusHistory struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	FromStatus pgtype.Text
	ToStatus   string
	Note       pgtype.Text
	ChangedBy  uuid.NullUUID
	CreatedAt  time.Time
}

type Wishlist struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ProductID uuid.UUID
	CreatedAt time.Time
}

// WishlistRow is a wishlist entry joined with product details.
type WishlistRow struct {
	Wishlist
	ProductName   string
	ProductActive bool
	CurrentPrice  decimal.NullDecimal
}

type Notification struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Type        string
	Title       string
	Content     string
	ActionUrl   pgtype.Text
	IsRead      bool
	ReadAt      pgtype.Timestamptz
	IsDismissed bool
	CreatedAt   time.Time
}

type AuditLog struct {
	ID           uuid.UUID
	ActorKind    string
	ActorUserID  uuid.NullUUID
	Action       string
	ResourceType string
	ResourceID   pgtype.Text
	Method       string
	Path         string
	Route        pgtype.Text
	Status       int32
	Ip           pgtype.Text
	UserAgent    pgtype.Text
	RequestID    pgtype.Text
	Metadata     []byte
	CreatedAt    time.Time
}
