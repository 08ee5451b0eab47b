package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Topic constants for domain events emitted by the storefront.
const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
	TopicVoucherAssigned    = "voucher.assigned"
	TopicVoucherRedeemed    = "voucher.redeemed"
	TopicWishlistAdded      = "wishlist.added"
	TopicWishlistRemoved    = "wishlist.removed"
)

// DefaultTopics returns the topics that produce an in-app notification.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderStatusChanged,
		TopicVoucherAssigned,
		TopicVoucherRedeemed,
		TopicWishlistAdded,
		TopicWishlistRemoved,
	}
}

// OrderCreated is the payload of TopicOrderCreated.
type OrderCreated struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Total       decimal.Decimal `json:"total"`
	VoucherCode string          `json:"voucher_code,omitempty"`
}

// OrderStatusChanged is the payload of TopicOrderStatusChanged.
type OrderStatusChanged struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	From        string    `json:"from"`
	To          string    `json:"to"`
}

// VoucherAssigned is the payload of TopicVoucherAssigned.
type VoucherAssigned struct {
	VoucherID    uuid.UUID `json:"voucher_id"`
	AssignmentID uuid.UUID `json:"assignment_id"`
	Code         string    `json:"code"`
	ValidTo      time.Time `json:"valid_to"`
}

// VoucherRedeemed is the payload of TopicVoucherRedeemed.
type VoucherRedeemed struct {
	VoucherID uuid.UUID       `json:"voucher_id"`
	OrderID   uuid.UUID       `json:"order_id"`
	Code      string          `json:"code"`
	Discount  decimal.Decimal `json:"discount"`
}

// WishlistChanged is the payload of TopicWishlistAdded and TopicWishlistRemoved.
type WishlistChanged struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
}
