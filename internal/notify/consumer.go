package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/storefront-api/internal/db"
	"github.com/noah-isme/storefront-api/internal/events"
	"github.com/noah-isme/storefront-api/internal/obs"
	"github.com/noah-isme/storefront-api/internal/voucher"
)

const defaultSeenTTL = 24 * time.Hour

// Consumer turns domain events into inbox entries for the event's user. It implements
// events.Consumer.
type Consumer struct {
	Store Store
	// Redis remembers processed event ids so a retried task does not notify twice. Optional.
	Redis   redis.Cmdable
	SeenTTL time.Duration
}

func (Consumer) Name() string { return "notify" }

// Deliver writes the notification for ev. Unknown topics and events without a user are ignored.
func (c Consumer) Deliver(ctx context.Context, ev events.Event) error {
	if c.Store == nil || ev.UserID == uuid.Nil {
		return nil
	}
	msg, ok, err := render(ev)
	if err != nil {
		obs.Logger(ctx).Warn().Err(err).Str("topic", ev.Topic).Str("event_id", ev.ID.String()).Msg("notify_payload_invalid")
		return nil
	}
	if !ok {
		return nil
	}

	seenKey := "notify:event:" + ev.ID.String()
	if c.Redis != nil {
		ttl := c.SeenTTL
		if ttl <= 0 {
			ttl = defaultSeenTTL
		}
		first, err := c.Redis.SetNX(ctx, seenKey, 1, ttl).Result()
		if err != nil {
			return fmt.Errorf("notify: mark event: %w", err)
		}
		if !first {
			return nil
		}
	}
	_, err = c.Store.CreateNotification(ctx, db.CreateNotificationParams{
		UserID:    ev.UserID,
		Type:      ev.Topic,
		Title:     msg.title,
		Content:   msg.content,
		ActionUrl: actionURL(msg.action),
	})
	if err != nil {
		if c.Redis != nil {
			_ = c.Redis.Del(ctx, seenKey).Err()
		}
		return fmt.Errorf("notify: create notification: %w", err)
	}
	return nil
}

type message struct {
	title   string
	content string
	action  string
}

func render(ev events.Event) (message, bool, error) {
	switch ev.Topic {
	case events.TopicOrderCreated:
		var p events.OrderCreated
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return message{}, false, err
		}
		return message{
			title:   "Order placed",
			content: fmt.Sprintf("Your order %s totalling %s has been placed.", p.OrderNumber, voucher.FormatAmount(p.Total)),
			action:  "/orders/" + p.OrderID.String(),
		}, true, nil
	case events.TopicOrderStatusChanged:
		var p events.OrderStatusChanged
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return message{}, false, err
		}
		return message{
			title:   "Order updated",
			content: fmt.Sprintf("Order %s is now %s.", p.OrderNumber, p.To),
			action:  "/orders/" + p.OrderID.String(),
		}, true, nil
	case events.TopicVoucherAssigned:
		var p events.VoucherAssigned
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return message{}, false, err
		}
		return message{
			title:   "New voucher",
			content: fmt.Sprintf("You received voucher %s, valid until %s.", p.Code, p.ValidTo.Format("2006-01-02")),
			action:  "/users/vouchers",
		}, true, nil
	case events.TopicVoucherRedeemed:
		var p events.VoucherRedeemed
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return message{}, false, err
		}
		return message{
			title:   "Voucher applied",
			content: fmt.Sprintf("Voucher %s saved you %s.", p.Code, voucher.FormatAmount(p.Discount)),
			action:  "/orders/" + p.OrderID.String(),
		}, true, nil
	case events.TopicWishlistAdded, events.TopicWishlistRemoved:
		var p events.WishlistChanged
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return message{}, false, err
		}
		verb := "added to"
		if ev.Topic == events.TopicWishlistRemoved {
			verb = "removed from"
		}
		return message{
			title:   "Wishlist updated",
			content: fmt.Sprintf("%s was %s your wishlist.", p.ProductName, verb),
			action:  "/wishlists",
		}, true, nil
	default:
		return message{}, false, nil
	}
}
