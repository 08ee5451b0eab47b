// Package wishlist keeps the products a user has saved for later.
package wishlist

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-api/internal/audit"
	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/db"
	"github.com/noah-isme/storefront-api/internal/events"
)

var (
	errProductNotFound = common.NotFound("PRODUCT_NOT_FOUND", "product not found")
	errEntryNotFound   = common.NotFound("WISHLIST_NOT_FOUND", "wishlist entry not found")
)

// Store defines the persistence operations required for wishlists.
type Store interface {
	ListWishlist(ctx context.Context, userID uuid.UUID) ([]db.WishlistRow, error)
	ListAllWishlists(ctx context.Context, arg db.ListAllWishlistsParams) ([]db.WishlistRow, error)
	CountAllWishlists(ctx context.Context) (int64, error)
	AddWishlist(ctx context.Context, arg db.AddWishlistParams) (db.Wishlist, error)
	DeleteWishlist(ctx context.Context, arg db.DeleteWishlistParams) (db.Wishlist, error)
	GetProduct(ctx context.Context, id uuid.UUID) (db.ProductRow, error)
}

// NewStore returns a Store backed by the generated queries.
func NewStore(q *db.Queries) Store {
	if q == nil {
		return nil
	}
	return q
}

// Entry is the API shape of a wishlist item.
type Entry struct {
	ID            uuid.UUID        `json:"id"`
	UserID        uuid.UUID        `json:"user_id"`
	ProductID     uuid.UUID        `json:"product_id"`
	ProductName   string           `json:"product_name"`
	ProductActive bool             `json:"product_active"`
	Price         *decimal.Decimal `json:"price"`
	CreatedAt     time.Time        `json:"created_at"`
}

// AddInput is the payload of POST /wishlists.
type AddInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
}

// Service manages wishlists.
type Service struct {
	Store  Store
	Audit  *audit.Service
	Events events.Emitter
}

// List returns the user's wishlist, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Entry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.Store.ListWishlist(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

// ListAll returns a page of every user's wishlist entries.
func (s *Service) ListAll(ctx context.Context, page, perPage int) ([]Entry, int64, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	rows, err := s.Store.ListAllWishlists(ctx, db.ListAllWishlistsParams{
		Limit:  int32(perPage),
		Offset: int32(common.Offset(page, perPage)),
	})
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Store.CountAllWishlists(ctx)
	if err != nil {
		return nil, 0, err
	}
	return toEntries(rows), total, nil
}

// Add saves an active product to the user's wishlist. A product can be saved once.
func (s *Service) Add(ctx context.Context, userID uuid.UUID, in AddInput) (Entry, error) {
	if err := s.ready(); err != nil {
		return Entry{}, err
	}
	product, err := s.Store.GetProduct(ctx, in.ProductID)
	if err != nil {
		if db.IsNotFound(err) {
			return Entry{}, errProductNotFound
		}
		return Entry{}, err
	}
	if !product.IsActive {
		return Entry{}, errProductNotFound
	}
	row, err := s.Store.AddWishlist(ctx, db.AddWishlistParams{UserID: userID, ProductID: in.ProductID})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Entry{}, common.Conflict("WISHLIST_EXISTS", "product is already in the wishlist", err)
		}
		return Entry{}, err
	}

	entry := toEntry(db.WishlistRow{Wishlist: row, ProductName: product.Name, ProductActive: true, CurrentPrice: product.CurrentPrice})
	s.Audit.RecordAsync(ctx, audit.Entry{
		Action:       "ADD_WISHLIST",
		ResourceType: "wishlists",
		ResourceID:   row.ID.String(),
		Status:       http.StatusCreated,
		New:          map[string]string{"product_id": in.ProductID.String()},
	})
	events.EmitAfterCommit(ctx, s.Events, events.TopicWishlistAdded, row.ID, userID, events.WishlistChanged{
		ProductID:   product.ID,
		ProductName: product.Name,
	})
	return entry, nil
}

// Remove deletes an entry the user owns.
func (s *Service) Remove(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	row, err := s.Store.DeleteWishlist(ctx, db.DeleteWishlistParams{ID: id, UserID: userID})
	if err != nil {
		if db.IsNotFound(err) {
			return errEntryNotFound
		}
		return err
	}

	payload := events.WishlistChanged{ProductID: row.ProductID}
	if product, err := s.Store.GetProduct(ctx, row.ProductID); err == nil {
		payload.ProductName = product.Name
	}
	s.Audit.RecordAsync(ctx, audit.Entry{
		Action:       "REMOVE_WISHLIST",
		ResourceType: "wishlists",
		ResourceID:   row.ID.String(),
		Old:          map[string]string{"product_id": row.ProductID.String()},
	})
	events.EmitAfterCommit(ctx, s.Events, events.TopicWishlistRemoved, row.ID, userID, payload)
	return nil
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("wishlist service not configured")
	}
	return nil
}

func toEntries(rows []db.WishlistRow) []Entry {
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toEntry(row))
	}
	return out
}

func toEntry(row db.WishlistRow) Entry {
	out := Entry{
		ID:            row.ID,
		UserID:        row.UserID,
		ProductID:     row.ProductID,
		ProductName:   row.ProductName,
		ProductActive: row.ProductActive,
		CreatedAt:     row.CreatedAt,
	}
	if row.CurrentPrice.Valid {
		p := row.CurrentPrice.Decimal
		out.Price = &p
	}
	return out
}
