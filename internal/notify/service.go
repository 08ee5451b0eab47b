// Package notify keeps the per-user in-app notification inbox and fills it from domain events.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/db"
)

var errNotificationNotFound = common.NotFound("NOTIFICATION_NOT_FOUND", "notification not found")

// Store defines the persistence operations required for the inbox.
type Store interface {
	CreateNotification(ctx context.Context, arg db.CreateNotificationParams) (db.Notification, error)
	ListNotifications(ctx context.Context, arg db.ListNotificationsParams) ([]db.Notification, error)
	CountNotifications(ctx context.Context, userID uuid.UUID) (db.CountNotificationsRow, error)
	MarkNotificationRead(ctx context.Context, arg db.MarkNotificationReadParams) (db.Notification, error)
}

// NewStore returns a Store backed by the generated queries.
func NewStore(q *db.Queries) Store {
	if q == nil {
		return nil
	}
	return q
}

// Notification is the API shape of an inbox entry.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	ActionURL *string    `json:"action_url,omitempty"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Inbox is one page of notifications with counters.
type Inbox struct {
	Items  []Notification `json:"items"`
	Total  int64          `json:"total"`
	Unread int64          `json:"unread"`
}

// Service serves the inbox.
type Service struct {
	Store Store
	Now   func() time.Time
}

// List returns a page of the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, page, perPage int) (Inbox, error) {
	if err := s.ready(); err != nil {
		return Inbox{}, err
	}
	rows, err := s.Store.ListNotifications(ctx, db.ListNotificationsParams{
		UserID: userID,
		Limit:  int32(perPage),
		Offset: int32(common.Offset(page, perPage)),
	})
	if err != nil {
		return Inbox{}, err
	}
	counts, err := s.Store.CountNotifications(ctx, userID)
	if err != nil {
		return Inbox{}, err
	}
	inbox := Inbox{Items: make([]Notification, 0, len(rows)), Total: counts.Total, Unread: counts.Unread}
	for _, row := range rows {
		inbox.Items = append(inbox.Items, toNotification(row))
	}
	return inbox, nil
}

// MarkRead flags a notification as read. Marking twice keeps the first read time.
func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) (Notification, error) {
	if err := s.ready(); err != nil {
		return Notification{}, err
	}
	row, err := s.Store.MarkNotificationRead(ctx, db.MarkNotificationReadParams{ID: id, UserID: userID, ReadAt: s.now()})
	if err != nil {
		if db.IsNotFound(err) {
			return Notification{}, errNotificationNotFound
		}
		return Notification{}, err
	}
	return toNotification(row), nil
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("notification service not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func toNotification(n db.Notification) Notification {
	out := Notification{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Content:   n.Content,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
	if n.ActionUrl.Valid {
		u := n.ActionUrl.String
		out.ActionURL = &u
	}
	if n.ReadAt.Valid {
		t := n.ReadAt.Time
		out.ReadAt = &t
	}
	return out
}

func actionURL(path string) pgtype.Text {
	if path == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: path, Valid: true}
}
