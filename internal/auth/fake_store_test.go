package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/storefront-api/internal/db"
)

type fakeStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]db.User
	sessions map[string]db.Session
	ranks    map[uuid.UUID]bool
	failRank bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[uuid.UUID]db.User),
		sessions: make(map[string]db.Session),
		ranks:    make(map[uuid.UUID]bool),
	}
}

// WithinTx snapshots the maps and restores them when fn fails.
func (f *fakeStore) WithinTx(_ context.Context, fn func(Queries) error) error {
	f.mu.Lock()
	users := make(map[uuid.UUID]db.User, len(f.users))
	for k, v := range f.users {
		users[k] = v
	}
	ranks := make(map[uuid.UUID]bool, len(f.ranks))
	for k, v := range f.ranks {
		ranks[k] = v
	}
	f.mu.Unlock()
	if err := fn(f); err != nil {
		f.mu.Lock()
		f.users, f.ranks = users, ranks
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) CreateUser(_ context.Context, arg db.CreateUserParams) (db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == arg.Email {
			return db.User{}, &pgconn.PgError{Code: "23505"}
		}
	}
	now := time.Now()
	u := db.User{
		ID:                 uuid.New(),
		Email:              arg.Email,
		PasswordHash:       arg.PasswordHash,
		FullName:           arg.FullName,
		PhoneNumber:        arg.PhoneNumber,
		Role:               "user",
		RegistrationSource: arg.RegistrationSource,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return db.User{}, pgx.ErrNoRows
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

func (f *fakeStore) CreateUserRank(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRank {
		return context.DeadlineExceeded
	}
	f.ranks[userID] = true
	return nil
}

func (f *fakeStore) CreateSession(_ context.Context, arg db.CreateSessionParams) (db.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := db.Session{
		ID:           uuid.New(),
		UserID:       arg.UserID,
		RefreshToken: arg.RefreshToken,
		UserAgent:    arg.UserAgent,
		Ip:           arg.Ip,
		ExpiresAt:    arg.ExpiresAt,
		CreatedAt:    time.Now(),
	}
	f.sessions[arg.RefreshToken] = s
	return s, nil
}

func (f *fakeStore) GetSessionByToken(_ context.Context, token string) (db.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return db.Session{}, pgx.ErrNoRows
	}
	return s, nil
}

func (f *fakeStore) UpdateSessionToken(_ context.Context, arg db.UpdateSessionTokenParams) (db.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for token, s := range f.sessions {
		if s.ID == arg.ID {
			delete(f.sessions, token)
			s.RefreshToken = arg.RefreshToken
			s.ExpiresAt = arg.ExpiresAt
			f.sessions[arg.RefreshToken] = s
			return s, nil
		}
	}
	return db.Session{}, pgx.ErrNoRows
}

func (f *fakeStore) DeleteSessionByToken(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, token)
	return nil
}

func (f *fakeStore) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}
