package user

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-api/internal/db"
)

type fakeStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]db.User
	ranks     map[uuid.UUID]db.UserRankRow
	addresses []db.Address
	clock     time.Time

	failCreate error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[uuid.UUID]db.User),
		ranks: make(map[uuid.UUID]db.UserRankRow),
		clock: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func (f *fakeStore) addUser(email string) db.User {
	u := db.User{ID: uuid.New(), Email: email, FullName: "Test User", Role: "user", CreatedAt: f.tick(), UpdatedAt: f.clock}
	f.users[u.ID] = u
	f.ranks[u.ID] = db.UserRankRow{UserID: u.ID, RankName: "Bronze", DiscountPercent: decimal.Zero, UpdatedAt: f.clock}
	return u
}

func (f *fakeStore) WithinTx(_ context.Context, fn func(Queries) error) error {
	f.mu.Lock()
	addresses := append([]db.Address(nil), f.addresses...)
	f.mu.Unlock()
	if err := fn(f); err != nil {
		f.mu.Lock()
		f.addresses = addresses
		f.mu.Unlock()
		return err
	}
	return nil
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

func (f *fakeStore) UpdateUserProfile(_ context.Context, arg db.UpdateUserProfileParams) (db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[arg.ID]
	if !ok {
		return db.User{}, pgx.ErrNoRows
	}
	if arg.FullName.Valid {
		u.FullName = arg.FullName.String
	}
	if arg.PhoneNumber.Valid {
		u.PhoneNumber = arg.PhoneNumber
	}
	if arg.Gender.Valid {
		u.Gender = arg.Gender
	}
	if arg.DateOfBirth.Valid {
		u.DateOfBirth = arg.DateOfBirth
	}
	if arg.AvatarUrl.Valid {
		u.AvatarUrl = arg.AvatarUrl
	}
	u.UpdatedAt = f.tick()
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) ListUsers(_ context.Context, arg db.ListUsersParams) ([]db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]db.User, 0, len(f.users))
	for _, u := range f.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start := int(arg.Offset)
	if start > len(all) {
		return nil, nil
	}
	end := start + int(arg.Limit)
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (f *fakeStore) CountUsers(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.users)), nil
}

func (f *fakeStore) UpdateUserRole(_ context.Context, arg db.UpdateUserRoleParams) (db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[arg.ID]
	if !ok {
		return db.User{}, pgx.ErrNoRows
	}
	u.Role = arg.Role
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) GetUserRank(_ context.Context, userID uuid.UUID) (db.UserRankRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.ranks[userID]
	if !ok {
		return db.UserRankRow{}, pgx.ErrNoRows
	}
	return r, nil
}

func (f *fakeStore) ListAddresses(_ context.Context, userID uuid.UUID) ([]db.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.Address
	for _, a := range f.addresses {
		if a.UserID == userID && a.IsActive {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeStore) GetAddress(_ context.Context, arg db.GetAddressParams) (db.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.addresses {
		if a.ID == arg.ID && a.UserID == arg.UserID && a.IsActive {
			return a, nil
		}
	}
	return db.Address{}, pgx.ErrNoRows
}

func (f *fakeStore) CountAddresses(_ context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.addresses {
		if a.UserID == userID && a.IsActive {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateAddress(_ context.Context, arg db.CreateAddressParams) (db.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return db.Address{}, f.failCreate
	}
	now := f.tick()
	a := db.Address{
		ID:            uuid.New(),
		UserID:        arg.UserID,
		ReceiverName:  arg.ReceiverName,
		ReceiverPhone: arg.ReceiverPhone,
		Street:        arg.Street,
		Ward:          arg.Ward,
		District:      arg.District,
		Province:      arg.Province,
		Latitude:      arg.Latitude,
		Longitude:     arg.Longitude,
		IsDefault:     arg.IsDefault,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	f.addresses = append(f.addresses, a)
	return a, nil
}

func (f *fakeStore) UpdateAddress(_ context.Context, arg db.UpdateAddressParams) (db.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.addresses {
		if a.ID != arg.ID || a.UserID != arg.UserID || !a.IsActive {
			continue
		}
		if arg.ReceiverName.Valid {
			a.ReceiverName = arg.ReceiverName.String
		}
		if arg.ReceiverPhone.Valid {
			a.ReceiverPhone = arg.ReceiverPhone.String
		}
		if arg.Street.Valid {
			a.Street = arg.Street.String
		}
		if arg.Province.Valid {
			a.Province = arg.Province.String
		}
		if arg.IsDefault.Valid {
			a.IsDefault = arg.IsDefault.Bool
		}
		a.UpdatedAt = f.tick()
		f.addresses[i] = a
		return a, nil
	}
	return db.Address{}, pgx.ErrNoRows
}

func (f *fakeStore) ClearDefaultAddress(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.addresses {
		if a.UserID == userID {
			f.addresses[i].IsDefault = false
		}
	}
	return nil
}

func (f *fakeStore) DeactivateAddress(_ context.Context, arg db.DeactivateAddressParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.addresses {
		if a.ID == arg.ID && a.UserID == arg.UserID && a.IsActive {
			f.addresses[i].IsActive = false
			f.addresses[i].IsDefault = false
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeStore) defaults(userID uuid.UUID) int {
	n := 0
	for _, a := range f.addresses {
		if a.UserID == userID && a.IsActive && a.IsDefault {
			n++
		}
	}
	return n
}
