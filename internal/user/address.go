package user

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/db"
)

// Address is the API shape of an address book entry.
type Address struct {
	ID            uuid.UUID `json:"id"`
	ReceiverName  string    `json:"receiver_name"`
	ReceiverPhone string    `json:"receiver_phone"`
	Street        string    `json:"street"`
	Ward          string    `json:"ward"`
	District      string    `json:"district"`
	Province      string    `json:"province"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
	IsDefault     bool      `json:"is_default"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AddressInput is the payload for a new address.
type AddressInput struct {
	ReceiverName  string   `json:"receiver_name" validate:"required,max=255"`
	ReceiverPhone string   `json:"receiver_phone" validate:"required,vnphone"`
	Street        string   `json:"street" validate:"required,max=255"`
	Ward          string   `json:"ward" validate:"required,max=100"`
	District      string   `json:"district" validate:"required,max=100"`
	Province      string   `json:"province" validate:"required,max=100"`
	Latitude      *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude     *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	IsDefault     bool     `json:"is_default"`
}

// UpdateAddressInput changes the provided fields of an address.
type UpdateAddressInput struct {
	ReceiverName  *string  `json:"receiver_name" validate:"omitempty,max=255"`
	ReceiverPhone *string  `json:"receiver_phone" validate:"omitempty,vnphone"`
	Street        *string  `json:"street" validate:"omitempty,max=255"`
	Ward          *string  `json:"ward" validate:"omitempty,max=100"`
	District      *string  `json:"district" validate:"omitempty,max=100"`
	Province      *string  `json:"province" validate:"omitempty,max=100"`
	Latitude      *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude     *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	IsDefault     *bool    `json:"is_default"`
}

// Addresses lists the user's active addresses, default first.
func (s *Service) Addresses(ctx context.Context, userID uuid.UUID) ([]Address, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.Store.ListAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Address, 0, len(rows))
	for _, row := range rows {
		out = append(out, toAddress(row))
	}
	return out, nil
}

// AddAddress stores a new address. The first address of a user becomes the default, and a new
// default replaces the previous one.
func (s *Service) AddAddress(ctx context.Context, userID uuid.UUID, in AddressInput) (Address, error) {
	if err := s.ready(); err != nil {
		return Address{}, err
	}
	params := db.CreateAddressParams{
		UserID:        userID,
		ReceiverName:  common.SanitizeText(in.ReceiverName),
		ReceiverPhone: strings.TrimSpace(in.ReceiverPhone),
		Street:        common.SanitizeText(in.Street),
		Ward:          common.SanitizeText(in.Ward),
		District:      common.SanitizeText(in.District),
		Province:      common.SanitizeText(in.Province),
		Latitude:      float8(in.Latitude),
		Longitude:     float8(in.Longitude),
	}
	if params.ReceiverName == "" || params.Street == "" || params.Ward == "" || params.District == "" || params.Province == "" {
		return Address{}, common.BadRequest("VALIDATION_ERROR", "receiver_name, street, ward, district and province are required")
	}
	if !common.IsPhoneNumber(params.ReceiverPhone) {
		return Address{}, common.BadRequest("VALIDATION_ERROR", "invalid receiver phone")
	}

	var created db.Address
	err := s.Store.WithinTx(ctx, func(q Queries) error {
		count, err := q.CountAddresses(ctx, userID)
		if err != nil {
			return err
		}
		params.IsDefault = in.IsDefault || count == 0
		if params.IsDefault {
			if err := q.ClearDefaultAddress(ctx, userID); err != nil {
				return err
			}
		}
		created, err = q.CreateAddress(ctx, params)
		return err
	})
	if err != nil {
		return Address{}, err
	}
	return toAddress(created), nil
}

// UpdateAddress edits an address the user owns.
func (s *Service) UpdateAddress(ctx context.Context, userID, addressID uuid.UUID, in UpdateAddressInput) (Address, error) {
	if err := s.ready(); err != nil {
		return Address{}, err
	}
	params := db.UpdateAddressParams{
		ID:            addressID,
		UserID:        userID,
		ReceiverName:  text(in.ReceiverName),
		ReceiverPhone: text(in.ReceiverPhone),
		Street:        text(in.Street),
		Ward:          text(in.Ward),
		District:      text(in.District),
		Province:      text(in.Province),
		Latitude:      float8(in.Latitude),
		Longitude:     float8(in.Longitude),
	}
	if in.ReceiverPhone != nil && !common.IsPhoneNumber(params.ReceiverPhone.String) {
		return Address{}, common.BadRequest("VALIDATION_ERROR", "invalid receiver phone")
	}
	if in.IsDefault != nil {
		params.IsDefault = pgtype.Bool{Bool: *in.IsDefault, Valid: true}
	}

	var updated db.Address
	err := s.Store.WithinTx(ctx, func(q Queries) error {
		if _, err := q.GetAddress(ctx, db.GetAddressParams{ID: addressID, UserID: userID}); err != nil {
			if db.IsNotFound(err) {
				return errAddressNotFound
			}
			return err
		}
		if params.IsDefault.Valid && params.IsDefault.Bool {
			if err := q.ClearDefaultAddress(ctx, userID); err != nil {
				return err
			}
		}
		var err error
		updated, err = q.UpdateAddress(ctx, params)
		if db.IsNotFound(err) {
			return errAddressNotFound
		}
		return err
	})
	if err != nil {
		return Address{}, err
	}
	return toAddress(updated), nil
}

// DeleteAddress soft-deletes an address the user owns.
func (s *Service) DeleteAddress(ctx context.Context, userID, addressID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	n, err := s.Store.DeactivateAddress(ctx, db.DeactivateAddressParams{ID: addressID, UserID: userID})
	if err != nil {
		return err
	}
	if n == 0 {
		return errAddressNotFound
	}
	return nil
}

func toAddress(a db.Address) Address {
	out := Address{
		ID:            a.ID,
		ReceiverName:  a.ReceiverName,
		ReceiverPhone: a.ReceiverPhone,
		Street:        a.Street,
		Ward:          a.Ward,
		District:      a.District,
		Province:      a.Province,
		IsDefault:     a.IsDefault,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.Latitude.Valid {
		lat := a.Latitude.Float64
		out.Latitude = &lat
	}
	if a.Longitude.Valid {
		lng := a.Longitude.Float64
		out.Longitude = &lng
	}
	return out
}

func text(v *string) pgtype.Text {
	if v == nil {
		return pgtype.Text{}
	}
	s := common.SanitizeText(*v)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func float8(v *float64) pgtype.Float8 {
	if v == nil {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: *v, Valid: true}
}
