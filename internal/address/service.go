// Package address resolves stored address ids into courier locations.
package address

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/courier"
	"github.com/forkfleet/forkfleet-backend/pkg/db/models"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/maps"
)

// PlaceResolver geocodes a place id. *maps.Client satisfies it.
type PlaceResolver interface {
	ResolvePlace(ctx context.Context, placeID string) (*maps.PlaceDetails, error)
}

// Resolver is the address collaborator used by rate shopping and booking.
type Resolver interface {
	Resolve(ctx context.Context, addressID uuid.UUID) (*Resolved, error)
}

// Resolved is a stored address with coordinates filled in.
type Resolved struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Location courier.Location
}

type service struct {
	db     *gorm.DB
	places PlaceResolver
}

// NewResolver reads the addresses table; places may be nil when no geocoder
// is configured, in which case addresses without coordinates are rejected.
func NewResolver(conn *gorm.DB, places PlaceResolver) Resolver {
	return &service{db: conn, places: places}
}

func (s *service) Resolve(ctx context.Context, addressID uuid.UUID) (*Resolved, error) {
	if addressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address id is required")
	}
	var row models.Address
	if err := s.db.WithContext(ctx).Where("id = ?", addressID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load address")
	}

	loc := courier.Location{
		Line1:      row.Line1,
		City:       row.City,
		Region:     row.Region,
		PostalCode: row.PostalCode,
		Country:    row.Country,
	}
	if row.Lat != nil && row.Lng != nil {
		loc.Lat, loc.Lng = *row.Lat, *row.Lng
		return &Resolved{ID: row.ID, UserID: row.UserID, Location: loc}, nil
	}

	placeID := ""
	if row.PlaceID != nil {
		placeID = strings.TrimSpace(*row.PlaceID)
	}
	if placeID == "" || s.places == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address has no coordinates")
	}
	details, err := s.places.ResolvePlace(ctx, placeID)
	if err != nil {
		return nil, err
	}
	if details.Location.Latitude == 0 && details.Location.Longitude == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "place location missing")
	}
	loc.Lat, loc.Lng = details.Location.Latitude, details.Location.Longitude
	if loc.PostalCode == "" {
		loc.PostalCode = details.Component("postal_code")
	}
	if loc.Region == "" {
		loc.Region = details.ShortComponent("administrative_area_level_1")
	}
	return &Resolved{ID: row.ID, UserID: row.UserID, Location: loc}, nil
}
