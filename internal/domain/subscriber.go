package domain

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Subscriber is one push registration: where the user is, which zone their
// clock runs in, and the local time they want the daily message. The engine
// treats it as read-only input per tick; persistence owns the rest of its
// lifecycle.
type Subscriber struct {
	ID       string  `db:"id" json:"id"`
	Token    string  `db:"token" json:"token" validate:"required"`
	Lat      float64 `db:"lat" json:"lat" validate:"gte=-90,lte=90"`
	Lon      float64 `db:"lon" json:"lon" validate:"gte=-180,lte=180"`
	Timezone string  `db:"timezone" json:"timezone" validate:"required,timezone"`
	Hour     int     `db:"hour" json:"hour" validate:"gte=0,lte=23"`
	Minute   int     `db:"minute" json:"minute" validate:"gte=0,lte=59"`
}

// Validate checks the record and assigns a fresh ID when the client did not
// supply one. Failures wrap ErrInvalidSubscriber.
func (s *Subscriber) Validate() error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSubscriber, err)
	}
	return nil
}

// Coordinate returns the subscriber's location.
func (s Subscriber) Coordinate() Coordinate {
	return Coordinate{Lat: s.Lat, Lon: s.Lon}
}

// Location resolves the subscriber's IANA timezone.
func (s Subscriber) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidSubscriber, s.Timezone, err)
	}
	return loc, nil
}
