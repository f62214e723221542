package model

import "time"

// Showtime is a scheduled screening of a movie at a cinema hall.
//
// Capacity is the number of seats in the hall for this screening.
// RemainingSeats is what is still bookable, 0 <= RemainingSeats <= Capacity.
// PriceCents is the per-ticket price, copied onto a booking at creation.
type Showtime struct {
	ID             uint64    `json:"id"`
	MovieID        uint64    `json:"movie_id"`
	MovieTitle     string    `json:"movie_title,omitempty"`
	Cinema         string    `json:"cinema"`
	Hall           string    `json:"hall"`
	StartsAt       time.Time `json:"starts_at"`
	Capacity       int       `json:"capacity"`
	RemainingSeats int       `json:"remaining_seats"`
	ScreenType     string    `json:"screen_type"`
	PriceCents     int64     `json:"price_cents"`
	CreatedAt      time.Time `json:"created_at"`
}

// Started reports whether the screening has begun at now.
func (s Showtime) Started(now time.Time) bool {
	return !s.StartsAt.After(now)
}
