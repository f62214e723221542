package model

import "time"

// Movie is a film that showtimes are scheduled for.
type Movie struct {
	ID          uint64    `json:"id"`
	Title       string    `json:"title"`
	DurationMin int       `json:"duration_min"`
	Rating      string    `json:"rating"`
	CreatedAt   time.Time `json:"created_at"`
}
