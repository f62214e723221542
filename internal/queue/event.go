// Package queue carries booking lifecycle events over RabbitMQ: the
// publisher used by the booking service and the consumer that appends each
// event to logs/booking.log.
package queue

import (
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// Queue names. Each is durable and bound to the default exchange.
const (
	BookingConfirmed = "booking.confirmed"
	BookingPending   = "booking.pending"
	BookingCancelled = "booking.cancelled"
)

// Queues lists every queue the consumer listens on.
var Queues = []string{BookingConfirmed, BookingPending, BookingCancelled}

// BookingEvent is the payload of every booking queue. It carries enough for
// downstream consumers to log or notify without querying the database.
type BookingEvent struct {
	Type            string   `json:"type"`
	BookingID       uint64   `json:"booking_id"`
	Reference       string   `json:"booking_reference"`
	UserID          uint64   `json:"user_id,omitempty"`
	ShowtimeID      uint64   `json:"showtime_id"`
	MovieTitle      string   `json:"movie_title,omitempty"`
	Cinema          string   `json:"cinema,omitempty"`
	Hall            string   `json:"hall,omitempty"`
	StartsAt        string   `json:"starts_at,omitempty"`
	Tickets         int      `json:"number_of_tickets"`
	SeatNumbers     []string `json:"seat_numbers,omitempty"`
	TotalPriceCents int64    `json:"total_price_cents"`
	Status          string   `json:"booking_status"`
	PaymentMethod   string   `json:"payment_method"`
	CustomerEmail   string   `json:"customer_email"`
	OccurredAt      string   `json:"occurred_at"`
}

// QueueFor picks the queue matching a booking status.
func QueueFor(status string) string {
	switch status {
	case model.BookingPending:
		return BookingPending
	case model.BookingCancelled:
		return BookingCancelled
	}
	return BookingConfirmed
}

// NewBookingEvent snapshots b, and s when known, into an event for the
// queue matching b's status.
func NewBookingEvent(b model.Booking, s *model.Showtime, at time.Time) BookingEvent {
	ev := BookingEvent{
		Type:            QueueFor(b.Status),
		BookingID:       b.ID,
		Reference:       b.Reference,
		ShowtimeID:      b.ShowtimeID,
		Tickets:         b.Tickets,
		SeatNumbers:     b.SeatNumbers,
		TotalPriceCents: b.TotalPriceCents,
		Status:          b.Status,
		PaymentMethod:   b.PaymentMethod,
		CustomerEmail:   b.CustomerEmail,
		OccurredAt:      at.UTC().Format(time.RFC3339),
	}
	if b.UserID != nil {
		ev.UserID = *b.UserID
	}
	if s != nil {
		ev.MovieTitle = s.MovieTitle
		ev.Cinema = s.Cinema
		ev.Hall = s.Hall
		ev.StartsAt = s.StartsAt.UTC().Format(time.RFC3339)
	}
	return ev
}
