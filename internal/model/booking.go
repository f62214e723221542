package model

import "time"

// Booking statuses.
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
)

// Payment methods accepted at checkout. Cash is paid at the counter, so a
// cash booking stays pending until an admin confirms it.
const (
	PaymentCreditCard = "credit_card"
	PaymentDebitCard  = "debit_card"
	PaymentPayPal     = "paypal"
	PaymentCash       = "cash"
)

// Booking is one reservation of N seats for a showtime. Reference is unique
// and never changes once issued. TotalPriceCents is the price snapshot taken
// when the booking was created.
type Booking struct {
	ID              uint64    `json:"id"`
	UserID          *uint64   `json:"user_id,omitempty"` // nil for guest checkout
	ShowtimeID      uint64    `json:"showtime_id"`
	Reference       string    `json:"booking_reference"`
	Tickets         int       `json:"number_of_tickets"`
	TotalPriceCents int64     `json:"total_price_cents"`
	Status          string    `json:"booking_status"`
	CustomerName    string    `json:"customer_name"`
	CustomerEmail   string    `json:"customer_email"`
	CustomerPhone   string    `json:"customer_phone,omitempty"`
	SeatNumbers     []string  `json:"seat_numbers"`
	PaymentMethod   string    `json:"payment_method"`
	PaymentStatus   string    `json:"payment_status"`
	CreatedAt       time.Time `json:"booking_date"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// OwnedBy reports whether userID placed the booking.
func (b Booking) OwnedBy(userID uint64) bool {
	return b.UserID != nil && *b.UserID == userID
}

// BookingDetail is a booking joined with its showtime and movie for display.
type BookingDetail struct {
	Booking
	MovieID    uint64    `json:"movie_id"`
	MovieTitle string    `json:"movie_title"`
	Cinema     string    `json:"cinema"`
	Hall       string    `json:"hall"`
	StartsAt   time.Time `json:"starts_at"`
	ScreenType string    `json:"screen_type"`
	PriceCents int64     `json:"price_cents"`
}
