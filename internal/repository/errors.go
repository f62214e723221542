// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers to distinguish
// between failure scenarios without inspecting driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrConflict is returned when a delete or update cannot be performed
// because of conflicting state, such as deleting a showtime that still has
// bookings or cancelling a booking twice.
var ErrConflict = errors.New("conflict")

// ErrDuplicateKey wraps a unique constraint violation.
var ErrDuplicateKey = errors.New("duplicate key")

var (
	ErrShowtimeNotFound  = errors.New("showtime not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInsufficientSeats = errors.New("insufficient seats")
	ErrInvalidSeatCount  = errors.New("seat count must be positive")
)

// isDuplicateKey recognises MySQL error 1062 and the SQLite unique
// constraint message used by the test database.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	msg := err.Error()
	return strings.Contains(msg, "Error 1062") || strings.Contains(msg, "UNIQUE constraint failed")
}
