package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/activity"
	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

const (
	maxReferenceAttempts = 5
	maxAttempts          = 2
	expireBatch          = 500
	publishTimeout       = 5 * time.Second
)

// EventPublisher sends booking lifecycle events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, queue string, v any) error
}

// CreateBookingRequest is the checkout payload.
type CreateBookingRequest struct {
	ShowtimeID     uint64   `json:"showtime_id" validate:"required"`
	Tickets        int      `json:"number_of_tickets" validate:"min=1"`
	CustomerName   string   `json:"customer_name" validate:"required,max=120"`
	CustomerEmail  string   `json:"customer_email" validate:"required,email,max=255"`
	CustomerPhone  string   `json:"customer_phone" validate:"omitempty,max=32"`
	SeatNumbers    []string `json:"seat_numbers" validate:"omitempty,unique,dive,required,max=16"`
	PaymentMethod  string   `json:"payment_method" validate:"required,oneof=credit_card debit_card paypal cash"`
	IdempotencyKey string   `json:"-"`
}

func (r *CreateBookingRequest) normalize() {
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerEmail = strings.ToLower(strings.TrimSpace(r.CustomerEmail))
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)
	r.PaymentMethod = strings.ToLower(strings.TrimSpace(r.PaymentMethod))
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	for i, s := range r.SeatNumbers {
		r.SeatNumbers[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

// BookingDeps wires a BookingService. Events, Idempotency, Activity and
// Metrics are optional.
type BookingDeps struct {
	DB          *sql.DB
	Showtimes   *repository.ShowtimeRepo
	Bookings    *repository.BookingRepo
	Events      EventPublisher
	Idempotency Idempotency
	Activity    *activity.Logger
	Metrics     *metrics.Metrics
	Log         *zap.Logger
	Config      config.BookingConfig
}

// BookingService is the booking transaction manager. Every seat count
// change and the booking row it belongs to commit in one SQL transaction.
type BookingService struct {
	db        *sql.DB
	showtimes *repository.ShowtimeRepo
	bookings  *repository.BookingRepo
	events    EventPublisher
	idem      Idempotency
	activity  *activity.Logger
	metrics   *metrics.Metrics
	log       *zap.Logger
	cfg       config.BookingConfig

	now    func() time.Time
	newRef func() string
}

func NewBookingService(d BookingDeps) *BookingService {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	cfg := d.Config
	if cfg.MaxTickets < 1 {
		cfg.MaxTickets = 10
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 5 * time.Second
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 15 * time.Minute
	}
	return &BookingService{
		db:        d.DB,
		showtimes: d.Showtimes,
		bookings:  d.Bookings,
		events:    d.Events,
		idem:      d.Idempotency,
		activity:  d.Activity,
		metrics:   d.Metrics,
		log:       log.Named("booking"),
		cfg:       cfg,
		now:       time.Now,
		newRef:    utils.NewReferenceGenerator(cfg.RefPrefix),
	}
}

// PendingTTL is how long an unpaid booking may hold its seats.
func (s *BookingService) PendingTTL() time.Duration { return s.cfg.PendingTTL }

func (s *BookingService) validateCreate(req CreateBookingRequest) error {
	var fields []FieldError
	if err := validate.Struct(req); err != nil {
		fields = fieldErrors(err)
	}
	if req.Tickets > s.cfg.MaxTickets {
		fields = append(fields, FieldError{Field: "number_of_tickets", Message: fmt.Sprintf("must be at most %d", s.cfg.MaxTickets)})
	}
	if len(req.SeatNumbers) > 0 && len(req.SeatNumbers) != req.Tickets {
		fields = append(fields, FieldError{Field: "seat_numbers", Message: "must list exactly number_of_tickets seats"})
	}
	if len(fields) > 0 {
		return invalid(fields)
	}
	return nil
}

// withRetry runs op with a per-attempt deadline. Only storage faults are
// retried, once, on a fresh transaction. Commit failures are not.
func (s *BookingService) withRetry(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		err = op(actx)
		cancel()
		if err == nil || KindOf(err) != KindPersistence || errors.Is(err, errCommitUnknown) || ctx.Err() != nil {
			return err
		}
		s.log.Warn("booking attempt failed", zap.String("op", name), zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}

func persistence(msg string, err error) *Error {
	return newError(KindPersistence, msg, err)
}

// errCommitUnknown marks a failed COMMIT. The server may have applied the
// transaction before the connection dropped, so the attempt is not retried.
var errCommitUnknown = errors.New("commit outcome unknown")

func commitFailure(msg string, err error) *Error {
	return newError(KindPersistence, msg, fmt.Errorf("%w: %w", errCommitUnknown, err))
}

// Create books req.Tickets seats on a showtime. The seat decrement, the
// reference allocation and the booking row commit together or not at all.
func (s *BookingService) Create(ctx context.Context, req CreateBookingRequest, actor Actor) (*model.Booking, error) {
	req.normalize()
	if err := s.validateCreate(req); err != nil {
		s.metrics.BookingFailed(string(KindInvalidRequest))
		return nil, err
	}

	idemKey, claimed := "", false
	if req.IdempotencyKey != "" && s.idem != nil {
		idemKey = idempotencyScope(actor, req.IdempotencyKey)
		ref, err := s.idem.Begin(ctx, idemKey)
		switch {
		case errors.Is(err, ErrConflict):
			return nil, err
		case err != nil:
			s.log.Warn("idempotency unavailable", zap.Error(err))
		case ref != "":
			d, err := s.bookings.GetDetailByReference(ctx, ref)
			if err == nil {
				return &d.Booking, nil
			}
			s.log.Warn("idempotent replay lost its booking", zap.String("reference", ref), zap.Error(err))
			return nil, newError(KindNotFound, "booking for this Idempotency-Key no longer exists", nil)
		default:
			claimed = true
		}
	}

	var (
		b  *model.Booking
		st *model.Showtime
	)
	err := s.withRetry(ctx, "create", func(ctx context.Context) error {
		var err error
		b, st, err = s.createOnce(ctx, req, actor)
		return err
	})

	if claimed {
		if err != nil {
			if ierr := s.idem.Abort(context.WithoutCancel(ctx), idemKey); ierr != nil {
				s.log.Warn("idempotency abort failed", zap.Error(ierr))
			}
		} else if ierr := s.idem.Complete(context.WithoutCancel(ctx), idemKey, b.Reference); ierr != nil {
			s.log.Warn("idempotency complete failed", zap.Error(ierr))
		}
	}

	if err != nil {
		kind := KindOf(err)
		s.metrics.BookingFailed(string(kind))
		if kind == KindPersistence || kind == KindReferenceCollision {
			s.log.Error("booking create failed", zap.Uint64("showtime_id", req.ShowtimeID), zap.Error(err))
			s.activity.LogError(activity.ActionBookingCreateFailed, actor.activity(), err, activity.Details{
				Metadata: map[string]any{"showtimeId": req.ShowtimeID, "tickets": req.Tickets},
			})
		}
		return nil, err
	}

	s.metrics.BookingCreated(b.Status)
	s.activity.LogCRUD(activity.ActionBookingCreate, actor.activity(), "booking", b.Reference, nil, b)
	s.publish(*b, st)
	s.log.Info("booking created",
		zap.String("reference", b.Reference),
		zap.Uint64("showtime_id", b.ShowtimeID),
		zap.Int("tickets", b.Tickets),
		zap.String("status", b.Status))
	return b, nil
}

func (s *BookingService) createOnce(ctx context.Context, req CreateBookingRequest, actor Actor) (*model.Booking, *model.Showtime, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, persistence("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	st, err := s.showtimes.GetByIDTx(ctx, tx, req.ShowtimeID)
	if errors.Is(err, repository.ErrShowtimeNotFound) {
		return nil, nil, newError(KindNotFound, "showtime not found", nil)
	}
	if err != nil {
		return nil, nil, persistence("load showtime", err)
	}
	now := s.now().UTC()
	if st.Started(now) {
		return nil, nil, newError(KindNotFound, "showtime has already started", nil)
	}

	remaining, err := s.showtimes.ReserveTx(ctx, tx, st.ID, req.Tickets)
	switch {
	case errors.Is(err, repository.ErrInsufficientSeats):
		return nil, nil, &Error{
			Kind:    KindInsufficientCapacity,
			Message: fmt.Sprintf("only %d seats remaining", remaining),
			Fields:  []FieldError{{Field: "number_of_tickets", Message: "exceeds remaining seats (" + strconv.Itoa(remaining) + ")"}},
		}
	case errors.Is(err, repository.ErrShowtimeNotFound):
		return nil, nil, newError(KindNotFound, "showtime not found", nil)
	case err != nil:
		return nil, nil, persistence("reserve seats", err)
	}
	st.RemainingSeats = remaining

	status, payment := model.BookingConfirmed, model.PaymentCompleted
	if req.PaymentMethod == model.PaymentCash {
		status, payment = model.BookingPending, model.PaymentPending
	}
	b := &model.Booking{
		ShowtimeID:      st.ID,
		Tickets:         req.Tickets,
		TotalPriceCents: int64(req.Tickets) * st.PriceCents,
		Status:          status,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		SeatNumbers:     req.SeatNumbers,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   payment,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if b.SeatNumbers == nil {
		b.SeatNumbers = []string{}
	}
	if actor.UserID != 0 {
		uid := actor.UserID
		b.UserID = &uid
	}

	for attempt := 1; ; attempt++ {
		b.Reference = s.newRef()
		err = s.bookings.InsertTx(ctx, tx, b)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			return nil, nil, persistence("insert booking", err)
		}
		if attempt >= maxReferenceAttempts {
			return nil, nil, newError(KindReferenceCollision, ErrReferenceCollision.Message, err)
		}
		s.log.Debug("booking reference collision", zap.String("reference", b.Reference), zap.Int("attempt", attempt))
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, commitFailure("commit booking", err)
	}
	committed = true
	return b, st, nil
}

// Cancel cancels a pending or confirmed booking and returns its seats.
// Only the owner, an admin or the system may cancel.
func (s *BookingService) Cancel(ctx context.Context, bookingID uint64, actor Actor) (*model.Booking, error) {
	return s.cancel(ctx, bookingID, actor, activity.ActionBookingCancel, model.BookingPending, model.BookingConfirmed)
}

func (s *BookingService) cancel(ctx context.Context, bookingID uint64, actor Actor, action string, from ...string) (*model.Booking, error) {
	var (
		before, after *model.Booking
		st            *model.Showtime
	)
	err := s.withRetry(ctx, "cancel", func(ctx context.Context) error {
		var err error
		before, after, st, err = s.cancelOnce(ctx, bookingID, actor, from)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BookingCancelled(actor.label())
	s.activity.LogCRUD(action, actor.activity(), "booking", after.Reference,
		map[string]any{"status": before.Status, "paymentStatus": before.PaymentStatus},
		map[string]any{"status": after.Status, "releasedSeats": after.Tickets})
	s.publish(*after, st)
	s.log.Info("booking cancelled",
		zap.String("reference", after.Reference),
		zap.Int("released", after.Tickets),
		zap.String("by", actor.label()))
	return after, nil
}

func (s *BookingService) cancelOnce(ctx context.Context, bookingID uint64, actor Actor, from []string) (before, after *model.Booking, st *model.Showtime, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, nil, persistence("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := s.bookings.GetByIDTx(ctx, tx, bookingID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return nil, nil, nil, newError(KindNotFound, "booking not found", nil)
	}
	if err != nil {
		return nil, nil, nil, persistence("load booking", err)
	}
	if !actor.IsAdmin() && !b.OwnedBy(actor.UserID) {
		return nil, nil, nil, newError(KindForbidden, "you cannot cancel this booking", nil)
	}
	if b.Status == model.BookingCancelled {
		return nil, nil, nil, newError(KindConflict, "booking already cancelled", nil)
	}

	now := s.now().UTC()
	ok, err := s.bookings.SetStatusTx(ctx, tx, b.ID, model.BookingCancelled, "", now, from...)
	if err != nil {
		return nil, nil, nil, persistence("cancel booking", err)
	}
	if !ok {
		return nil, nil, nil, newError(KindConflict, "booking is no longer "+strings.Join(from, " or "), nil)
	}
	if _, err := s.showtimes.ReleaseTx(ctx, tx, b.ShowtimeID, b.Tickets); err != nil {
		return nil, nil, nil, persistence("release seats", err)
	}
	st, err = s.showtimes.GetByIDTx(ctx, tx, b.ShowtimeID)
	if err != nil {
		return nil, nil, nil, persistence("load showtime", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, nil, commitFailure("commit cancel", err)
	}
	committed = true

	prev := *b
	b.Status = model.BookingCancelled
	b.UpdatedAt = now
	return &prev, b, st, nil
}

// UpdateStatus is the admin override. Confirming a pending booking marks it
// paid; cancelling goes through the seat-releasing cancel path.
func (s *BookingService) UpdateStatus(ctx context.Context, bookingID uint64, status string, actor Actor) (*model.Booking, error) {
	if !actor.IsAdmin() {
		return nil, newError(KindForbidden, "admin role required", nil)
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case model.BookingPending, model.BookingConfirmed, model.BookingCancelled:
	default:
		return nil, invalid([]FieldError{{Field: "status", Message: "must be one of: pending confirmed cancelled"}})
	}

	cur, err := s.bookings.GetDetail(ctx, bookingID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return nil, newError(KindNotFound, "booking not found", nil)
	}
	if err != nil {
		return nil, persistence("load booking", err)
	}
	if cur.Status == status {
		return &cur.Booking, nil
	}

	switch {
	case status == model.BookingCancelled:
		return s.cancel(ctx, bookingID, actor, activity.ActionBookingStatus, model.BookingPending, model.BookingConfirmed)
	case cur.Status == model.BookingCancelled:
		return nil, newError(KindConflict, "a cancelled booking cannot be reopened", nil)
	case status == model.BookingPending:
		return nil, newError(KindConflict, "a confirmed booking cannot return to pending", nil)
	}

	var (
		after *model.Booking
		st    *model.Showtime
	)
	err = s.withRetry(ctx, "confirm", func(ctx context.Context) error {
		var err error
		after, st, err = s.confirmOnce(ctx, bookingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.activity.LogCRUD(activity.ActionBookingStatus, actor.activity(), "booking", after.Reference,
		map[string]any{"status": cur.Status, "paymentStatus": cur.PaymentStatus},
		map[string]any{"status": after.Status, "paymentStatus": after.PaymentStatus})
	s.publish(*after, st)
	return after, nil
}

func (s *BookingService) confirmOnce(ctx context.Context, bookingID uint64) (*model.Booking, *model.Showtime, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, persistence("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	ok, err := s.bookings.SetStatusTx(ctx, tx, bookingID, model.BookingConfirmed, model.PaymentCompleted, s.now().UTC(), model.BookingPending)
	if err != nil {
		return nil, nil, persistence("confirm booking", err)
	}
	if !ok {
		return nil, nil, newError(KindConflict, "booking is no longer pending", nil)
	}
	b, err := s.bookings.GetByIDTx(ctx, tx, bookingID)
	if err != nil {
		return nil, nil, persistence("reload booking", err)
	}
	st, err := s.showtimes.GetByIDTx(ctx, tx, b.ShowtimeID)
	if err != nil {
		return nil, nil, persistence("load showtime", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, commitFailure("commit confirm", err)
	}
	committed = true
	return b, st, nil
}

// ExpirePending cancels pending bookings created more than olderThan ago
// and returns how many were expired. Bookings confirmed or cancelled in the
// meantime are skipped.
func (s *BookingService) ExpirePending(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = s.cfg.PendingTTL
	}
	cutoff := s.now().UTC().Add(-olderThan)
	ids, err := s.bookings.ListPendingBefore(ctx, cutoff, expireBatch)
	if err != nil {
		return 0, persistence("list pending bookings", err)
	}

	expired := 0
	for _, id := range ids {
		_, err := s.cancel(ctx, id, SystemActor, activity.ActionBookingExpire, model.BookingPending)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
		default:
			if ctx.Err() != nil {
				return expired, ctx.Err()
			}
			s.log.Warn("expire booking failed", zap.Uint64("booking_id", id), zap.Error(err))
		}
	}
	s.metrics.BookingsExpired(expired)
	return expired, nil
}

// Purge deletes a cancelled booking row. Admin only.
func (s *BookingService) Purge(ctx context.Context, bookingID uint64, actor Actor) error {
	if !actor.IsAdmin() {
		return newError(KindForbidden, "admin role required", nil)
	}
	err := s.bookings.DeleteCancelled(ctx, bookingID)
	switch {
	case errors.Is(err, repository.ErrBookingNotFound):
		return newError(KindNotFound, "booking not found", nil)
	case errors.Is(err, repository.ErrConflict):
		return newError(KindConflict, "only cancelled bookings can be deleted", nil)
	case err != nil:
		return persistence("delete booking", err)
	}
	s.activity.LogCRUD(activity.ActionBookingPurge, actor.activity(), "booking", strconv.FormatUint(bookingID, 10), nil, nil)
	return nil
}

// publish sends the event for b in the background. Broker failures are
// logged by the publisher and never reach the caller.
func (s *BookingService) publish(b model.Booking, st *model.Showtime) {
	if s.events == nil {
		return
	}
	ev := queue.NewBookingEvent(b, st, s.now())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.events.Publish(ctx, queue.QueueFor(b.Status), ev); err != nil {
			s.log.Debug("booking event not published", zap.String("reference", b.Reference), zap.Error(err))
		}
	}()
}
