package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// QueryService answers read-only booking lookups.
type QueryService struct {
	bookings *repository.BookingRepo
}

func NewQueryService(bookings *repository.BookingRepo) *QueryService {
	return &QueryService{bookings: bookings}
}

// ListFilter narrows ListAll. Date is YYYY-MM-DD in UTC and matches the
// showtime's day.
type ListFilter struct {
	Status string
	Date   string
}

// BookingPage is one page of the admin listing.
type BookingPage struct {
	Bookings   []model.BookingDetail `json:"bookings"`
	Total      int                   `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, repository.ErrBookingNotFound) {
		return newError(KindNotFound, what+" not found", nil)
	}
	return persistence("load "+what, err)
}

func (q *QueryService) GetByReference(ctx context.Context, ref string) (*model.BookingDetail, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" {
		return nil, invalid([]FieldError{{Field: "reference", Message: "is required"}})
	}
	d, err := q.bookings.GetDetailByReference(ctx, ref)
	if err != nil {
		return nil, notFoundOr(err, "booking")
	}
	return d, nil
}

func (q *QueryService) GetByID(ctx context.Context, id uint64) (*model.BookingDetail, error) {
	d, err := q.bookings.GetDetail(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "booking")
	}
	return d, nil
}

// ListForUser returns a user's bookings, most recent first.
func (q *QueryService) ListForUser(ctx context.Context, userID uint64) ([]model.BookingDetail, error) {
	if userID == 0 {
		return nil, newError(KindUnauthorized, "authentication required", nil)
	}
	items, err := q.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, persistence("list bookings", err)
	}
	if items == nil {
		items = []model.BookingDetail{}
	}
	return items, nil
}

// ListAll pages through every booking. Page defaults to 1 and pageSize to
// 20, capped at 100.
func (q *QueryService) ListAll(ctx context.Context, f ListFilter, page, pageSize int) (BookingPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var (
		rf     repository.BookingFilter
		fields []FieldError
	)
	switch st := strings.ToLower(strings.TrimSpace(f.Status)); st {
	case "":
	case model.BookingPending, model.BookingConfirmed, model.BookingCancelled:
		rf.Status = st
	default:
		fields = append(fields, FieldError{Field: "status", Message: "must be one of: pending confirmed cancelled"})
	}
	if d := strings.TrimSpace(f.Date); d != "" {
		day, err := time.ParseInLocation("2006-01-02", d, time.UTC)
		if err != nil {
			fields = append(fields, FieldError{Field: "date", Message: "must be YYYY-MM-DD"})
		} else {
			next := day.AddDate(0, 0, 1)
			rf.From, rf.To = &day, &next
		}
	}
	if len(fields) > 0 {
		return BookingPage{}, invalid(fields)
	}

	items, total, err := q.bookings.List(ctx, rf, pageSize, (page-1)*pageSize)
	if err != nil {
		return BookingPage{}, persistence("list bookings", err)
	}
	return BookingPage{
		Bookings:   items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}
