package activity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/middleware"
)

// Drop reasons passed to Options.OnDrop.
const (
	DropBufferFull = "buffer_full"
	DropClosed     = "closed"
	DropStoreError = "store_error"
)

var ErrInvalidDays = errors.New("days must be at least 1")

// Options tunes a Logger. Zero values take defaults.
type Options struct {
	BufferSize   int
	Workers      int
	WriteTimeout time.Duration
	OnWrite      func()
	OnDrop       func(reason string)
	Now          func() time.Time
}

// Logger queues entries on a bounded buffer drained by a small worker pool.
// All methods are safe on a nil *Logger.
type Logger struct {
	store Store
	log   *zap.Logger
	opts  Options

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	wg     sync.WaitGroup
}

func NewLogger(store Store, log *zap.Logger, opts Options) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := &Logger{
		store: store,
		log:   log.Named("activity"),
		opts:  opts,
		queue: make(chan Entry, opts.BufferSize),
	}
	for i := 0; i < opts.Workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}
	return l
}

// Log enqueues e without blocking. When the buffer is full, or the logger
// is closed, the entry is dropped and reported on the fallback logger.
func (l *Logger) Log(e Entry) {
	if l == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.opts.Now()
	}
	e.Timestamp = e.Timestamp.UTC()
	if e.Level == "" {
		e.Level = LevelInfo
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.drop(e, DropClosed, nil)
		return
	}
	select {
	case l.queue <- e:
	default:
		l.drop(e, DropBufferFull, nil)
	}
}

func (l *Logger) worker() {
	defer l.wg.Done()
	for e := range l.queue {
		l.write(e)
	}
}

func (l *Logger) write(e Entry) {
	defer func() {
		if r := recover(); r != nil {
			l.drop(e, DropStoreError, fmt.Errorf("store panic: %v", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), l.opts.WriteTimeout)
	defer cancel()
	if err := l.store.Insert(ctx, e); err != nil {
		l.drop(e, DropStoreError, err)
		return
	}
	if l.opts.OnWrite != nil {
		l.opts.OnWrite()
	}
}

func (l *Logger) drop(e Entry, reason string, err error) {
	l.log.Warn("activity entry dropped",
		zap.String("reason", reason),
		zap.String("action", e.Action),
		zap.String("user_id", e.UserID),
		zap.String("level", string(e.Level)),
		zap.Error(err),
	)
	if l.opts.OnDrop != nil {
		l.opts.OnDrop(reason)
	}
}

// Close stops accepting entries and waits for queued ones to be written or
// for ctx to expire.
func (l *Logger) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain activity log: %w", ctx.Err())
	}
}

func (l *Logger) LogAuth(action string, actor Actor, d Details) {
	level := LevelInfo
	if action == ActionLoginFailed {
		level = LevelWarn
	}
	l.Log(Entry{
		UserID:   actor.UserID,
		Username: actor.Username,
		Action:   action,
		Resource: "auth",
		Details:  d,
		Level:    level,
	})
}

func (l *Logger) LogCRUD(action string, actor Actor, resource, resourceID string, before, after any) {
	l.Log(Entry{
		UserID:     actor.UserID,
		Username:   actor.Username,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    Details{Before: before, After: after},
		Level:      LevelInfo,
	})
}

func (l *Logger) LogError(action string, actor Actor, err error, d Details) {
	if err != nil {
		if d.Metadata == nil {
			d.Metadata = map[string]any{}
		}
		d.Metadata["error"] = err.Error()
	}
	l.Log(Entry{
		UserID:   actor.UserID,
		Username: actor.Username,
		Action:   action,
		Details:  d,
		Level:    LevelError,
	})
}

// LogSystem records an action with no user attached.
func (l *Logger) LogSystem(action string, metadata map[string]any) {
	l.Log(Entry{
		Action:   action,
		Resource: "system",
		Details:  Details{Metadata: metadata},
		Level:    LevelInfo,
	})
}

// ObserveHTTP records a finished request. Probe endpoints are skipped; the
// leading bytes of the body are kept for failed requests.
func (l *Logger) ObserveHTTP(r middleware.ResponseInfo) {
	if l == nil || r.Path == "/healthz" || r.Path == "/metrics" {
		return
	}
	level := LevelInfo
	switch {
	case r.Status >= 500:
		level = LevelError
	case r.Status >= 400:
		level = LevelWarn
	}
	d := Details{
		Method:     r.Method,
		Endpoint:   r.Path,
		IP:         r.IP,
		UserAgent:  r.UserAgent,
		StatusCode: r.Status,
		Metadata:   map[string]any{"durationMs": r.Duration.Milliseconds()},
	}
	if r.Route != "" {
		d.Metadata["route"] = r.Route
	}
	if r.Status >= 400 && len(r.Body) > 0 {
		d.Metadata["response"] = string(r.Body)
	}
	e := Entry{
		Action:    ActionAPIRequest,
		Resource:  "http",
		Details:   d,
		Level:     level,
		SessionID: r.RequestID,
	}
	if r.UserID != 0 {
		e.UserID = strconv.FormatUint(r.UserID, 10)
	}
	l.Log(e)
}

// Query returns one page of entries, newest first. Page defaults to 1 and
// pageSize to 50, capped at 200.
func (l *Logger) Query(ctx context.Context, f Filter, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	entries, total, err := l.store.Find(ctx, f, (page-1)*pageSize, pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("query activity: %w", err)
	}
	return Page{
		Entries:    entries,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

// Clear deletes entries older than days and returns how many went.
func (l *Logger) Clear(ctx context.Context, days int) (int64, error) {
	if days < 1 {
		return 0, ErrInvalidDays
	}
	cutoff := l.opts.Now().Add(-time.Duration(days) * 24 * time.Hour)
	n, err := l.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clear activity: %w", err)
	}
	return n, nil
}
