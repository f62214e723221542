package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer listens on every booking queue and appends one line per event to
// <LogDir>/booking.log.
type Consumer struct {
	URL    string
	LogDir string
	Log    *zap.Logger

	mu sync.Mutex // serializes appends
}

// Run keeps a consumer connected until ctx is cancelled, reconnecting with
// exponential backoff capped at 30s. Bad messages are rejected without
// requeue so one poison message cannot stall the loop.
func (c *Consumer) Run(ctx context.Context) error {
	if c.Log == nil {
		c.Log = zap.NewNop()
	}
	log := c.Log.Named("booking-consumer")
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warn("set QoS failed", zap.Error(err))
	}

	merged := make(chan amqp.Delivery)
	done := make(chan struct{})
	defer close(done)
	var wg sync.WaitGroup
	for _, q := range Queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		wg.Add(1)
		go func(msgs <-chan amqp.Delivery) {
			defer wg.Done()
			for d := range msgs {
				select {
				case merged <- d:
				case <-done:
					return
				}
			}
		}(msgs)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-merged:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.Body); err != nil {
				c.Log.Warn("handle message failed", zap.String("queue", d.RoutingKey), zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// FormatLine renders an event as a single log line.
func FormatLine(ev BookingEvent) string {
	verb := map[string]string{
		BookingConfirmed: "Booking confirmed",
		BookingPending:   "Booking pending payment",
		BookingCancelled: "Booking cancelled",
	}[ev.Type]
	if verb == "" {
		verb = "Booking event " + ev.Type
	}
	seats := "[]"
	if len(ev.SeatNumbers) > 0 {
		seats = "[" + strings.Join(ev.SeatNumbers, ",") + "]"
	}
	return fmt.Sprintf("[%s] %s | ref=%s | booking_id=%d | user_id=%d | showtime_id=%d | cinema=%q | hall=%q | movie=%q | tickets=%d | total=%d cents | payment=%s | seats=%s\n",
		ev.OccurredAt, verb, ev.Reference, ev.BookingID, ev.UserID, ev.ShowtimeID,
		ev.Cinema, ev.Hall, ev.MovieTitle, ev.Tickets, ev.TotalPriceCents, ev.PaymentMethod, seats)
}

func (c *Consumer) handleMessage(body []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Reference == "" {
		return errors.New("event has no booking reference")
	}
	dir := c.LogDir
	if dir == "" {
		dir = "logs"
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
