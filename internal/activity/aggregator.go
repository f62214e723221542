package activity

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	defaultWindowDays = 7
	maxWindowDays     = 365
	topActionsLimit   = 10
	// MaxExport caps the number of entries one export writes.
	MaxExport = 10000
)

var ErrInvalidFormat = errors.New("format must be json or csv")

// Aggregator computes read-only rollups and exports over a Store.
type Aggregator struct {
	store Store
	now   func() time.Time
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// GetStats summarizes the trailing windowDays (default 7, max 365).
func (a *Aggregator) GetStats(ctx context.Context, windowDays int) (Stats, error) {
	if windowDays < 1 {
		windowDays = defaultWindowDays
	}
	if windowDays > maxWindowDays {
		windowDays = maxWindowDays
	}
	since := a.now().UTC().Add(-time.Duration(windowDays) * 24 * time.Hour)
	st, err := a.store.Stats(ctx, since, topActionsLimit)
	if err != nil {
		return Stats{}, fmt.Errorf("activity stats: %w", err)
	}
	st.WindowDays = windowDays
	st.Since = since
	return st, nil
}

// ParseFormat validates an export format name.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", "json":
		return "json", nil
	case "csv":
		return "csv", nil
	}
	return "", ErrInvalidFormat
}

// Export writes the entries matching f to w as a JSON array or as CSV.
func (a *Aggregator) Export(ctx context.Context, format string, f Filter, w io.Writer) error {
	format, err := ParseFormat(format)
	if err != nil {
		return err
	}
	entries, _, err := a.store.Find(ctx, f, 0, MaxExport)
	if err != nil {
		return fmt.Errorf("export activity: %w", err)
	}
	if format == "json" {
		return json.NewEncoder(w).Encode(entries)
	}
	return writeCSV(w, entries)
}

func writeCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Timestamp", "User", "Action", "Resource", "Level", "Details"}); err != nil {
		return err
	}
	for _, e := range entries {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
		row := []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			actorName(e),
			e.Action,
			e.Resource,
			string(e.Level),
			string(details),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func actorName(e Entry) string {
	switch {
	case e.Username != "":
		return e.Username
	case e.UserID != "":
		return e.UserID
	}
	return "system"
}
