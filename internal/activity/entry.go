// Package activity records an append-only audit trail of user and system
// actions. Writes are asynchronous and best effort: nothing in this package
// ever fails or blocks the operation being recorded.
package activity

import (
	"strings"
	"time"
)

// Level is the severity of an entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ParseLevel maps a case-insensitive name onto a Level.
func ParseLevel(s string) (Level, bool) {
	switch l := Level(strings.ToUpper(strings.TrimSpace(s))); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l, true
	}
	return "", false
}

// Details is the structured bag attached to every entry.
type Details struct {
	Method     string         `json:"method,omitempty" bson:"method,omitempty"`
	Endpoint   string         `json:"endpoint,omitempty" bson:"endpoint,omitempty"`
	IP         string         `json:"ip,omitempty" bson:"ip,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty" bson:"userAgent,omitempty"`
	StatusCode int            `json:"statusCode,omitempty" bson:"statusCode,omitempty"`
	Before     any            `json:"before,omitempty" bson:"before,omitempty"`
	After      any            `json:"after,omitempty" bson:"after,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Entry is one audit record. Actor and resource are denormalized ids and
// names; nothing links them to the relational store, so entries outlive
// the rows they describe. An entry is never modified after it is written.
type Entry struct {
	ID         string    `json:"id" bson:"-"`
	UserID     string    `json:"userId,omitempty" bson:"userId,omitempty"`
	Username   string    `json:"username,omitempty" bson:"username,omitempty"`
	Action     string    `json:"action" bson:"action"`
	Resource   string    `json:"resource,omitempty" bson:"resource,omitempty"`
	ResourceID string    `json:"resourceId,omitempty" bson:"resourceId,omitempty"`
	Details    Details   `json:"details" bson:"details"`
	Level      Level     `json:"level" bson:"level"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
	SessionID  string    `json:"sessionId,omitempty" bson:"sessionId,omitempty"`
}

// Actor identifies who performed an action. The zero value is the system.
type Actor struct {
	UserID   string
	Username string
}

// Filter selects entries for queries and exports. Zero fields match all.
// Action is a case-insensitive substring; To is exclusive.
type Filter struct {
	UserID   string
	Action   string
	Resource string
	Level    Level
	From     time.Time
	To       time.Time
}

// Match applies the filter to a single entry.
func (f Filter) Match(e Entry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Action != "" && !strings.Contains(strings.ToLower(e.Action), strings.ToLower(f.Action)) {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
		return false
	}
	return true
}

// Page is one page of query results, newest first.
type Page struct {
	Entries    []Entry `json:"entries"`
	Total      int64   `json:"total"`
	Page       int     `json:"page"`
	PageSize   int     `json:"pageSize"`
	TotalPages int     `json:"totalPages"`
}

// ActionCount is one row of the top-actions ranking.
type ActionCount struct {
	Action string `json:"action" bson:"_id"`
	Count  int64  `json:"count" bson:"count"`
}

// DailyCount is the number of entries on one UTC day (YYYY-MM-DD).
type DailyCount struct {
	Date  string `json:"date" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

// Stats is the dashboard rollup over a trailing window. System actions are
// entries with no user attached.
type Stats struct {
	WindowDays    int           `json:"windowDays"`
	Since         time.Time     `json:"since"`
	TotalLogs     int64         `json:"totalLogs"`
	ErrorCount    int64         `json:"errorCount"`
	UserActions   int64         `json:"userActions"`
	SystemActions int64         `json:"systemActions"`
	TopActions    []ActionCount `json:"topActions"`
	DailyActivity []DailyCount  `json:"dailyActivity"`
}
