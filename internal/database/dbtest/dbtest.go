// Package dbtest opens a throwaway SQLite database with the booking schema so
// repository and service tests run against real SQL.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/go-sql-driver/mysql"
)

const schema = `
CREATE TABLE users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    email         TEXT     NOT NULL UNIQUE,
    password_hash TEXT     NOT NULL,
    role          TEXT     NOT NULL DEFAULT 'CUSTOMER',
    is_active     BOOLEAN  NOT NULL DEFAULT 1,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE refresh_tokens (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    INTEGER  NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    token_hash TEXT     NOT NULL UNIQUE,
    expires_at DATETIME NOT NULL,
    revoked_at DATETIME NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE movies (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    title        TEXT     NOT NULL,
    duration_min INTEGER  NOT NULL DEFAULT 0,
    rating       TEXT     NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE showtimes (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    movie_id        INTEGER  NOT NULL REFERENCES movies (id),
    cinema          TEXT     NOT NULL,
    hall            TEXT     NOT NULL,
    starts_at       DATETIME NOT NULL,
    capacity        INTEGER  NOT NULL,
    remaining_seats INTEGER  NOT NULL,
    screen_type     TEXT     NOT NULL DEFAULT '2D',
    price_cents     INTEGER  NOT NULL,
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (remaining_seats >= 0 AND remaining_seats <= capacity)
);
CREATE TABLE bookings (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id           INTEGER  NULL REFERENCES users (id) ON DELETE SET NULL,
    showtime_id       INTEGER  NOT NULL REFERENCES showtimes (id) ON DELETE RESTRICT,
    booking_reference TEXT     NOT NULL UNIQUE,
    number_of_tickets INTEGER  NOT NULL,
    total_price_cents INTEGER  NOT NULL,
    booking_status    TEXT     NOT NULL,
    customer_name     TEXT     NOT NULL,
    customer_email    TEXT     NOT NULL,
    customer_phone    TEXT     NOT NULL DEFAULT '',
    seat_numbers      TEXT     NOT NULL,
    payment_method    TEXT     NOT NULL,
    payment_status    TEXT     NOT NULL,
    booking_date      DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL
);
`

// Open returns a migrated database backed by a file in t.TempDir(). The pool
// is pinned to one connection so concurrent transactions queue instead of
// hitting SQLITE_BUSY.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	return open(t, "", 1)
}

// OpenConcurrent is Open with a WAL journal and conns pooled connections,
// so transactions really overlap. A transaction that writes before it reads
// waits on busy_timeout; one that reads and then upgrades to a write after
// another writer committed fails with SQLITE_BUSY.
func OpenConcurrent(t *testing.T, conns int) *sql.DB {
	t.Helper()
	return open(t, "&_pragma=journal_mode(WAL)", conns)
}

func open(t *testing.T, pragmas string, conns int) *sql.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "booking.db") +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_time_format=sqlite" + pragmas
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(conns)
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

// OpenMySQL creates a scratch database on the server named by MYSQL_TEST_DSN,
// applies migrations/001_init.sql and drops it on cleanup. The test is
// skipped when the variable is unset.
func OpenMySQL(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("parse MYSQL_TEST_DSN: %v", err)
	}
	name := fmt.Sprintf("cinema_test_%d", time.Now().UnixNano())

	admin, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	t.Cleanup(func() { _ = admin.Close() })
	if _, err := admin.Exec("CREATE DATABASE " + name); err != nil {
		t.Fatalf("create database: %v", err)
	}
	t.Cleanup(func() { _, _ = admin.Exec("DROP DATABASE " + name) })

	cfg.DBName = name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = true
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	db.SetMaxOpenConns(16)
	t.Cleanup(func() { _ = db.Close() })

	ddl, err := os.ReadFile(migrationPath())
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := db.Exec(string(ddl)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	return db
}

func migrationPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations", "001_init.sql")
}

// SeedMovie inserts a movie and returns its id.
func SeedMovie(t *testing.T, db *sql.DB, title string) uint64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO movies (title, duration_min, rating) VALUES (?, ?, ?)`, title, 120, "PG-13")
	if err != nil {
		t.Fatalf("seed movie: %v", err)
	}
	id, _ := res.LastInsertId()
	return uint64(id)
}

// SeedShowtime inserts a showtime with the given capacity, remaining seats and price.
func SeedShowtime(t *testing.T, db *sql.DB, movieID uint64, startsAt time.Time, capacity, remaining int, priceCents int64) uint64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO showtimes (movie_id, cinema, hall, starts_at, capacity, remaining_seats, screen_type, price_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		movieID, "Downtown", "Hall 1", startsAt.UTC(), capacity, remaining, "2D", priceCents, time.Now().UTC())
	if err != nil {
		t.Fatalf("seed showtime: %v", err)
	}
	id, _ := res.LastInsertId()
	return uint64(id)
}

// SeedUser inserts a user row with a dummy hash and returns its id.
func SeedUser(t *testing.T, db *sql.DB, email, role string) uint64 {
	t.Helper()
	now := time.Now().UTC()
	res, err := db.Exec(`INSERT INTO users (email, password_hash, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		email, "x", role, now, now)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	id, _ := res.LastInsertId()
	return uint64(id)
}

// Remaining reads the ledger counter for a showtime.
func Remaining(t *testing.T, db *sql.DB, showtimeID uint64) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), `SELECT remaining_seats FROM showtimes WHERE id = ?`, showtimeID).Scan(&n); err != nil {
		t.Fatalf("read remaining: %v", err)
	}
	return n
}
