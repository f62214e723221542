package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/activity"
	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/logger"
	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/router"
	"github.com/iliyamo/cinema-booking/internal/scheduler"
	"github.com/iliyamo/cinema-booking/internal/service"
)

// observedBodyBytes bounds the response prefix kept for failed requests.
const observedBodyBytes = 2048

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		zl.Fatal("mysql", zap.Error(err))
	}
	defer db.Close()

	// ---- Activity log store ----
	var (
		store       activity.Store
		mongoClient *mongo.Client
	)
	if cfg.Mongo.URI != "" {
		mongoClient, err = database.OpenMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			zl.Fatal("mongo", zap.Error(err))
		}
		ms := activity.NewMongoStore(mongoClient.Database(cfg.Mongo.Database), cfg.Mongo.Collection, cfg.Activity.Retention)
		if err := ms.EnsureIndexes(ctx); err != nil {
			zl.Warn("activity indexes not ensured", zap.Error(err))
		}
		store = ms
	} else {
		zl.Warn("MONGO_URI not set; activity logs kept in memory")
		store = activity.NewMemoryStore(0)
	}

	rdb := config.NewRedisClient(cfg.Redis, zl)
	m := metrics.New()

	act := activity.NewLogger(store, zl, activity.Options{
		BufferSize:   cfg.Activity.BufferSize,
		Workers:      cfg.Activity.Workers,
		WriteTimeout: cfg.Activity.WriteTimeout,
		OnWrite:      m.ActivityWritten,
		OnDrop:       m.ActivityDropped,
	})

	publisher := queue.NewPublisher(cfg.AMQP.URL, zl)

	// ---- Repositories and services ----
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	movies := repository.NewMovieRepo(db)
	showtimes := repository.NewShowtimeRepo(db)
	bookings := repository.NewBookingRepo(db)

	deps := service.BookingDeps{
		DB:        db,
		Showtimes: showtimes,
		Bookings:  bookings,
		Events:    publisher,
		Activity:  act,
		Metrics:   m,
		Log:       zl,
		Config:    cfg.Booking,
	}
	if rdb != nil {
		deps.Idempotency = service.NewRedisIdempotency(rdb, "", cfg.Booking.IdempotencyTTL)
	}
	bookingSvc := service.NewBookingService(deps)
	querySvc := service.NewQueryService(bookings)
	catalogSvc := service.NewCatalogService(movies, showtimes, act)

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		created, err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost)
		if err != nil {
			zl.Fatal("bootstrap admin", zap.Error(err))
		}
		if created {
			zl.Info("bootstrap admin created", zap.String("email", cfg.AdminEmail))
		}
	}

	// ---- Background workers ----
	if cfg.AMQP.ConsumerEnabled {
		consumer := &queue.Consumer{URL: cfg.AMQP.URL, LogDir: cfg.AMQP.LogDir, Log: zl}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("booking consumer stopped", zap.Error(err))
			}
		}()
	}

	sweeper := scheduler.NewSweeper(bookingSvc, bookingSvc.PendingTTL(), cfg.Booking.SweepInterval, act, zl)
	sweeper.PruneTokens(tokens, 24*time.Hour)
	if err := sweeper.Start(); err != nil {
		zl.Fatal("sweeper", zap.Error(err))
	}

	// ---- HTTP ----
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Observe(observedBodyBytes,
		middleware.RequestLog(zl),
		m.ObserveHTTP,
		act.ObserveHTTP,
	))

	catalogH := handler.NewCatalogHandler(catalogSvc)
	router.RegisterRoutes(e, db, m.Handler())
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, act, zl), cfg.JWTSecret)
	router.RegisterPublic(e, catalogH)
	router.RegisterBookings(e, handler.NewBookingHandler(bookingSvc, querySvc), cfg, rdb, zl)
	router.RegisterAdmin(e, router.AdminHandlers{
		Bookings: handler.NewAdminBookingHandler(bookingSvc, querySvc),
		Catalog:  catalogH,
		Logs:     handler.NewLogHandler(act, activity.NewAggregator(store)),
	}, cfg, rdb, zl)

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}
	if err := sweeper.Stop(); err != nil {
		zl.Warn("sweeper stop", zap.Error(err))
	}
	if err := act.Close(shutdownCtx); err != nil {
		zl.Warn("activity drain", zap.Error(err))
	}
	if err := publisher.Close(); err != nil {
		zl.Warn("publisher close", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if mongoClient != nil {
		_ = mongoClient.Disconnect(shutdownCtx)
	}
}
