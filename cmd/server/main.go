package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/campus-seat-reservation/internal/clock"
	"github.com/iliyamo/campus-seat-reservation/internal/config"
	"github.com/iliyamo/campus-seat-reservation/internal/database"
	"github.com/iliyamo/campus-seat-reservation/internal/handler"
	"github.com/iliyamo/campus-seat-reservation/internal/logging"
	"github.com/iliyamo/campus-seat-reservation/internal/middleware"
	"github.com/iliyamo/campus-seat-reservation/internal/queue"
	"github.com/iliyamo/campus-seat-reservation/internal/realtime"
	"github.com/iliyamo/campus-seat-reservation/internal/reservation"
	"github.com/iliyamo/campus-seat-reservation/internal/router"
)

const (
	auditBuffer     = 1024
	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("could not read .env")
	}
	cfg := config.Load()
	logging.Init(cfg.Env, cfg.LogLevel)
	log := logrus.WithField("env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("bye")
}

func run(ctx context.Context, cfg config.Config, log *logrus.Entry) error {
	store, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	if cfg.Seed {
		if _, err := database.Seed(ctx, store.tx, store.venues, time.Now().UTC()); err != nil {
			return err
		}
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	rt := config.LoadRealtimeConfig()
	if rt.Relay == config.RelayRedis && rdb == nil {
		log.Warn("redis relay requested but redis is down, using in-process relay")
		rt.Relay = config.RelayMemory
	}
	hub := realtime.NewHub(log)
	pub, sub, err := realtime.NewRelay(rt, rdb, logging.NewWatermill(log))
	if err != nil {
		return err
	}
	bc := realtime.NewBroadcaster(hub, pub, sub, rt, log)

	opts := []reservation.Option{reservation.WithNotifier(bc), reservation.WithLogger(log)}
	var audit *queue.Publisher
	if cfg.RabbitURL != "" {
		audit = queue.NewPublisher(cfg.RabbitURL, auditBuffer, log)
		opts = append(opts, reservation.WithAuditor(audit))
	}
	engine := reservation.New(reservation.Deps{
		Tx: store.tx, Venues: store.venues, Seats: store.seats, Ledger: store.ledger, Users: store.users,
	}, opts...)

	e := router.New(router.Deps{
		JWTSecret: cfg.JWTSecret,
		Auth:      handler.NewAuthHandler(cfg, store.tx, store.users, store.tokens),
		Venues:    handler.NewVenueHandler(store.venues, engine, clock.NewSystem()),
		Directory: handler.NewDirectoryHandler(store.users),
		Admin:     handler.NewAdminHandler(store.tx, store.venues, engine),
		Hub:       hub,
		Realtime:  realtime.NewServer(hub, rt, log, realtime.WithVenues(store.venues)),
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	}, log)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bc.Run(gctx) })
	if audit != nil {
		g.Go(func() error { return audit.Run(gctx) })
	}
	if cfg.AuditConsumer && cfg.RabbitURL != "" {
		consumer := queue.NewConsumer(cfg.RabbitURL, cfg.AuditLogDir, log)
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error {
		log.WithField("addr", srv.Addr).WithField("store", cfg.Store).Info("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// websocket connections are hijacked; Shutdown does not wait for them
		hub.Close()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	if cerr := bc.Close(); cerr != nil {
		log.WithError(cerr).Warn("relay close")
	}
	return err
}
