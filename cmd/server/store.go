package main

import (
	"context"
	"fmt"

	"github.com/iliyamo/campus-seat-reservation/internal/config"
	"github.com/iliyamo/campus-seat-reservation/internal/database"
	"github.com/iliyamo/campus-seat-reservation/internal/handler"
	"github.com/iliyamo/campus-seat-reservation/internal/repository"
	"github.com/iliyamo/campus-seat-reservation/internal/repository/memstore"
	"github.com/iliyamo/campus-seat-reservation/internal/reservation"
)

type venueStore interface {
	reservation.VenueReader
	handler.VenueCatalog
	handler.VenueProvisioner
	database.Provisioner
}

type userStore interface {
	handler.Accounts
	handler.SkillDirectory
	reservation.UserLocker
}

// backend is one seat store, MySQL or in-memory, seen through the views
// the engine and the handlers need.
type backend struct {
	tx     reservation.TxRunner
	venues venueStore
	seats  reservation.SeatStore
	ledger reservation.Ledger
	users  userStore
	tokens handler.RefreshTokens
	close  func() error
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	if cfg.Store == config.StoreMemory {
		s := memstore.New()
		return &backend{
			tx: s, venues: s.Venues(), seats: s.Seats(), ledger: s.Bookings(),
			users: s.Users(), tokens: s.Tokens(), close: func() error { return nil },
		}, nil
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if cfg.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	seats := repository.NewSeatRepo(db)
	return &backend{
		tx:     repository.NewTxManager(db),
		venues: repository.NewVenueRepo(db, seats),
		seats:  seats,
		ledger: repository.NewBookingRepo(db),
		users:  repository.NewUserRepo(db),
		tokens: repository.NewTokenRepo(db),
		close:  db.Close,
	}, nil
}
