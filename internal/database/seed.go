package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// Provisioner creates venues together with their seats.
type Provisioner interface {
	Create(ctx context.Context, v *model.Venue) error
	Count(ctx context.Context) (int, error)
}

// TxRunner runs fn inside one store transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Seed provisions the demo campus (three libraries and two upcoming events)
// when no venue exists yet.  It returns the number of venues created.  All
// seats start free: an occupied seat without an active booking would have
// no one able to release it.
func Seed(ctx context.Context, tx TxRunner, p Provisioner, now time.Time) (int, error) {
	n, err := p.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count venues: %w", err)
	}
	if n > 0 {
		logrus.WithField("venues", n).Info("seed skipped, venues already present")
		return 0, nil
	}

	venues := DemoVenues(now)
	for i := range venues {
		v := &venues[i]
		err := tx.WithTx(ctx, func(ctx context.Context) error { return p.Create(ctx, v) })
		if err != nil {
			return i, fmt.Errorf("seed %s: %w", venues[i].Name, err)
		}
	}
	logrus.WithField("venues", len(venues)).Info("demo venues seeded")
	return len(venues), nil
}

// DemoVenues returns the demo catalog.  Event dates are relative to now so
// the events list is never empty on a fresh install.
func DemoVenues(now time.Time) []model.Venue {
	day := now.UTC().Truncate(24 * time.Hour)
	summit := day.AddDate(0, 0, 14).Add(10 * time.Hour)
	fest := day.AddDate(0, 0, 21).Add(18 * time.Hour)
	tiers := []decimal.Decimal{
		decimal.NewFromInt(100), decimal.NewFromInt(100),
		decimal.NewFromInt(75), decimal.NewFromInt(75),
		decimal.NewFromInt(50),
	}

	return []model.Venue{
		library("Central Library", "Ground Floor", 100),
		library("Science Library", "First Floor", 80),
		library("Digital Library", "Second Floor", 60),
		{
			Kind:        model.VenueEvent,
			Name:        "Tech Innovation Summit",
			Description: "Annual technology summit featuring industry leaders",
			Category:    "Technology",
			Location:    "Main Auditorium",
			StartsAt:    &summit,
			TotalSeats:  200,
			Seats:       model.RowSeats(200, 25, model.TieredPrice(50, tiers...)),
		},
		{
			Kind:        model.VenueEvent,
			Name:        "Cultural Fest",
			Description: "Traditional and modern cultural performances",
			Category:    "Cultural",
			Location:    "Open Theatre",
			StartsAt:    &fest,
			TotalSeats:  300,
			Seats:       model.RowSeats(300, 30, model.TieredPrice(75, tiers...)),
		},
	}
}

func library(name, floor string, seats int) model.Venue {
	return model.Venue{
		Kind:       model.VenueLibrary,
		Name:       name,
		Floor:      floor,
		TotalSeats: seats,
		Seats:      model.NumberedSeats(seats),
	}
}
