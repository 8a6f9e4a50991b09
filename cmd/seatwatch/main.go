// Command seatwatch logs in as a user and keeps a live copy of every
// venue's occupancy, printing it periodically.  It reconciles the same way
// a browser client does: optimistic local applies, websocket deltas and a
// periodic full refetch.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/campus-seat-reservation/internal/logging"
	"github.com/iliyamo/campus-seat-reservation/internal/reconciler"
)

func main() {
	api := flag.String("api", "http://localhost:8080", "server base URL")
	email := flag.String("email", "", "login email")
	password := flag.String("password", os.Getenv("SEATWATCH_PASSWORD"), "login password (or SEATWATCH_PASSWORD)")
	interval := flag.Duration("refetch", 30*time.Second, "full refetch interval")
	every := flag.Duration("print", 5*time.Second, "how often to print occupancy")
	level := flag.String("log-level", "info", "logrus level")
	flag.Parse()

	logging.Init("dev", *level)
	log := logrus.WithField("component", "seatwatch")
	if *email == "" || *password == "" {
		log.Fatal("-email and -password are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := reconciler.NewAPIClient(*api, nil)
	user, err := client.Login(ctx, *email, *password)
	if err != nil {
		log.WithError(err).Fatal("login failed")
	}
	log.WithField("user", user.Name).Info("logged in")

	sy := reconciler.NewSyncer(client, reconciler.WithInterval(*interval), reconciler.WithLogger(log))
	done := make(chan error, 1)
	go func() { done <- sy.Run(ctx) }()

	t := time.NewTicker(*every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := <-done; err != nil {
				log.WithError(err).Error("syncer stopped")
			}
			return
		case <-t.C:
			report(log, sy)
		}
	}
}

func report(log *logrus.Entry, sy *reconciler.Syncer) {
	s := sy.Snapshot()
	topics := make([]string, 0, len(s.Venues))
	for topic := range s.Venues {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	for _, topic := range topics {
		v := s.Venues[topic]
		log.WithFields(logrus.Fields{
			"venue":    v.Name,
			"kind":     v.Kind,
			"occupied": s.Occupied(v.Kind, v.ID),
		}).Info("occupancy")
	}
	log.WithFields(logrus.Fields{
		"bookings":  len(s.Bookings),
		"connected": sy.Connected(),
		"refetches": sy.Refetches(),
	}).Info("sync state")
}
