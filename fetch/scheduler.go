package fetch

import (
	"context"
	"time"

	"nanofeed/db"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// Scheduler periodically refreshes every provisioned user. A failed pass for
// a user is retried with exponential backoff before the next tick.
type Scheduler struct {
	store     *db.Store
	refresher *Refresher
	interval  time.Duration
}

func NewScheduler(store *db.Store, refresher *Refresher, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:     store,
		refresher: refresher,
		interval:  interval,
	}
}

// Run blocks until the context is cancelled. An interval of zero disables
// scheduled refreshes entirely.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		log.Info("Scheduled refresh disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Refresh immediately on startup
	s.runPass(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping refresh scheduler")
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	usernames, err := s.store.ListUsernames()
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Error("Could not list users for scheduled refresh")
		return
	}

	for _, username := range usernames {
		tenant := s.store.OpenUser(username)

		// Set up exponential backoff for the retry of this user's pass
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 1 * time.Second
		bo.MaxInterval = 1 * time.Minute
		bo.Multiplier = 1.5
		bo.MaxElapsedTime = 5 * time.Minute

		operation := func() error {
			return s.refresher.RefreshAll(ctx, tenant)
		}

		if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
			log.WithFields(log.Fields{
				"user":  username,
				"error": err,
			}).Error("Scheduled refresh failed")
		}
	}
}
