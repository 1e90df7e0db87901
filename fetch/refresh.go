package fetch

import (
	"context"
	"sync"
	"time"

	"nanofeed/db"
	"nanofeed/models"
	"nanofeed/search"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "nanofeed_refresh_duration_seconds",
	Help:    "Duration of full refresh passes including the index rebuild",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // Start at 100ms, double each bucket, 10 buckets
})

const defaultConcurrency = 32

// Refresher fans the fetch worker out over all of a user's feeds with bounded
// concurrency and rebuilds the search index once every feed has completed.
type Refresher struct {
	fetcher     *Fetcher
	concurrency int

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

func NewRefresher(fetcher *Fetcher, concurrency int) *Refresher {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Refresher{
		fetcher:     fetcher,
		concurrency: concurrency,
		users:       make(map[string]*sync.Mutex),
	}
}

// userLock serializes concurrent refreshes for the same user so two batches
// cannot race on the index rebuild.
func (r *Refresher) userLock(username string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.users[username]
	if !ok {
		lock = &sync.Mutex{}
		r.users[username] = lock
	}
	return lock
}

// RefreshAll fetches every feed of the tenant. A failing feed never cancels
// its siblings; its error is recorded on the feed record instead. Every
// attempt stamps last_fetch_time. After the whole batch has completed the
// search index is rebuilt; a rebuild failure fails the refresh.
func (r *Refresher) RefreshAll(ctx context.Context, tenant *db.Tenant) error {
	lock := r.userLock(tenant.Username())
	lock.Lock()
	defer lock.Unlock()

	timer := prometheus.NewTimer(refreshDuration)
	defer timer.ObserveDuration()

	feeds, err := tenant.ListFeeds()
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"user":  tenant.Username(),
		"feeds": len(feeds),
	}).Info("Refreshing feeds")

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	var errMu sync.Mutex
	var storeErr error

	for _, feed := range feeds {
		wg.Add(1)
		go func(feed models.Feed) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			err := r.fetcher.FetchFeed(ctx, tenant, &feed)

			feed.LastFetchTime = time.Now().UTC()
			if err != nil {
				fetchErrors.Inc()
				msg := err.Error()
				feed.LastError = &msg
				log.WithFields(log.Fields{
					"feed":  feed.Url,
					"error": err,
				}).Warn("Feed refresh failed")
			} else {
				feed.LastError = nil
			}

			if err := tenant.InsertFeed(&feed); err != nil {
				errMu.Lock()
				if storeErr == nil {
					storeErr = err
				}
				errMu.Unlock()
			}
		}(feed)
	}

	wg.Wait()

	if storeErr != nil {
		return storeErr
	}

	return search.Rebuild(tenant)
}
