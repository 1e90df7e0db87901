package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"nanofeed/db"
	"nanofeed/models"

	"github.com/mmcdole/gofeed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// Add Prometheus metrics
var (
	fetchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nanofeed_fetch_attempts_total",
		Help: "The total number of feed fetch attempts",
	})

	fetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nanofeed_fetch_errors_total",
		Help: "The total number of failed feed fetches",
	})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nanofeed_fetch_duration_seconds",
		Help:    "Duration of single feed fetches including parsing",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // Start at 50ms, double each bucket, 10 buckets
	})

	articlesUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nanofeed_articles_upserted_total",
		Help: "The total number of article upserts across all refreshes",
	})
)

const (
	defaultTimeout        = 20 * time.Second
	defaultConnectTimeout = 10 * time.Second
)

// Fetcher retrieves and parses a single feed and reconciles its entries
// against the stored articles.
type Fetcher struct {
	client *http.Client
}

// NewFetcher builds a fetcher with the given total and connect timeouts.
// Zero values fall back to the defaults (20s total, 10s connect).
func NewFetcher(timeout time.Duration, connectTimeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
			},
		},
	}
}

// FetchFeed retrieves one feed, parses it and upserts every entry into the
// tenant's corpus. Network and parse errors abort this feed only and are
// returned to the caller; the caller records them on the feed.
func (f *Fetcher) FetchFeed(ctx context.Context, tenant *db.Tenant, feed *models.Feed) error {
	fetchAttempts.Inc()
	timer := prometheus.NewTimer(fetchDuration)
	defer timer.ObserveDuration()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.Url, nil)
	if err != nil {
		return fmt.Errorf("bad feed url: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	now := time.Now().UTC()
	for _, item := range parsed.Items {
		article := reconcile(tenant, feed, item, now)
		if article == nil {
			continue
		}
		if err := tenant.UpsertArticle(article); err != nil {
			return err
		}
		articlesUpserted.Inc()
	}

	return nil
}

// reconcile maps one parsed entry onto an article record, preserving the
// previously stored publish time when the entry carries none. Returns nil for
// entries without a usable id.
func reconcile(tenant *db.Tenant, feed *models.Feed, item *gofeed.Item, now time.Time) *models.Article {
	id := item.GUID
	if id == "" {
		id = item.Link
	}
	if id == "" {
		log.WithFields(log.Fields{
			"feed":  feed.Url,
			"title": item.Title,
		}).Warn("Skipping entry without id or link")
		return nil
	}

	// A single corrupt prior record must not block ingestion of fresh data
	prev, err := tenant.GetArticle(id)
	if err != nil {
		log.WithFields(log.Fields{
			"article": id,
			"error":   err,
		}).Warn("Could not get article from db")
		prev = nil
	}

	url := item.Link
	if url == "" && len(item.Links) > 0 {
		url = item.Links[0]
	}

	published := now
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC()
	} else if prev != nil {
		published = prev.Published
	}

	return &models.Article{
		Id:        id,
		FeedId:    feed.Id,
		Published: published,
		Url:       url,
		Title:     item.Title,
		Summary:   item.Description,
		Content:   item.Content,
	}
}
