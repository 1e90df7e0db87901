package db

import (
	"encoding/json"
	"fmt"

	"nanofeed/models"
)

// feedKey zero-pads the id so lexicographic key order matches numeric order.
func feedKey(id uint64) string {
	return fmt.Sprintf("%020d", id)
}

// InsertFeed writes a feed record, replacing any previous record with the
// same id.
func (t *Tenant) InsertFeed(feed *models.Feed) error {
	value, err := json.Marshal(feed)
	if err != nil {
		return fmt.Errorf("encode error: %w", err)
	}
	return t.store.Put(t.feedsNS, feedKey(feed.Id), value)
}

// GetFeed is a point lookup; absent ids return (nil, nil).
func (t *Tenant) GetFeed(id uint64) (*models.Feed, error) {
	value, ok, err := t.store.Get(t.feedsNS, feedKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var feed models.Feed
	if err := json.Unmarshal(value, &feed); err != nil {
		return nil, fmt.Errorf("decode error: %w", err)
	}
	return &feed, nil
}

// ListFeeds scans the whole feed registry in id order.
func (t *Tenant) ListFeeds() ([]models.Feed, error) {
	items, err := t.store.List(t.feedsNS)
	if err != nil {
		return nil, err
	}

	feeds := make([]models.Feed, 0, len(items))
	for _, item := range items {
		var feed models.Feed
		if err := json.Unmarshal(item.Value, &feed); err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, nil
}

// PatchFeed overlays the supplied fields onto the stored record and writes it
// back. Unknown ids fail with ErrNotFound.
func (t *Tenant) PatchFeed(patch models.FeedPatch) error {
	feed, err := t.GetFeed(patch.Id)
	if err != nil {
		return err
	}
	if feed == nil {
		return fmt.Errorf("feed %d: %w", patch.Id, ErrNotFound)
	}

	patch.Apply(feed)

	return t.InsertFeed(feed)
}

// DeleteFeed unsubscribes a feed. Its articles stay in the corpus.
func (t *Tenant) DeleteFeed(id uint64) error {
	return t.store.Delete(t.feedsNS, feedKey(id))
}
