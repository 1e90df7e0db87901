package db

import (
	"nanofeed/models"
)

const (
	nsUsers    = "users"
	nsFeeds    = "feeds"
	nsArticles = "articles"
	nsIndex    = "index"
)

// Tenant is a per-user view of the store. Namespaces are derived from the
// username, so two users can never collide on a key.
type Tenant struct {
	store    *Store
	username string

	feedsNS    string
	articlesNS string
	indexNS    string
}

// OpenUser resolves the per-user namespaces. Opening is cheap and idempotent;
// it performs no I/O on its own.
func (store *Store) OpenUser(username string) *Tenant {
	return &Tenant{
		store:      store,
		username:   username,
		feedsNS:    username + "/" + nsFeeds,
		articlesNS: username + "/" + nsArticles,
		indexNS:    username + "/" + nsIndex,
	}
}

func (t *Tenant) Username() string {
	return t.username
}

// NextID returns a fresh feed id from the store-wide sequence.
func (t *Tenant) NextID() (uint64, error) {
	return t.store.NextID()
}

// Status summarizes the tenant's corpus: article count and the newest
// publish timestamp.
func (t *Tenant) Status() (*models.Status, error) {
	articles, err := t.ListArticles()
	if err != nil {
		return nil, err
	}

	status := &models.Status{}
	for _, article := range articles {
		status.TotalArticles++
		if article.Published.After(status.LastNewArticle) {
			status.LastNewArticle = article.Published
		}
	}

	return status, nil
}
