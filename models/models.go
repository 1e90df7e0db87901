package models

import (
	"encoding/json"
	"sort"
	"time"
)

// User is a provisioned account. The password hash is never serialized
// back out over the API.
type User struct {
	Username string `json:"username"`
	PassHash string `json:"-"`
}

// NewUser carries the credentials for provisioning an account.
type NewUser struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ScraperConfig is a per-feed scraper configuration. Currently an empty
// extension point, kept so feeds can round-trip it.
type ScraperConfig struct{}

// Feed is a subscribed syndication source owned by a single user.
type Feed struct {
	Id      uint64         `json:"id"`
	Url     string         `json:"url"`
	Name    string         `json:"name"`
	Scraper *ScraperConfig `json:"scraper,omitempty"`

	// LastFetchTime is updated on every refresh attempt, success or not.
	LastFetchTime time.Time `json:"last_fetch_time"`
	// LastError holds the most recent fetch failure, nil after a success.
	LastError *string `json:"last_error,omitempty"`
}

// NewFeed is the subscription request body.
type NewFeed struct {
	Url     string         `json:"url"`
	Name    *string        `json:"name,omitempty"`
	Scraper *ScraperConfig `json:"scraper,omitempty"`
}

// ScraperPatch distinguishes "leave the scraper config alone" (key absent)
// from "clear it" (explicit null) in a feed patch.
type ScraperPatch struct {
	Set   bool
	Value *ScraperConfig
}

func (p *ScraperPatch) UnmarshalJSON(data []byte) error {
	p.Set = true
	if string(data) == "null" {
		p.Value = nil
		return nil
	}
	return json.Unmarshal(data, &p.Value)
}

func (p ScraperPatch) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Value)
}

// FeedPatch is a partial update of a stored feed. Nil fields are left
// untouched by Apply.
type FeedPatch struct {
	Id      uint64       `json:"id"`
	Url     *string      `json:"url,omitempty"`
	Name    *string      `json:"name,omitempty"`
	Scraper ScraperPatch `json:"scraper,omitempty"`
}

// Apply overlays the patch onto a stored feed, one rule per field.
func (p FeedPatch) Apply(feed *Feed) {
	if p.Url != nil {
		feed.Url = *p.Url
	}
	if p.Name != nil {
		feed.Name = *p.Name
	}
	if p.Scraper.Set {
		feed.Scraper = p.Scraper.Value
	}
}

// Article is the persisted, reconciled form of one feed entry. Identity is
// the entry's own id, scoped to the owning user's corpus.
type Article struct {
	Id        string    `json:"id"`
	FeedId    uint64    `json:"feed_id"`
	Published time.Time `json:"published"`
	Url       string    `json:"url,omitempty"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Content   string    `json:"content"`
}

// Status summarizes a user's corpus.
type Status struct {
	LastNewArticle time.Time `json:"last_new_article"`
	TotalArticles  int64     `json:"total_articles"`
}

type OrderBy string

const (
	OrderByTitle     OrderBy = "title"
	OrderByPublished OrderBy = "published"
)

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ArticleQuery filters and orders a user's article listing. A nil Term skips
// the search index entirely; a nil FeedId skips the feed filter. Zero-valued
// OrderBy/Order fall back to the defaults in SortArticles.
type ArticleQuery struct {
	Term    *string  `json:"q,omitempty"`
	FeedId  *uint64  `json:"feed_id,omitempty"`
	OrderBy *OrderBy `json:"order_by,omitempty"`
	Order   *Order   `json:"order,omitempty"`
}

// SortArticles orders articles in place. Defaults: published descending, or
// ascending when ordering by title.
func SortArticles(articles []Article, orderBy *OrderBy, order *Order) {
	by := OrderByPublished
	if orderBy != nil {
		by = *orderBy
	}

	dir := OrderDesc
	if by == OrderByTitle {
		dir = OrderAsc
	}
	if order != nil {
		dir = *order
	}

	switch by {
	case OrderByTitle:
		sort.SliceStable(articles, func(i, j int) bool {
			return articles[i].Title < articles[j].Title
		})
	default:
		sort.SliceStable(articles, func(i, j int) bool {
			return articles[i].Published.Before(articles[j].Published)
		})
	}

	if dir == OrderDesc {
		for i, j := 0, len(articles)-1; i < j; i, j = i+1, j-1 {
			articles[i], articles[j] = articles[j], articles[i]
		}
	}
}
