package db

import (
	"encoding/json"
	"fmt"

	"nanofeed/models"
)

// GetArticle is a point lookup by entry id; absent ids return (nil, nil).
func (t *Tenant) GetArticle(id string) (*models.Article, error) {
	value, ok, err := t.store.Get(t.articlesNS, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var article models.Article
	if err := json.Unmarshal(value, &article); err != nil {
		return nil, fmt.Errorf("decode error: %w", err)
	}
	return &article, nil
}

// UpsertArticle writes an article record, fully replacing any previous record
// with the same id. Reconciliation of the published field happens in the
// fetch worker before this is called.
func (t *Tenant) UpsertArticle(article *models.Article) error {
	value, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("encode error: %w", err)
	}
	return t.store.Put(t.articlesNS, article.Id, value)
}

// ListArticles scans the tenant's whole corpus in key order.
func (t *Tenant) ListArticles() ([]models.Article, error) {
	items, err := t.store.List(t.articlesNS)
	if err != nil {
		return nil, err
	}

	articles := make([]models.Article, 0, len(items))
	for _, item := range items {
		var article models.Article
		if err := json.Unmarshal(item.Value, &article); err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
		articles = append(articles, article)
	}
	return articles, nil
}

// PutIndexBlob overwrites the tenant's single persisted search index blob.
func (t *Tenant) PutIndexBlob(key string, value []byte) error {
	return t.store.Put(t.indexNS, key, value)
}

// GetIndexBlob reads the persisted search index blob; ok=false when no index
// has been built yet.
func (t *Tenant) GetIndexBlob(key string) ([]byte, bool, error) {
	return t.store.Get(t.indexNS, key)
}
