package search

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"nanofeed/db"
	"nanofeed/models"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// indexKey is the single reserved key holding the serialized index inside a
// tenant's index namespace.
const indexKey = "__article_search_index"

// Index maps a normalized token to the sorted ids of all articles containing
// it. It is rebuilt from the full corpus, never merged.
type Index map[string][]string

// Tokenize lowercases the text and splits it on anything that is not a letter
// or a digit. The same policy is applied at build and at query time.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Build derives the index from the complete article corpus.
func Build(articles []models.Article) Index {
	postings := make(map[string]map[string]struct{})

	for _, article := range articles {
		for _, field := range []string{article.Title, article.Summary, article.Content} {
			for _, token := range Tokenize(field) {
				if postings[token] == nil {
					postings[token] = make(map[string]struct{})
				}
				postings[token][article.Id] = struct{}{}
			}
		}
	}

	index := make(Index, len(postings))
	for token, ids := range postings {
		sorted := lo.Keys(ids)
		sort.Strings(sorted)
		index[token] = sorted
	}

	return index
}

// Search returns the ids of articles containing every token of the term.
// Unknown tokens yield an empty result.
func (index Index) Search(term string) []string {
	tokens := Tokenize(term)
	if len(tokens) == 0 {
		return []string{}
	}

	results := index[tokens[0]]
	for _, token := range tokens[1:] {
		results = lo.Intersect(results, index[token])
	}

	if results == nil {
		return []string{}
	}
	return results
}

// Rebuild scans the tenant's whole corpus, derives a fresh index and
// overwrites the persisted blob. Full replace, not a merge.
func Rebuild(tenant *db.Tenant) error {
	articles, err := tenant.ListArticles()
	if err != nil {
		return fmt.Errorf("failed to list articles for indexing: %w", err)
	}

	index := Build(articles)

	value, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("encode error: %w", err)
	}

	if err := tenant.PutIndexBlob(indexKey, value); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"user":     tenant.Username(),
		"articles": len(articles),
		"tokens":   len(index),
	}).Info("Rebuilt search index")

	return nil
}

// Load reads the persisted index for a tenant. An absent blob is an empty
// index, not an error.
func Load(tenant *db.Tenant) (Index, error) {
	value, ok, err := tenant.GetIndexBlob(indexKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Index{}, nil
	}

	var index Index
	if err := json.Unmarshal(value, &index); err != nil {
		return nil, fmt.Errorf("decode error: %w", err)
	}
	return index, nil
}

// Query loads the persisted index and answers a term search. The result may
// be stale relative to articles written after the last rebuild.
func Query(tenant *db.Tenant, term string) ([]string, error) {
	index, err := Load(tenant)
	if err != nil {
		return nil, err
	}
	return index.Search(term), nil
}
