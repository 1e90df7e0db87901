package server_test

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nanofeed/db"
	"nanofeed/fetch"
	"nanofeed/models"
	"nanofeed/search"
	"nanofeed/server"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*fiber.App, *db.Store) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, db.Migrate(path))

	store, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.CreateUser("alice", "secret")
	require.NoError(t, err)

	app := server.Server(&server.ServerConfig{
		Store:     store,
		Refresher: fetch.NewRefresher(fetch.NewFetcher(0, 0), 4),
	})

	return app, store
}

func authHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func request(t *testing.T, app *fiber.App, method, target, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(fiber.HeaderAuthorization, authHeader("alice", "secret"))
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	resp, err := app.Test(req, 10000)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var value T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&value))
	return value
}

func TestUnauthorized(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/feeds", nil)
	resp, err := app.Test(req, 10000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/feeds", nil)
	req.Header.Set(fiber.HeaderAuthorization, authHeader("alice", "wrong"))
	resp, err = app.Test(req, 10000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestFeedLifecycle(t *testing.T) {
	app, _ := newTestApp(t)

	resp := request(t, app, http.MethodPost, "/api/v1/feeds",
		`{"url": "https://example.com/feed.xml", "name": "Example"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = request(t, app, http.MethodGet, "/api/v1/feeds", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	feeds := decode[[]models.Feed](t, resp)
	require.Len(t, feeds, 1)
	assert.Equal(t, "Example", feeds[0].Name)
	assert.NotZero(t, feeds[0].Id)

	resp = request(t, app, http.MethodPatch, "/api/v1/feeds",
		`{"id": `+jsonUint(feeds[0].Id)+`, "name": "Renamed"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = request(t, app, http.MethodGet, "/api/v1/feeds", "")
	feeds = decode[[]models.Feed](t, resp)
	require.Len(t, feeds, 1)
	assert.Equal(t, "Renamed", feeds[0].Name)
	assert.Equal(t, "https://example.com/feed.xml", feeds[0].Url)

	resp = request(t, app, http.MethodDelete, "/api/v1/feeds/"+jsonUint(feeds[0].Id), "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = request(t, app, http.MethodGet, "/api/v1/feeds", "")
	feeds = decode[[]models.Feed](t, resp)
	assert.Empty(t, feeds)
}

func jsonUint(id uint64) string {
	out, _ := json.Marshal(id)
	return string(out)
}

func TestPatchUnknownFeed(t *testing.T) {
	app, _ := newTestApp(t)

	resp := request(t, app, http.MethodPatch, "/api/v1/feeds", `{"id": 42, "name": "x"}`)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestInvalidFeedURL(t *testing.T) {
	app, _ := newTestApp(t)

	resp := request(t, app, http.MethodPost, "/api/v1/feeds", `{"url": "not a url"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func seedArticles(t *testing.T, store *db.Store) {
	t.Helper()
	tenant := store.OpenUser("alice")

	require.NoError(t, tenant.UpsertArticle(&models.Article{
		Id: "jan", FeedId: 1, Title: "bravo winter report",
		Published: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, tenant.UpsertArticle(&models.Article{
		Id: "feb", FeedId: 1, Title: "alpha spring preview",
		Published: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, tenant.UpsertArticle(&models.Article{
		Id: "mar", FeedId: 2, Title: "charlie summer outlook",
		Published: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, search.Rebuild(tenant))
}

func TestSearchDefaultOrdering(t *testing.T) {
	app, store := newTestApp(t)
	seedArticles(t, store)

	resp := request(t, app, http.MethodPost, "/api/v1/search", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	ids := decode[[]string](t, resp)
	assert.Equal(t, []string{"mar", "feb", "jan"}, ids)
}

func TestSearchOrdering(t *testing.T) {
	app, store := newTestApp(t)
	seedArticles(t, store)

	resp := request(t, app, http.MethodPost, "/api/v1/search?order=asc", "")
	ids := decode[[]string](t, resp)
	assert.Equal(t, []string{"jan", "feb", "mar"}, ids)

	// Title ordering defaults to ascending
	resp = request(t, app, http.MethodPost, "/api/v1/search?order_by=title", "")
	ids = decode[[]string](t, resp)
	assert.Equal(t, []string{"feb", "jan", "mar"}, ids)

	resp = request(t, app, http.MethodPost, "/api/v1/search?order_by=bogus", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSearchTermAndFeedFilter(t *testing.T) {
	app, store := newTestApp(t)
	seedArticles(t, store)

	resp := request(t, app, http.MethodPost, "/api/v1/search?q=alpha", "")
	ids := decode[[]string](t, resp)
	assert.Equal(t, []string{"feb"}, ids)

	resp = request(t, app, http.MethodPost, "/api/v1/search?feed_id=2", "")
	ids = decode[[]string](t, resp)
	assert.Equal(t, []string{"mar"}, ids)

	resp = request(t, app, http.MethodPost, "/api/v1/search?q=nosuchtoken", "")
	ids = decode[[]string](t, resp)
	assert.Empty(t, ids)
}

func TestStatus(t *testing.T) {
	app, store := newTestApp(t)
	seedArticles(t, store)

	resp := request(t, app, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	status := decode[models.Status](t, resp)
	assert.Equal(t, int64(3), status.TotalArticles)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), status.LastNewArticle.UTC())
}

func TestOPMLImportExport(t *testing.T) {
	app, _ := newTestApp(t)

	opml := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>subs</title></head>
  <body>
    <outline text="Tech">
      <outline text="Example" type="rss" xmlUrl="https://example.com/feed.xml"/>
    </outline>
    <outline text="News" type="rss" xmlUrl="https://news.example.org/rss"/>
  </body>
</opml>`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", strings.NewReader(opml))
	req.Header.Set(fiber.HeaderAuthorization, authHeader("alice", "secret"))
	resp, err := app.Test(req, 10000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = request(t, app, http.MethodGet, "/api/v1/feeds", "")
	feeds := decode[[]models.Feed](t, resp)
	require.Len(t, feeds, 2)

	resp = request(t, app, http.MethodPost, "/api/v1/export", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `xmlUrl="https://example.com/feed.xml"`)
	assert.Contains(t, string(body), `xmlUrl="https://news.example.org/rss"`)
}

func TestUsersDoNotSeeEachOther(t *testing.T) {
	app, store := newTestApp(t)
	seedArticles(t, store)

	_, err := store.CreateUser("bob", "secret")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/articles", nil)
	req.Header.Set(fiber.HeaderAuthorization, authHeader("bob", "secret"))
	resp, err := app.Test(req, 10000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	articles := decode[[]models.Article](t, resp)
	assert.Empty(t, articles)
}
