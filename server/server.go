package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nanofeed/db"
	"nanofeed/fetch"
	"nanofeed/models"
	"nanofeed/search"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

type ServerConfig struct {

	// The store holding all user data
	Store *db.Store

	// The refresher to run on POST /api/v1/refresh
	Refresher *fetch.Refresher
}

// Returns a fiber.App instance to be used as the HTTP server for the
// nanofeed API
func Server(config *ServerConfig) *fiber.App {

	app := fiber.New()

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		// start timer
		start := time.Now()

		// next routes
		err := c.Next()

		// stop timer
		stop := time.Now()

		// Diff
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": stop.Sub(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())
	app.Use(cors.New())

	// Prometheus metrics, outside the authenticated API
	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	api := app.Group("/api/v1", basicAuth(config.Store))

	api.Get("/status", func(c *fiber.Ctx) error {
		status, err := tenant(config, c).Status()
		if err != nil {
			return sendError(c, err)
		}
		return c.JSON(status)
	})

	api.Get("/feeds", func(c *fiber.Ctx) error {
		feeds, err := tenant(config, c).ListFeeds()
		if err != nil {
			return sendError(c, err)
		}
		return c.JSON(feeds)
	})

	api.Post("/feeds", func(c *fiber.Ctx) error {
		var newFeed models.NewFeed
		if err := c.BodyParser(&newFeed); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid feed body")
		}

		if err := subscribe(tenant(config, c), newFeed); err != nil {
			return sendError(c, err)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	api.Patch("/feeds", func(c *fiber.Ctx) error {
		var patch models.FeedPatch
		if err := c.BodyParser(&patch); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid patch body")
		}

		if patch.Url != nil {
			if err := validateFeedURL(*patch.Url); err != nil {
				return c.Status(fiber.StatusBadRequest).SendString(err.Error())
			}
		}

		if err := tenant(config, c).PatchFeed(patch); err != nil {
			return sendError(c, err)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	api.Delete("/feeds/:id", func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid feed id")
		}

		if err := tenant(config, c).DeleteFeed(id); err != nil {
			return sendError(c, err)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	api.Get("/articles", func(c *fiber.Ctx) error {
		articles, err := tenant(config, c).ListArticles()
		if err != nil {
			return sendError(c, err)
		}
		return c.JSON(articles)
	})

	api.Post("/search", func(c *fiber.Ctx) error {
		query, err := parseArticleQuery(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}

		ids, err := searchArticles(tenant(config, c), query)
		if err != nil {
			return sendError(c, err)
		}
		return c.JSON(ids)
	})

	api.Post("/refresh", func(c *fiber.Ctx) error {
		if err := config.Refresher.RefreshAll(c.Context(), tenant(config, c)); err != nil {
			return sendError(c, err)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	api.Post("/import", func(c *fiber.Ctx) error {
		if err := importOPML(tenant(config, c), c.Body()); err != nil {
			return sendError(c, err)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	api.Post("/export", func(c *fiber.Ctx) error {
		kind := c.Query("kind", "opml")
		if kind != "opml" {
			return c.Status(fiber.StatusBadRequest).SendString("Unknown export kind")
		}

		document, err := exportOPML(tenant(config, c))
		if err != nil {
			return sendError(c, err)
		}

		c.Set(fiber.HeaderContentType, "text/x-opml")
		return c.SendString(document)
	})

	return app
}

// tenant resolves the per-user store handle for the authenticated request.
func tenant(config *ServerConfig, c *fiber.Ctx) *db.Tenant {
	return config.Store.OpenUser(c.Locals("username").(string))
}

// basicAuth validates the Authorization header against the credential store
// and stashes the username in the request locals.
func basicAuth(store *db.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		kind, payload, found := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
		if !found || kind != "Basic" {
			return c.Status(fiber.StatusUnauthorized).SendString("Basic authentication required")
		}

		// Accept both padded and unpadded base64
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(payload)
		}
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).SendString("Invalid authorization header")
		}

		username, password, found := strings.Cut(string(decoded), ":")
		if !found {
			return c.Status(fiber.StatusUnauthorized).SendString("Invalid authorization header")
		}

		user, err := store.TryLogin(username, password)
		if err != nil {
			return sendError(c, err)
		}

		c.Locals("username", user.Username)
		return c.Next()
	}
}

// sendError maps store errors onto HTTP statuses.
func sendError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, db.ErrUsernameTaken):
		return c.Status(fiber.StatusBadRequest).SendString("Username already taken")
	case errors.Is(err, db.ErrUnknownUser), errors.Is(err, db.ErrPasswordIncorrect):
		return c.Status(fiber.StatusUnauthorized).SendString("Username or password incorrect")
	case errors.Is(err, db.ErrNotFound):
		return c.Status(fiber.StatusNotFound).SendString(err.Error())
	default:
		log.WithFields(log.Fields{
			"route": c.Route().Path,
			"error": err,
		}).Error("Request failed")
		return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
	}
}

func validateFeedURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid feed url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid feed url scheme: %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("feed url without host")
	}
	return nil
}

// subscribe registers a new feed with a generated id.
func subscribe(t *db.Tenant, newFeed models.NewFeed) error {
	if err := validateFeedURL(newFeed.Url); err != nil {
		return err
	}

	id, err := t.NextID()
	if err != nil {
		return err
	}

	return t.InsertFeed(&models.Feed{
		Id:      id,
		Url:     newFeed.Url,
		Name:    lo.FromPtr(newFeed.Name),
		Scraper: newFeed.Scraper,
	})
}

func parseArticleQuery(c *fiber.Ctx) (models.ArticleQuery, error) {
	var query models.ArticleQuery

	if q := c.Query("q"); q != "" {
		query.Term = &q
	}

	if raw := c.Query("feed_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return query, fmt.Errorf("invalid feed_id: %q", raw)
		}
		query.FeedId = &id
	}

	if raw := c.Query("order_by"); raw != "" {
		orderBy := models.OrderBy(raw)
		if orderBy != models.OrderByTitle && orderBy != models.OrderByPublished {
			return query, fmt.Errorf("invalid order_by: %q", raw)
		}
		query.OrderBy = &orderBy
	}

	if raw := c.Query("order"); raw != "" {
		order := models.Order(raw)
		if order != models.OrderAsc && order != models.OrderDesc {
			return query, fmt.Errorf("invalid order: %q", raw)
		}
		query.Order = &order
	}

	return query, nil
}

// searchArticles applies the term filter via the persisted index, then the
// feed filter, then the requested ordering, and returns article ids.
func searchArticles(t *db.Tenant, query models.ArticleQuery) ([]string, error) {
	articles, err := t.ListArticles()
	if err != nil {
		return nil, err
	}

	if query.Term != nil {
		ids, err := search.Query(t, *query.Term)
		if err != nil {
			return nil, err
		}
		matched := lo.SliceToMap(ids, func(id string) (string, struct{}) {
			return id, struct{}{}
		})
		articles = lo.Filter(articles, func(article models.Article, _ int) bool {
			_, ok := matched[article.Id]
			return ok
		})
	}

	if query.FeedId != nil {
		articles = lo.Filter(articles, func(article models.Article, _ int) bool {
			return article.FeedId == *query.FeedId
		})
	}

	models.SortArticles(articles, query.OrderBy, query.Order)

	return lo.Map(articles, func(article models.Article, _ int) string {
		return article.Id
	}), nil
}
