// Package server is the krakbit backend: it speaks the client_comms protocol
// over WebSocket, serves the single-shot endpoints, and optionally archives
// completed digests and generates on a schedule.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/krakenlabs/krakbit/config"
	"github.com/krakenlabs/krakbit/internal/archive"
	"github.com/krakenlabs/krakbit/internal/generate"
	"github.com/krakenlabs/krakbit/internal/trending"
	"github.com/krakenlabs/krakbit/models"
)

// Run assembles the backend from configuration and serves until the process
// exits.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	origins := cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "Kraken.") })
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	var rdb *redis.Client
	if addr := cfg.Databases.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Databases.Redis.Password, DB: cfg.Databases.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", addr, err)
		}
	}

	var store *archive.Store
	if dsn := cfg.Databases.Postgres.DSN(); dsn != "" {
		if err := archive.Migrate("file://migrations", dsn, "up", 0); err != nil {
			baseLogger.Printf("archive migrate: %v", err)
		}
		var err error
		store, err = archive.NewWithDSN(ctx, dsn)
		if err != nil {
			return err
		}
	}

	var gen generate.Generator
	var answerer generate.Answerer
	if cfg.Providers.OpenAI.APIKey != "" {
		client := generate.NewOpenAIClient(cfg.Providers.OpenAI, nil)
		gen, answerer = client, client
	} else {
		baseLogger.Printf("no OpenAI key configured, serving the sample digest")
		gen = &generate.StaticGenerator{
			Statuses: []string{"Connecting to Server", "Composing Articles"},
			Items:    sampleItems(),
		}
		answerer = &generate.StaticAnswerer{}
	}

	var feed trending.Provider
	if cfg.Trending.SourceURL != "" {
		feed = trending.NewHTTPProvider(cfg.Trending.SourceURL, 15*time.Second)
	} else {
		feed = trending.Static(samplePosts())
	}
	if rdb != nil {
		feed = trending.NewCached(feed, rdb, cfg.Trending.CacheKey, cfg.Trending.CacheTTL, nil)
	}

	h := &Handlers{Trending: feed, Answerer: answerer, Archive: store, Logger: baseLogger}
	h.Register(e)

	ws := &WSHandler{Gen: gen, Trending: feed, Archive: store,
		Logger: log.New(log.Writer(), "[WS] ", log.LstdFlags)}
	ws.Register(e)

	if cfg.Schedule.Enabled {
		sched := &Scheduler{
			Gen:     gen,
			Archive: store,
			Rdb:     rdb,
			Cron:    cfg.Schedule.Cron,
			Query:   cfg.Schedule.Query,
			Stop:    make(chan struct{}),
			Logger:  log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
		}
		sched.Start()
	}

	addr := cfg.Server.Listen
	if addr == "" {
		addr = ":8000"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// sampleItems is the dev-mode digest served when no provider is configured.
func sampleItems() []models.Item {
	now := time.Now().UTC()
	return []models.Item{
		{
			ID:            "sample-1",
			Headline:      "Exchange outage resolved after six hours",
			Content:       "Withdrawals resumed this morning after an unexplained pause. The operator blamed a database failover.",
			DatePublished: now,
			LeadSource:    "https://example.com/outage",
			Sources: map[string]models.Source{
				"0": {URL: "https://example.com/outage"},
				"1": {URL: "https://example.com/analysis", Title: "Independent analysis"},
			},
			Insights: models.Insights{
				Summary:  "Short-lived outages rarely move majors for long.",
				Positive: models.InsightPoint{Headline: "Confidence recovers", Description: "Flows normalised within hours."},
				Negative: models.InsightPoint{Headline: "Trust erodes", Description: "Repeated incidents push volume to rivals."},
			},
		},
		{
			ID:            "sample-2",
			Headline:      "Layer 2 fees hit a yearly low",
			Content:       "Average transaction fees across major rollups fell below one cent this week.",
			DatePublished: now,
			LeadSource:    "https://example.com/fees",
			Sources:       map[string]models.Source{"0": {URL: "https://example.com/fees"}},
			Insights: models.Insights{
				Summary:  "Cheap blockspace favours consumer apps.",
				Positive: models.InsightPoint{Headline: "Usage grows", Description: "Lower fees widen the addressable market."},
				Negative: models.InsightPoint{Headline: "Margins shrink", Description: "Sequencer revenue falls with fees."},
			},
		},
	}
}

func samplePosts() []models.TrendingPost {
	return []models.TrendingPost{
		{ID: "1", AuthorDisplayName: "Sat", AuthorHandle: "sat", Text: "gm. fees at yearly lows.", CreatedAt: time.Now().UTC()},
		{ID: "2", AuthorDisplayName: "Deg", AuthorHandle: "deg", Text: "outage fud already priced in", CreatedAt: time.Now().UTC()},
	}
}
