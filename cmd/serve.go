package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"nanofeed/config"
	"nanofeed/db"
	"nanofeed/fetch"
	"nanofeed/server"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the nanofeed HTTP API",
		Description: `Starts the nanofeed HTTP server and, when a refresh interval is
configured, the periodic refresh scheduler.

A seed user is provisioned on startup when both NANOFEED_USERNAME and
NANOFEED_PASSWORD are set.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to an optional TOML config file",
				EnvVars: []string{"NANOFEED_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "database",
				Usage:   "SQLite database file",
				EnvVars: []string{"NANOFEED_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "address",
				Usage:   "Address to listen on",
				EnvVars: []string{"NANOFEED_ADDRESS"},
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Port to listen on",
				EnvVars: []string{"NANOFEED_PORT"},
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Maximum number of in-flight feed fetches per refresh",
				EnvVars: []string{"NANOFEED_CONCURRENCY"},
			},
			&cli.IntFlag{
				Name:    "refresh-interval",
				Usage:   "Minutes between scheduled refreshes of all users, 0 disables",
				EnvVars: []string{"NANOFEED_REFRESH_INTERVAL"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			fmt.Println("Starting nanofeed...")

			if err := db.Migrate(cfg.Database); err != nil {
				return err
			}

			store, err := db.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			seedUser(store)

			fetcher := fetch.NewFetcher(
				time.Duration(cfg.FetchTimeoutSeconds)*time.Second,
				time.Duration(cfg.ConnectTimeoutSeconds)*time.Second,
			)
			refresher := fetch.NewRefresher(fetcher, cfg.Concurrency)
			scheduler := fetch.NewScheduler(store, refresher,
				time.Duration(cfg.RefreshIntervalMinutes)*time.Minute)

			app := server.Server(&server.ServerConfig{
				Store:     store,
				Refresher: refresher,
			})

			schedCtx, cancel := context.WithCancel(ctx.Context)
			defer cancel()
			go scheduler.Run(schedCtx)

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			go func() {
				<-c
				fmt.Println("Gracefully shutting down...")
				cancel()
				app.ShutdownWithTimeout(60 * time.Second)
			}()

			fmt.Println("Starting server...")
			if err := app.Listen(fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)); err != nil {
				return err
			}

			fmt.Println("Done!")
			return nil
		},
	}
}

// loadConfig merges the optional TOML file with flag overrides.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()

	if path := ctx.String("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if ctx.IsSet("database") {
		cfg.Database = ctx.String("database")
	}
	if ctx.IsSet("address") {
		cfg.Address = ctx.String("address")
	}
	if ctx.IsSet("port") {
		cfg.Port = ctx.Int("port")
	}
	if ctx.IsSet("concurrency") {
		cfg.Concurrency = ctx.Int("concurrency")
	}
	if ctx.IsSet("refresh-interval") {
		cfg.RefreshIntervalMinutes = ctx.Int("refresh-interval")
	}

	return cfg, nil
}

// seedUser provisions the account named by NANOFEED_USERNAME/NANOFEED_PASSWORD.
// Re-running against an existing account only logs a warning.
func seedUser(store *db.Store) {
	username, hasUsername := os.LookupEnv("NANOFEED_USERNAME")
	password, hasPassword := os.LookupEnv("NANOFEED_PASSWORD")

	switch {
	case hasUsername && hasPassword:
		user, err := store.CreateUser(username, password)
		if err != nil {
			log.Warnf("could not create user: %v", err)
			return
		}
		log.Infof("created user %s", user.Username)
	case hasUsername != hasPassword:
		log.Error("both NANOFEED_USERNAME and NANOFEED_PASSWORD need to be set to create a user")
	}
}
