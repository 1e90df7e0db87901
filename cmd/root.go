package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "nanofeed",
		Usage: "A personal multi-tenant feed aggregation service",
		Description: `Nanofeed stores per-user feed subscriptions, periodically fetches
		and parses them, keeps a reconciled article corpus per user, and serves
		a searchable article list over an HTTP API.

		Flags can generally be set via environment variables, e.g.:

		--database => NANOFEED_DATABASE=nanofeed.db
		--port => NANOFEED_PORT=8888
		`,
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			addUserCmd(),
			refreshCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
