package cmd

import (
	"fmt"

	"nanofeed/db"

	"github.com/urfave/cli/v2"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Runs database migrations on the configured database. Will create the database if it does not exist.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Usage:   "SQLite database file",
				EnvVars: []string{"NANOFEED_DATABASE"},
				Value:   "nanofeed.db",
			},
		},
		Action: func(ctx *cli.Context) error {
			fmt.Printf("Database configured: %s\n", ctx.String("database"))
			return db.Migrate(ctx.String("database"))
		},
	}
}
