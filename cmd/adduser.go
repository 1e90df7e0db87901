package cmd

import (
	"fmt"

	"nanofeed/db"

	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	"github.com/urfave/cli/v2"
)

func addUserCmd() *cli.Command {
	return &cli.Command{
		Name:  "adduser",
		Usage: "Provision a new user account",
		Description: `Creates a user in the credential store. The password is read from
the --password flag when given, otherwise prompted for interactively.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Usage:   "SQLite database file",
				EnvVars: []string{"NANOFEED_DATABASE"},
				Value:   "nanofeed.db",
			},
			&cli.StringFlag{
				Name:     "username",
				Usage:    "Username of the new account",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "password",
				Usage: "Password of the new account, prompted for when omitted",
			},
		},
		Action: func(ctx *cli.Context) error {
			password := ctx.String("password")
			if password == "" {
				answer, err := prompt.New().Ask("Password:").Input("", input.WithEchoMode(input.EchoNone))
				if err != nil {
					return err
				}
				password = answer
			}

			if err := db.Migrate(ctx.String("database")); err != nil {
				return err
			}

			store, err := db.Open(ctx.String("database"))
			if err != nil {
				return err
			}
			defer store.Close()

			user, err := store.CreateUser(ctx.String("username"), password)
			if err != nil {
				return err
			}

			fmt.Printf("Created user %s\n", user.Username)
			return nil
		},
	}
}
