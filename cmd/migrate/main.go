package main

import (
	"errors"
	"fmt"
	"os"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/noah-isme/backend-detailing/internal/migration"
	"github.com/noah-isme/backend-detailing/internal/obs"
)

func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info")

	cliApp := &cli.App{
		Name:  "migrate",
		Usage: "apply the embedded database schema",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "database-url", EnvVars: []string{"DATABASE_URL"}, Required: true},
		},
		Commands: []*cli.Command{
			{Name: "up", Usage: "apply all pending migrations", Action: withMigrator(migration.Up)},
			{Name: "down", Usage: "roll back the latest migration", Action: withMigrator(migration.Down)},
			{Name: "version", Usage: "print the current schema version", Action: withMigrator(func(m *migrate.Migrate) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Println("no migrations applied")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("version %d dirty=%t\n", version, dirty)
				return nil
			})},
		},
	}
	if err := cliApp.Run(os.Args); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
}

func withMigrator(fn func(*migrate.Migrate) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		m, err := migration.New(c.String("database-url"))
		if err != nil {
			return err
		}
		defer func() { _, _ = m.Close() }()
		return fn(m)
	}
}
