package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/autoshophq/go-autoshop-backend/internal/config"
	"github.com/autoshophq/go-autoshop-backend/internal/domain"
	"github.com/autoshophq/go-autoshop-backend/internal/migration"
	"github.com/autoshophq/go-autoshop-backend/internal/repo"
	"github.com/autoshophq/go-autoshop-backend/internal/services"
	"github.com/autoshophq/go-autoshop-backend/internal/sysutil"
	"github.com/autoshophq/go-autoshop-backend/internal/transfer"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:    "shopctl",
		Usage:   "Auto shop backend: user store, store-to-store migration, reports",
		Version: version,
		Before: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return cli.Exit(fmt.Sprintf("configuration: %v", err), 2)
			}
			sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)
			c.App.Metadata["cfg"] = cfg
			return nil
		},
		Commands: []*cli.Command{
			userCommand(),
			carCommand(),
			migrateCommand(),
			reportCommand(),
			sweepCommand(),
			sweeperCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(exitCode(err))
	}
}

func appFrom(c *cli.Context) (*app, error) {
	cfg := c.App.Metadata["cfg"].(config.Config)
	return buildApp(cfg)
}

// exitCode maps error categories to process exit codes without leaking
// storage-layer detail: 2 for caller mistakes, 3 for state conflicts,
// 4 for missing remote artifacts, 1 for everything else.
func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	switch {
	case errors.Is(err, services.ErrMissingIdempotencyKey),
		errors.Is(err, services.ErrInvalidIdempotencyKey),
		errors.Is(err, services.ErrMissingColumn),
		errors.Is(err, migration.ErrColumnMismatch):
		return 2
	case errors.Is(err, services.ErrConsistencyViolation),
		errors.Is(err, services.ErrReplayTargetMissing):
		return 3
	case errors.Is(err, transfer.ErrNotFound),
		errors.Is(err, repo.ErrNotFound):
		return 4
	default:
		return 1
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "User operations",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a user exactly once per idempotency key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.IntFlag{Name: "car-id", Usage: "Optional car to associate"},
					&cli.StringFlag{
						Name:    "idempotency-key",
						Aliases: []string{"k"},
						Usage:   "Client-chosen key; retries with the same key replay the first result (default: fresh UUID)",
					},
				},
				Action: func(c *cli.Context) error {
					a, err := appFrom(c)
					if err != nil {
						return err
					}
					defer a.close()

					u := &domain.User{
						Name:     c.String("name"),
						Email:    c.String("email"),
						Password: c.String("password"),
					}
					if c.IsSet("car-id") {
						id := c.Int("car-id")
						u.CarID = &id
					}
					key := c.String("idempotency-key")
					if key == "" {
						key = uuid.NewString()
						log.Info().Str("idempotency_key", key).Msg("no key supplied, generated one; reuse it to retry safely")
					}
					res, err := a.users.CreateUser(c.Context, key, u)
					if err != nil {
						return err
					}
					return printJSON(map[string]any{
						"id":       res.User.ID,
						"name":     res.User.Name,
						"email":    res.User.Email,
						"replayed": res.Replayed,
					})
				},
			},
			{
				Name:  "get",
				Usage: "Fetch a user by id",
				Flags: []cli.Flag{&cli.IntFlag{Name: "id", Required: true}},
				Action: func(c *cli.Context) error {
					a, err := appFrom(c)
					if err != nil {
						return err
					}
					defer a.close()
					u, err := a.users.GetUser(c.Context, c.Int("id"))
					if err != nil {
						return err
					}
					return printJSON(u)
				},
			},
			{
				Name:  "list",
				Usage: "List all users",
				Action: func(c *cli.Context) error {
					a, err := appFrom(c)
					if err != nil {
						return err
					}
					defer a.close()
					us, err := a.users.ListUsers(c.Context)
					if err != nil {
						return err
					}
					return printJSON(us)
				},
			},
			{
				Name:  "update",
				Usage: "Replace a user's fields",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.IntFlag{Name: "car-id"},
				},
				Action: func(c *cli.Context) error {
					a, err := appFrom(c)
					if err != nil {
						return err
					}
					defer a.close()
					u := &domain.User{
						Name:     c.String("name"),
						Email:    c.String("email"),
						Password: c.String("password"),
					}
					if c.IsSet("car-id") {
						id := c.Int("car-id")
						u.CarID = &id
					}
					return a.users.UpdateUser(c.Context, c.Int("id"), u)
				},
			},
			{
				Name:  "delete",
				Usage: "Delete a user by id",
				Flags: []cli.Flag{&cli.IntFlag{Name: "id", Required: true}},
				Action: func(c *cli.Context) error {
					a, err := appFrom(c)
					if err != nil {
						return err
					}
					defer a.close()
					return a.users.DeleteUser(c.Context, c.Int("id"))
				},
			},
		},
	}
}

func carCommand() *cli.Command {
	return &cli.Command{
		Name:  "car",
		Usage: "Car operations",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a car for users to reference",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "make", Required: true},
					&cli.StringFlag{Name: "model", Required: true},
				},
				Action: func(c *cli.Context) error {
					a, err := appFrom(c)
					if err != nil {
						return err
					}
					defer a.close()
					car, err := a.users.CreateCar(c.Context, &domain.Car{
						Make:  c.String("make"),
						Model: c.String("model"),
					})
					if err != nil {
						return err
					}
					return printJSON(car)
				},
			},
		},
	}
}

func migrateCommand() *cli.Command {
	tableFlag := &cli.StringFlag{Name: "table", Value: "users", Usage: "Table to migrate"}
	localFlag := &cli.StringFlag{Name: "local", Value: "users.csv", Usage: "Local staging file"}
	remoteFlag := &cli.StringFlag{Name: "remote", Value: "users.csv", Usage: "Remote file name under the configured remote directory"}

	return &cli.Command{
		Name:  "migrate",
		Usage: "Move table data from the source store to the destination store",
		Subcommands: []*cli.Command{
			{
				Name:  "export",
				Usage: "Export a source table to CSV and upload it",
				Flags: []cli.Flag{tableFlag, localFlag},
				Action: func(c *cli.Context) error {
					a, err := appFrom(c)
					if err != nil {
						return err
					}
					defer a.close()
					return a.migrator.ExportAndTransfer(c.Context, c.String("table"), c.String("local"))
				},
			},
			{
				Name:  "import",
				Usage: "Download a CSV and bulk-load it into a destination table",
				Flags: []cli.Flag{remoteFlag, localFlag, tableFlag},
				Action: func(c *cli.Context) error {
					a, err := appFrom(c)
					if err != nil {
						return err
					}
					defer a.close()
					return a.migrator.DownloadAndImport(c.Context, c.String("remote"), c.String("local"), c.String("table"))
				},
			},
			{
				Name:  "run",
				Usage: "Export, transfer and import in one pass",
				Flags: []cli.Flag{tableFlag, localFlag, remoteFlag},
				Action: func(c *cli.Context) error {
					a, err := appFrom(c)
					if err != nil {
						return err
					}
					defer a.close()
					return a.migrator.Run(c.Context, migration.Job{
						SourceTable:      c.String("table"),
						LocalPath:        c.String("local"),
						RemotePath:       c.String("remote"),
						DestinationTable: c.String("table"),
					})
				},
			},
		},
	}
}

func reportCommand() *cli.Command {
	run := func(c *cli.Context, f func(*app) (any, error)) error {
		a, err := appFrom(c)
		if err != nil {
			return err
		}
		defer a.close()
		out, err := f(a)
		if err != nil {
			return err
		}
		return printJSON(out)
	}

	return &cli.Command{
		Name:  "report",
		Usage: "Aggregate reports over the user store",
		Subcommands: []*cli.Command{
			{
				Name:  "latest-month",
				Usage: "Distinct names of users who joined in the most recent join month",
				Action: func(c *cli.Context) error {
					return run(c, func(a *app) (any, error) { return a.reports.LatestMonthNames(c.Context) })
				},
			},
			{
				Name:  "duplicate-names",
				Usage: "Names shared by more than one user",
				Action: func(c *cli.Context) error {
					return run(c, func(a *app) (any, error) { return a.reports.DuplicateNames(c.Context) })
				},
			},
			{
				Name:  "users-with-cars",
				Usage: "Count of users associated with a car",
				Action: func(c *cli.Context) error {
					return run(c, func(a *app) (any, error) { return a.reports.CountUsersWithCars(c.Context) })
				},
			},
			{
				Name:  "cars-without-users",
				Usage: "Count of cars no user references",
				Action: func(c *cli.Context) error {
					return run(c, func(a *app) (any, error) { return a.reports.CountCarsWithoutUsers(c.Context) })
				},
			},
			{
				Name:  "csv-duplicates",
				Usage: "Duplicate names found in a remote CSV file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "remote", Value: "users.csv"},
					&cli.StringFlag{Name: "local", Value: "users.csv"},
				},
				Action: func(c *cli.Context) error {
					return run(c, func(a *app) (any, error) {
						return a.reports.CSVDuplicateNames(c.Context, c.String("remote"), c.String("local"))
					})
				},
			},
			{
				Name:  "migrate-duplicates",
				Usage: "Run the migration pipeline, then report duplicate names in the destination",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "table", Value: "users"},
					&cli.StringFlag{Name: "local", Value: "users.csv"},
					&cli.StringFlag{Name: "remote", Value: "users.csv"},
				},
				Action: func(c *cli.Context) error {
					return run(c, func(a *app) (any, error) {
						return a.reports.MigrateAndGetDuplicateNames(c.Context, c.String("table"), c.String("local"), c.String("remote"))
					})
				},
			},
		},
	}
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Delete idempotency records older than the retention window, once",
		Action: func(c *cli.Context) error {
			a, err := appFrom(c)
			if err != nil {
				return err
			}
			defer a.close()
			deleted, err := a.sweeper.RunOnce(c.Context)
			if err != nil {
				return err
			}
			return printJSON(map[string]int64{"deleted": deleted})
		},
	}
}

func sweeperCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve-sweeper",
		Usage: "Run the retention sweeper until interrupted",
		Action: func(c *cli.Context) error {
			a, err := appFrom(c)
			if err != nil {
				return err
			}
			defer a.close()

			a.sweeper.Start(c.Context)
			log.Info().
				Str("interval", a.cfg.SweepInterval.String()).
				Str("retention", a.cfg.Retention.String()).
				Msg("sweeper running, press Ctrl-C to stop")
			<-c.Context.Done()
			a.sweeper.Stop()
			return nil
		},
	}
}
