package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/sportedge/sportedge-backend/pkg/config"
	"github.com/sportedge/sportedge-backend/pkg/db"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/migrate"
)

const usage = `usage: migrate [flags] <command>

commands:
  up               apply all pending migrations
  down             roll back the latest migration
  status           list migrations and whether they are applied
  to <version>     migrate up or down to YYYYMMDDHHMMSS
  create <name>    write an empty migration file
  validate         lint migration files without a database
`

func main() {
	_ = godotenv.Load()

	flags := flag.NewFlagSet("migrate", flag.ExitOnError)
	dir := flags.String("dir", migrate.DefaultDir, "migrations directory")
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])
	if flags.NArg() == 0 {
		flags.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *dir, flags.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dir string, args []string, out io.Writer) error {
	command, rest := args[0], args[1:]

	// offline commands
	switch command {
	case "create":
		if len(rest) == 0 {
			return errors.New("create needs a migration name")
		}
		path, err := migrate.CreateSQLMigration(dir, strings.Join(rest, "_"))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "created", path)
		return nil
	case "validate":
		if err := migrate.ValidateDir(dir); err != nil {
			for _, problem := range migrate.Problems(err) {
				fmt.Fprintln(out, "  "+problem)
			}
			return errors.New("validation failed")
		}
		fmt.Fprintln(out, "migrations ok")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": command, "dir": dir})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()
	sqlDB, err := client.SQL()
	if err != nil {
		return err
	}
	runner, err := migrate.NewRunner(sqlDB, dir)
	if err != nil {
		return err
	}

	var steps []migrate.Step
	switch command {
	case "up":
		steps, err = runner.Up(ctx)
	case "down":
		steps, err = runner.Down(ctx)
	case "to":
		if len(rest) != 1 {
			return errors.New("to needs exactly one version")
		}
		steps, err = runner.To(ctx, rest[0])
	case "status":
		states, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		return printStatus(out, states)
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	for _, s := range steps {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     s.Version,
			"direction":   s.Direction,
			"duration_ms": s.Duration.Milliseconds(),
		}), s.File)
	}
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "steps", len(steps)), "migrate done")
	return nil
}

func printStatus(out io.Writer, states []migrate.State) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range states {
		state, at := "pending", "-"
		if s.Applied {
			state, at = "applied", s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, state, at, s.File)
	}
	return tw.Flush()
}
