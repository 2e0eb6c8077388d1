// Command migrate inspects and moves the schema of the boost database.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"smm_boost/migrations"
)

type options struct {
	DatabasePath string `long:"db" env:"DATABASE_PATH" default:"./data/boost.db" description:"SQLite database holding accounts, ledger and execution history"`
	Args         struct {
		Command string `positional-arg-name:"command" description:"up | up-one | down | status | version | reset"`
	} `positional-args:"yes" required:"yes"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(context.Background(), opts.DatabasePath, opts.Args.Command, log); err != nil {
		log.Error("migrate", "command", opts.Args.Command, "db", opts.DatabasePath, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path, command string, log *slog.Logger) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	provider, err := migrations.NewProvider(db)
	if err != nil {
		return err
	}

	var results []*goose.MigrationResult
	switch command {
	case "up":
		results, err = provider.Up(ctx)
	case "up-one":
		var r *goose.MigrationResult
		if r, err = provider.UpByOne(ctx); r != nil {
			results = append(results, r)
		}
	case "down":
		var r *goose.MigrationResult
		if r, err = provider.Down(ctx); r != nil {
			results = append(results, r)
		}
	case "reset":
		results, err = provider.DownTo(ctx, 0)
	case "status":
		return printStatus(ctx, provider)
	case "version":
		v, err := provider.GetDBVersion(ctx)
		if err != nil {
			return fmt.Errorf("get schema version: %w", err)
		}
		fmt.Printf("schema version %d\n", v)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	for _, r := range results {
		log.Info("migration applied", "version", r.Source.Version, "direction", r.Direction, "duration", r.Duration)
	}
	if errors.Is(err, goose.ErrNoNextVersion) {
		log.Info("schema already up to date")
		return nil
	}
	return err
}

func printStatus(ctx context.Context, provider *goose.Provider) error {
	list, err := provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	for _, st := range list {
		applied := "pending"
		if st.State == goose.StateApplied {
			applied = st.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-6d %-20s %s\n", st.Source.Version, applied, st.Source.Path)
	}
	return nil
}
