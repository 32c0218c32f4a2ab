package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskvault/taskvault/internal/config"
	"github.com/taskvault/taskvault/internal/database"
	"github.com/taskvault/taskvault/internal/migrate"
	"github.com/taskvault/taskvault/internal/migrate/migrations"
	"github.com/taskvault/taskvault/internal/utils"
)

const version = "v1.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return 2
	}

	switch args[0] {
	case "migrate":
		return runMigrate(args[1:])
	case "rollback":
		return runRollback(args[1:])
	case "status":
		return runStatus(args[1:])
	case "version":
		fmt.Println(version)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `taskvault-migrate %s

Usage:
  taskvault-migrate migrate  [--dry-run] [--target=<id>] [--continue-on-error] [--config=<path>]
  taskvault-migrate rollback [--steps=<n>] [--target=<id>] [--config=<path>]
  taskvault-migrate status   [--config=<path>]

The document store connection string is taken from the DATABASE_URL
environment variable or a config file; one of the two must be present.
`, version)
}

func runMigrate(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	dryRun := fs.Bool("dry-run", false, "Report what would run without applying anything")
	targetID := fs.String("target", "", "Stop before this migration id (exclusive)")
	continueOnError := fs.Bool("continue-on-error", false, "Keep running past a failed migration")
	fs.Parse(args)

	env, code := setup(*configPath)
	if code != 0 {
		return code
	}
	defer env.close()

	summary, err := env.runner.RunAll(context.Background(), migrate.RunOptions{
		DryRun:          *dryRun,
		TargetID:        *targetID,
		ContinueOnError: *continueOnError,
	})
	if err != nil {
		env.logger.Error().Err(err).Msg("Migration run aborted")
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	printResults(summary.Results)
	fmt.Printf("\n%d considered, %d run, %d skipped, %d failed (%s)\n",
		summary.Total, summary.Run, summary.Skipped, summary.Failed,
		summary.Elapsed.Round(time.Millisecond))

	if !summary.Success {
		return 1
	}
	return 0
}

func runRollback(args []string) int {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	steps := fs.Int("steps", 0, "Number of migrations to revert (default 1)")
	targetID := fs.String("target", "", "Stop before this migration id (exclusive)")
	fs.Parse(args)

	env, code := setup(*configPath)
	if code != 0 {
		return code
	}
	defer env.close()

	summary, err := env.runner.Rollback(context.Background(), migrate.RollbackOptions{
		Steps:    *steps,
		TargetID: *targetID,
	})
	if err != nil {
		env.logger.Error().Err(err).Msg("Rollback aborted")
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	printResults(summary.Results)
	fmt.Printf("\n%d considered, %d rolled back, %d skipped, %d failed (%s)\n",
		summary.Total, summary.RolledBack, summary.Skipped, summary.Failed,
		summary.Elapsed.Round(time.Millisecond))

	if !summary.Success {
		return 1
	}
	return 0
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Parse(args)

	env, code := setup(*configPath)
	if code != 0 {
		return code
	}
	defer env.close()

	report, err := env.runner.Status(context.Background())
	if err != nil {
		env.logger.Error().Err(err).Msg("Status read failed")
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	for _, m := range report.Migrations {
		mark := "[ ]"
		detail := "pending"
		if m.Applied {
			mark = "[x]"
			detail = "applied"
			if m.AppliedAt != nil {
				detail = fmt.Sprintf("applied %s", m.AppliedAt.Format(time.RFC3339))
			}
		}
		fmt.Printf("%s %s %-30s %s\n", mark, m.ID, m.Name, detail)
	}
	fmt.Printf("\n%d applied, %d pending\n", report.Applied, report.Pending)
	return 0
}

func printResults(results []migrate.Result) {
	for _, res := range results {
		var mark string
		switch res.Outcome {
		case migrate.OutcomeCompleted:
			mark = "ok  "
		case migrate.OutcomeRolledBack:
			mark = "undo"
		case migrate.OutcomeSkipped:
			mark = "skip"
		case migrate.OutcomeDryRun:
			mark = "dry "
		default:
			mark = "FAIL"
		}
		line := fmt.Sprintf("%s %s %s", mark, res.ID, res.Name)
		if res.Message != "" {
			line += fmt.Sprintf(" (%s)", res.Message)
		}
		if res.Duration > 0 {
			line += fmt.Sprintf(" [%s]", res.Duration.Round(time.Millisecond))
		}
		fmt.Println(line)
	}
}

// cliEnv holds the store handle and runner whose lifecycle the CLI owns
type cliEnv struct {
	db     *database.Database
	runner *migrate.Runner
	logger zerolog.Logger
}

func (e *cliEnv) close() {
	if err := e.db.Close(); err != nil {
		e.logger.Error().Err(err).Msg("Failed to close database connection")
	}
}

// setup loads configuration, connects to the store, and assembles the
// runner with the compiled migration registry. The connection string must
// come from DATABASE_URL or an explicit config file; its absence is a fatal
// startup error.
func setup(configPath string) (*cliEnv, int) {
	if os.Getenv("DATABASE_URL") == "" && configPath == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set and no --config file was given")
		return nil, 1
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return nil, 1
	}

	logger := utils.SetupGlobalLogger(utils.LoggerConfig{
		Level:   cfg.Log.Level,
		Pretty:  cfg.Log.Pretty,
		LogFile: cfg.Log.File,
	})
	logger.Info().Str("version", version).Msg("Starting taskvault-migrate")

	// GORM stays silent so stdout remains the operator's status report
	db := database.NewDatabase(cfg.Database, "silent")
	if err := db.Connect(); err != nil {
		logger.Error().Err(err).Msg("Failed to connect to database")
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return nil, 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.Health(ctx); err != nil {
		logger.Error().Err(err).Msg("Database health check failed")
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		db.Close()
		return nil, 1
	}

	runner := migrate.NewRunner(db.DB(), logger)
	runner.Register(migrations.All()...)

	return &cliEnv{db: db, runner: runner, logger: logger}, 0
}
