// Command pumpctl drives pump-station telemetry ingestion: CSV staging,
// windowed merge into the partitioned fact table, and data-quality
// reporting. One file per subcommand, a shared rootCmd carrying
// PersistentPreRunE config/logger resolution, package-level cobra.Command
// vars wired in init().
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stationsync/internal/config"
	"stationsync/internal/dbpool"
	"stationsync/internal/runtime"
)

var (
	cfg       *config.Config
	logger    zerolog.Logger
	configDir string
	runIDFlag string
)

var rootCmd = &cobra.Command{
	Use:   "pumpctl",
	Short: "Pump-station telemetry ingestion and alignment engine",
	Long: `pumpctl loads CSV telemetry exports into a Postgres staging area and
merges them, set-based and timezone-normalized, into a partitioned fact
table, with backpressure-aware batching and data-quality reporting.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configDir)
		if err != nil {
			return ioErr(fmt.Errorf("load config: %w", err))
		}
		cfg = loaded

		var out io.Writer
		if cfg.Logging.Format.Value == "json" {
			out = os.Stdout
		} else {
			out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		}
		logger = zerolog.New(out).With().Timestamp().Logger()
		level, err := zerolog.ParseLevel(cfg.Logging.Level.Value)
		if err != nil {
			level = zerolog.InfoLevel
		}
		logger = logger.Level(level)
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configDir, "config-dir", "", "Directory holding database.yaml/logging.yaml/ingest.yaml/merge.yaml (./configs, ./config are searched after it)")
	f.StringVar(&runIDFlag, "run-id", "", "Operator-supplied run ID (defaults per ingest.batch_id_mode)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a returned error to the exit code table in the CLI
// surface spec: 1 for I/O and config errors, 2 for DB errors and for any
// error that carries no classification.
func exitCodeFor(err error) int {
	var ce *classifiedError
	if ok := asClassifiedError(err, &ce); ok {
		return ce.code
	}
	return 2
}

// classifiedError pins a concrete exit code to an error, for commands whose
// exit code depends on which phase failed (I/O vs DB).
type classifiedError struct {
	code int
	err  error
}

func (c *classifiedError) Error() string { return c.err.Error() }
func (c *classifiedError) Unwrap() error { return c.err }

func ioErr(err error) error { return &classifiedError{code: 1, err: err} }
func dbErr(err error) error { return &classifiedError{code: 2, err: err} }

func asClassifiedError(err error, target **classifiedError) bool {
	for err != nil {
		if ce, ok := err.(*classifiedError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// newRunID produces a run identifier per ingest.batch_id_mode: a UTC
// timestamp token or a UUID, unless the operator supplied one explicitly.
func newRunID(mode string) string {
	if runIDFlag != "" {
		return runIDFlag
	}
	if mode == "uuid" {
		return uuid.NewString()
	}
	return time.Now().UTC().Format("20060102T150405Z")
}

// connectRuntime connects the pool using the config already resolved by
// PersistentPreRunE, and returns a bound runtime.Runtime plus a cleanup
// func that closes the pool.
func connectRuntime(ctx context.Context, runID string) (*runtime.Runtime, func(), error) {
	pool, err := dbpool.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, func() {}, dbErr(fmt.Errorf("connect: %w", err))
	}
	rt := &runtime.Runtime{Config: cfg, Pool: pool, Logger: logger, RunID: runID}
	return rt, func() { pool.Close() }, nil
}
