package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/smukkama/tsa/internal/analysis"
	"github.com/smukkama/tsa/internal/database"
	"github.com/smukkama/tsa/internal/definition"
	"github.com/smukkama/tsa/internal/logger"
	"github.com/smukkama/tsa/internal/observation"
	"github.com/smukkama/tsa/internal/results"
	"github.com/smukkama/tsa/pkg/config"
)

var (
	runFile   string
	runOutput string
	runSave   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate every collection of a definition file",
	Long: `Evaluates every collection of a definition file against the
observation database and writes the results as JSON.

Examples:
  tsa run -f conditions.yaml              # results to stdout
  tsa run -f conditions.yaml -o out.json  # results to a file
  tsa run -f conditions.yaml --save       # also store results in Redis`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "definition file (YAML or JSON)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "write results to this file instead of stdout")
	runCmd.Flags().BoolVar(&runSave, "save", false, "store results in Redis for report generation")
	_ = runCmd.MarkFlagRequired("file")
}

// newRunner wires the guarded observation store in front of db
func newRunner(db *database.DB, cfg *config.Config) *analysis.Runner {
	guarded := observation.NewGuarded(db, observation.GuardConfig{
		Timeout:          cfg.Guard.AttemptTimeout,
		MaxRetries:       cfg.Guard.MaxRetries,
		InitialInterval:  cfg.Guard.InitialInterval,
		MaxInterval:      cfg.Guard.MaxInterval,
		FailureThreshold: cfg.Guard.FailureThreshold,
		OpenTimeout:      cfg.Guard.OpenTimeout,
	})
	return analysis.NewRunner(guarded, db, analysis.Config{
		Workers:      cfg.Analysis.Workers,
		FetchTimeout: cfg.Analysis.FetchTimeout,
		CacheSize:    cfg.Analysis.CacheSize,
	})
}

func runRun(cmd *cobra.Command, args []string) error {
	log := logger.For(logger.ComponentCLI)

	file, err := definition.LoadFile(runFile)
	if err != nil {
		return err
	}
	file.DefaultMaxGap(cfg.Analysis.MaxGap)

	collections, err := file.Build()
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("Connected to database")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, runErr := newRunner(db, cfg).RunBatch(ctx, collections)
	if runErr != nil && len(res) == 0 {
		return runErr
	}

	for _, r := range res {
		log.Infow("Collection evaluated",
			"collection", r.Title,
			"run_id", r.RunID,
			"conditions", len(r.Conditions),
			"valid", r.Valid(),
			"errors", r.Report.Count(),
			"duration", r.Duration)
	}

	if runSave && runErr == nil {
		if err := saveResults(ctx, res); err != nil {
			return err
		}
	}

	if err := writeResults(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	return runErr
}

func saveResults(ctx context.Context, res []*analysis.CollectionResult) error {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := results.NewStore(redisClient, cfg.Redis.ResultTTL)
	for _, r := range res {
		if err := store.SaveCollection(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func writeResults(stdout io.Writer, res []*analysis.CollectionResult) error {
	out := stdout
	if runOutput != "" {
		fh, err := os.Create(runOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer fh.Close()
		out = fh
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}
