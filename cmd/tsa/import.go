package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smukkama/tsa/internal/database"
	"github.com/smukkama/tsa/internal/ingest"
	"github.com/smukkama/tsa/internal/logger"
)

var (
	importFile string
	importZone string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load station observations from a CSV file into the database",
	Long: `Loads observations from a CSV file whose header is
time,station_id,<sensor>,<sensor>,... Unknown stations and sensors are
registered; empty cells are stored as missing readings.

Examples:
  tsa import -f lotju.csv --tz Europe/Helsinki`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "CSV file to import")
	importCmd.Flags().StringVar(&importZone, "tz", "UTC", "time zone of timestamps without an offset")
	_ = importCmd.MarkFlagRequired("file")
}

func runImport(cmd *cobra.Command, args []string) error {
	loc, err := time.LoadLocation(importZone)
	if err != nil {
		return fmt.Errorf("invalid time zone: %w", err)
	}

	fh, err := os.Open(importFile)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", importFile, err)
	}
	defer fh.Close()

	file, err := ingest.Parse(fh, loc)
	if err != nil {
		return fmt.Errorf("%s: %w", importFile, err)
	}

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()
	logger.For(logger.ComponentCLI).Info("Connected to database")

	n, err := ingest.NewLoader(db).Load(context.Background(), file)
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d observations imported\n", n, len(file.Rows))
	return err
}
