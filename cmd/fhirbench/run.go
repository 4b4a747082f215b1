package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/blagojts/viper"
	"github.com/spf13/cobra"

	"github.com/fhirbench/fhirbench/internal/apperrors"
	"github.com/fhirbench/fhirbench/internal/buildinfo"
	"github.com/fhirbench/fhirbench/internal/config"
	"github.com/fhirbench/fhirbench/internal/logx"
	"github.com/fhirbench/fhirbench/pkg/coordinator"
	"github.com/fhirbench/fhirbench/pkg/lifecycle"
	"github.com/fhirbench/fhirbench/pkg/sampledata"
	"github.com/fhirbench/fhirbench/pkg/servers"
)

const sampleDataDir = "sample-data"

// newRunCmd builds the single `run` subcommand (spec.md §6): executes a
// full benchmark and writes the report to stdout. Exit code 0 if the
// report was written, even if some servers failed; nonzero only on
// configuration errors, inability to produce output, or cancellation.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a full benchmark against every configured FHIR server and write the report to stdout",
		RunE:  runRun,
	}
	config.AddFlags(cmd.Flags())
	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	logger := logx.Default()

	v := viper.New()
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return apperrors.ConfigError(err, "binding flags")
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	samples, err := sampledata.Load(sampleDataDir, cfg.PopulationSize, "Organization")
	if err != nil {
		logger.Warn().Err(err).Msg("no sample data available; operations that need input will fail validation")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := &http.Client{}
	operations := []coordinator.Operation{
		coordinator.MetadataOperation(),
		coordinator.PostOrganizationOperation(samples),
	}

	coord := coordinator.New(logger, client, operations, lifecycle.DefaultOptions())
	rep := coord.Run(ctx, servers.All(), cfg, buildinfo.Collect())

	encoded, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return apperrors.SerialisationError(err, "encoding report")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))

	if ctx.Err() != nil {
		return apperrors.IOError(ctx.Err(), "run cancelled")
	}
	return nil
}
