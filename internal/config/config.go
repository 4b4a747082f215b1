// Package config loads and validates run configuration from environment
// variables (spec.md §6), bound through a viper.Viper instance the way
// timescale-tsbs's cmd/tsbs_load binds pflags and env vars via
// github.com/blagojts/viper.
package config

import (
	"strconv"
	"strings"

	"github.com/blagojts/viper"
	"github.com/spf13/pflag"

	"github.com/fhirbench/fhirbench/internal/apperrors"
	"github.com/fhirbench/fhirbench/pkg/report"
)

const (
	envIterations         = "BENCH_ITERATIONS"
	envConcurrencyLevels  = "BENCH_CONCURRENCY_LEVELS"
	envPopulationSize     = "BENCH_POPULATION_SIZE"
	envOperationTimeoutMS = "BENCH_OPERATION_TIMEOUT_MS"

	defaultIterations         = 1000
	defaultOperationTimeoutMS = 10000
	defaultPopulationSize     = 1
)

var defaultConcurrencyLevels = []int{1, 8}

// AddFlags registers the run command's configuration flags, mirroring
// timescale-tsbs's BenchmarkRunner.AddToFlagSet pattern: each flag also
// becomes bindable as an environment variable of the same name.
func AddFlags(fs *pflag.FlagSet) {
	fs.Int(envIterations, defaultIterations, "number of iterations per (operation, concurrency) measurement")
	fs.String(envConcurrencyLevels, "1,8", "comma-separated list of concurrency levels to measure at")
	fs.Int(envPopulationSize, defaultPopulationSize, "sample-data population size to draw inputs from")
	fs.Int(envOperationTimeoutMS, defaultOperationTimeoutMS, "per-iteration timeout in milliseconds")
}

// Load reads and validates the run configuration from v (already bound to
// a FlagSet via AddFlags and BindPFlags), falling back to spec.md §3's
// defaults for anything unset, and returns a *apperrors.AppError of kind
// ConfigError on any invalid value (spec.md §6: "invalid values abort
// before any server is launched").
func Load(v *viper.Viper) (report.Config, error) {
	cfg := report.Config{
		Iterations:         v.GetInt(envIterations),
		OperationTimeoutMS: v.GetInt(envOperationTimeoutMS),
		PopulationSize:     v.GetInt(envPopulationSize),
	}

	levels, err := parseConcurrencyLevels(v.GetString(envConcurrencyLevels))
	if err != nil {
		return report.Config{}, err
	}
	cfg.ConcurrencyLevels = levels

	if err := validate(cfg); err != nil {
		return report.Config{}, err
	}
	return cfg, nil
}

func parseConcurrencyLevels(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]int{}, defaultConcurrencyLevels...), nil
	}

	parts := strings.Split(raw, ",")
	levels := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, apperrors.ConfigError(err, "%s: %q is not an integer", envConcurrencyLevels, p)
		}
		if n <= 0 {
			return nil, apperrors.ConfigError(nil, "%s: concurrency level %d must be positive", envConcurrencyLevels, n)
		}
		levels = append(levels, n)
	}
	if len(levels) == 0 {
		return nil, apperrors.ConfigError(nil, "%s: must list at least one concurrency level", envConcurrencyLevels)
	}
	return levels, nil
}

func validate(cfg report.Config) error {
	if cfg.Iterations <= 0 {
		return apperrors.ConfigError(nil, "%s: must be positive, got %d", envIterations, cfg.Iterations)
	}
	if cfg.OperationTimeoutMS <= 0 {
		return apperrors.ConfigError(nil, "%s: must be positive, got %d", envOperationTimeoutMS, cfg.OperationTimeoutMS)
	}
	if cfg.PopulationSize <= 0 {
		return apperrors.ConfigError(nil, "%s: must be positive, got %d", envPopulationSize, cfg.PopulationSize)
	}
	return nil
}
