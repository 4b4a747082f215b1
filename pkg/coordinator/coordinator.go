// Package coordinator implements the benchmark coordinator (C5): the
// top-level state machine that loops over servers, then per server over
// operations and concurrency levels, aggregating everything into a single
// report.Report.
//
// Grounded on the original orchestrator's lib.rs::run_bench_orchestrator:
// for each server, launch, run operations, shutdown, recording a
// report.Phase for launch/shutdown and appending report.Measurement entries
// per operation. Shutdown is guaranteed via Go's defer rather than the
// original's unconditional post-launch call, per spec.md §4.4's core
// correctness guarantee.
package coordinator

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/fhirbench/fhirbench/pkg/lifecycle"
	"github.com/fhirbench/fhirbench/pkg/loaddriver"
	"github.com/fhirbench/fhirbench/pkg/probe"
	"github.com/fhirbench/fhirbench/pkg/report"
	"github.com/fhirbench/fhirbench/pkg/sampledata"
	"github.com/fhirbench/fhirbench/pkg/servers"
)

// Operation is an operation descriptor (spec.md §3): a stable identifier,
// the probe that executes one iteration, and the set of inputs it draws
// from. RequiresReset marks operations that must not run against a
// contaminated dataset (spec.md §4.4/§9): if the server has no reset
// support, the coordinator skips this operation for that server entirely.
type Operation struct {
	ID            string
	Probe         probe.Func
	Input         func(i int) probe.Input
	RequiresReset bool
}

// Coordinator drives the top-level algorithm of spec.md §4.5.
type Coordinator struct {
	logger     zerolog.Logger
	client     *http.Client
	operations []Operation
	opts       lifecycle.Options
}

// New returns a Coordinator that will run the given operations, in the
// declared order, against every server it is asked to benchmark.
func New(logger zerolog.Logger, client *http.Client, operations []Operation, opts lifecycle.Options) *Coordinator {
	return &Coordinator{logger: logger, client: client, operations: operations, opts: opts}
}

// Run executes the full algorithm of spec.md §4.5 over the given servers
// and configuration, strictly sequentially across servers, and returns the
// completed report.Report.
func (c *Coordinator) Run(ctx context.Context, serverList []servers.Descriptor, cfg report.Config, meta report.BenchmarkMetadata) *report.Report {
	ids := make([]string, len(serverList))
	for i, s := range serverList {
		ids[i] = s.ID
	}
	rep := report.NewReport(cfg, meta, ids)

	for _, server := range serverList {
		c.runServer(ctx, rep.Server(server.ID), server, cfg)
		if ctx.Err() != nil {
			break
		}
	}

	rep.Completed = time.Now().UTC()
	return rep
}

// runServer implements the per-server body of spec.md §4.5 step 3:
// launch -> (reset -> drive -> append)* -> shutdown, with shutdown
// guaranteed via defer regardless of how launch or the operation loop
// concludes.
func (c *Coordinator) runServer(ctx context.Context, result *report.ServerResult, server servers.Descriptor, cfg report.Config) {
	ctrl := lifecycle.New(server, c.client, c.opts)
	defer c.shutdown(ctx, ctrl, result, server)

	c.logger.Info().Str("server", server.ID).Msg("launching")
	launch, err := ctrl.Launch(ctx)
	result.Launch = launch
	if err != nil {
		c.logger.Error().Str("server", server.ID).Err(err).Msg("launch failed")
		return
	}
	c.logger.Info().Str("server", server.ID).Msg("ready")

	// warmUp tracks whether the next measurement taken is the very first
	// one against this freshly launched server; spec.md §4.3 scopes the
	// warm-up guard to exactly that one measurement, never to every
	// operation/concurrency pair.
	warmUp := true
	result.Operations = make([]report.OperationResult, 0, len(c.operations))
	for _, op := range c.operations {
		result.Operations = append(result.Operations, c.runOperation(ctx, ctrl, server, op, cfg, &warmUp))
		if ctx.Err() != nil {
			break
		}
	}
}

// shutdown always runs the down recipe under a freshly detached context,
// never the possibly-already-cancelled ctx it is called with. Per spec.md
// §4.4's core correctness guarantee, the shutdown recipe must be invoked
// exactly once on every exit path, including external cancellation
// (SIGINT): exec.CommandContext refuses to even start a process against an
// already-Done context, so reusing ctx here would silently skip teardown.
func (c *Coordinator) shutdown(ctx context.Context, ctrl *lifecycle.Controller, result *report.ServerResult, server servers.Descriptor) {
	c.logger.Info().Str("server", server.ID).Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), c.opts.LaunchTimeout)
	defer cancel()
	result.Shutdown = ctrl.Shutdown(sctx)
	if !result.Shutdown.Outcome.Ok() {
		c.logger.Error().Str("server", server.ID).Strs("errors", result.Shutdown.Outcome.Errs).Msg("shutdown failed")
	}
}

// runOperation runs one operation at every configured concurrency level, in
// order, resetting the server before each measurement when the server
// supports a reset (spec.md §4.5 step 3.2); servers without one are not
// reset. If the operation requires a reset the server doesn't support, the
// whole operation is skipped (an OperationResult with no measurements and
// an explanatory error), per spec.md §4.4/§9.
func (c *Coordinator) runOperation(ctx context.Context, ctrl *lifecycle.Controller, server servers.Descriptor, op Operation, cfg report.Config, warmUp *bool) report.OperationResult {
	result := report.OperationResult{Operation: op.ID}

	if op.RequiresReset && !server.HasReset() {
		result.Errors = append(result.Errors, "operation requires a dataset reset, which this server does not support; skipped")
		return result
	}

	for _, concurrency := range cfg.ConcurrencyLevels {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err().Error())
			break
		}

		if server.HasReset() {
			if err := ctrl.Reset(ctx); err != nil {
				result.Errors = append(result.Errors, "reset before concurrency="+strconv.Itoa(concurrency)+" failed: "+err.Error())
				continue
			}
		}

		m := loaddriver.Drive(ctx, op.Probe, c.client, server, op.Input, loaddriver.Config{
			Iterations:       cfg.Iterations,
			Concurrency:      concurrency,
			OperationTimeout: time.Duration(cfg.OperationTimeoutMS) * time.Millisecond,
			Logger:           &c.logger,
			WarmUp:           *warmUp,
		})
		*warmUp = false
		result.Measurements = append(result.Measurements, m)
	}

	return result
}

// inputFor is a convenience constructor for operations whose input is drawn
// from a sampledata.Index by iteration number.
func inputFor(idx *sampledata.Index) func(i int) probe.Input {
	return func(i int) probe.Input {
		if idx == nil {
			return nil
		}
		return idx.At(i)
	}
}

// MetadataOperation is the standard GET /metadata operation (spec.md §4.2),
// applicable to every server and requiring no reset.
func MetadataOperation() Operation {
	return Operation{ID: "metadata", Probe: probe.Metadata, Input: func(int) probe.Input { return nil }}
}

// PostOrganizationOperation is the standard POST /Organization operation,
// grounded on the original test_framework/post_org.rs. It requires the
// server's dataset be reset beforehand so repeated runs don't accumulate
// organizations across measurements.
func PostOrganizationOperation(samples *sampledata.Index) Operation {
	return Operation{ID: "POST /Organization", Probe: probe.PostOrganization, Input: inputFor(samples), RequiresReset: true}
}
