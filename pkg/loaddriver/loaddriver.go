// Package loaddriver implements the concurrent load driver (C3): a fixed
// worker pool of K goroutines pulling iteration tickets from a shared
// counter, each iteration bound by a per-operation timeout, feeding
// outcomes to a single-owner pkg/recorder.Recorder.
//
// Grounded on timescale-tsbs's load.BenchmarkRunner.work/createChannels
// worker-pool shape (shared queue, sync.WaitGroup, atomic counters), but
// generalized with golang.org/x/sync/errgroup driving K goroutines under a
// cancelable context.Context, per spec.md §4.3/§5.
package loaddriver

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/fhirbench/fhirbench/internal/apperrors"
	"github.com/fhirbench/fhirbench/pkg/probe"
	"github.com/fhirbench/fhirbench/pkg/recorder"
	"github.com/fhirbench/fhirbench/pkg/report"
	"github.com/fhirbench/fhirbench/pkg/servers"
)

// Config holds one measurement's fixed parameters (spec.md §4.3).
type Config struct {
	// Iterations is the target number of iterations (N).
	Iterations int
	// Concurrency is the number of workers in flight at any instant (K).
	Concurrency int
	// OperationTimeout bounds every single iteration.
	OperationTimeout time.Duration
	// WallClockBudget, if nonzero, aborts the whole measurement once
	// elapsed; remaining tickets are recorded as skipped (spec.md §4.3's
	// "graceful global budget").
	WallClockBudget time.Duration
	// CeilingMillis is the recorder's histogram ceiling; 0 selects
	// recorder.DefaultCeilingMillis.
	CeilingMillis int64
	// Logger receives one classified apperrors.OperationError event per
	// failed iteration. A nil Logger disables this logging.
	Logger *zerolog.Logger
	// WarmUp, when true, executes ticket 0 alone -- before any worker
	// starts -- discarding its duration from the histogram while still
	// counting its success/failure. Per spec.md §4.3, only the very first
	// measurement taken against a freshly launched server should set this;
	// callers must not set it on every measurement.
	WarmUp bool
}

// operationErrorKind maps a report.FailureKind onto the refined
// apperrors.OperationErrorKind used for structured logging.
func operationErrorKind(kind report.FailureKind) apperrors.OperationErrorKind {
	switch kind {
	case report.FailureTimeout:
		return apperrors.OperationTimeout
	case report.FailureTransport:
		return apperrors.OperationTransport
	case report.FailureValidation:
		return apperrors.OperationValidation
	default:
		return apperrors.OperationHTTP
	}
}

// Drive runs up to cfg.Iterations iterations of p against server, with at
// most cfg.Concurrency in flight, and returns the sealed Measurement.
func Drive(ctx context.Context, p probe.Func, client *http.Client, server servers.Descriptor, input func(i int) probe.Input, cfg Config) report.Measurement {
	if cfg.CeilingMillis == 0 {
		cfg.CeilingMillis = recorder.DefaultCeilingMillis
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	runCtx := ctx
	var cancelBudget context.CancelFunc
	if cfg.WallClockBudget > 0 {
		runCtx, cancelBudget = context.WithTimeout(ctx, cfg.WallClockBudget)
		defer cancelBudget()
	}

	rec := recorder.New(cfg.CeilingMillis)
	rec.Logger = &logger
	start := time.Now()

	baseline := &probe.ValidationBaseline{}
	recordFailure := func(o report.IterationOutcome) {
		rec.RecordFailure(o.Kind)
		opErr := apperrors.OperationError(operationErrorKind(o.Kind), nil, "iteration against %q failed", server.ID)
		logger.Warn().Str("server", server.ID).Str("kind", string(o.Kind)).Msg(opErr.Error())
	}

	// Warm-up guard (spec.md §4.3): the first ticket of the first
	// measurement after launch runs alone, with no worker pool started
	// yet, so it truly executes in isolation rather than racing K-1 other
	// in-flight iterations for the "first" slot.
	startTicket := int64(0)
	if cfg.WarmUp && cfg.Iterations > 0 && runCtx.Err() == nil {
		warmCtx, cancel := context.WithTimeout(runCtx, cfg.OperationTimeout)
		o := runIteration(warmCtx, p, client, server, input(0), baseline)
		cancel()

		if o.Success {
			rec.RecordWarmUpSuccess(o.DurationMillis)
		} else {
			recordFailure(o)
		}
		startTicket = 1
	}

	ticket := atomic.NewInt64(startTicket)
	results := make(chan report.IterationOutcome, cfg.Concurrency)

	group, groupCtx := errgroup.WithContext(runCtx)
	for w := 0; w < cfg.Concurrency; w++ {
		group.Go(func() error {
			return worker(groupCtx, p, client, server, input, cfg, ticket, results, baseline)
		})
	}

	// recorded counts outcomes handed to rec, including the warm-up's.
	recorded := int(startTicket)
	done := make(chan struct{})
	go func() {
		for o := range results {
			recorded++
			if o.Success {
				rec.RecordSuccess(o.DurationMillis)
			} else {
				recordFailure(o)
			}
		}
		close(done)
	}()

	// errgroup.Wait's error is always nil here: worker always returns nil,
	// including for a classified iteration failure (spec.md §7: errors
	// inside a single iteration never bubble out of the load driver).
	_ = group.Wait()
	close(results)
	<-done

	// Every iteration without a recorded outcome counts as skipped: tickets
	// never taken, and in-flight iterations a worker dropped because the
	// budget expired or the run was cancelled.
	for i := 0; i < cfg.Iterations-recorded; i++ {
		rec.RecordSkip()
	}

	end := time.Now()
	m := rec.Finalize(start, end)
	m.ConcurrentUsers = cfg.Concurrency
	return m
}

// worker repeatedly takes the next ticket while index < Iterations,
// executes one bounded iteration, and sends its outcome to results.
func worker(ctx context.Context, p probe.Func, client *http.Client, server servers.Descriptor, input func(i int) probe.Input, cfg Config, ticket *atomic.Int64, results chan<- report.IterationOutcome, baseline *probe.ValidationBaseline) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		i := int(ticket.Inc()) - 1
		if i >= cfg.Iterations {
			return nil
		}

		iterCtx, cancel := context.WithTimeout(ctx, cfg.OperationTimeout)
		o := runIteration(iterCtx, p, client, server, input(i), baseline)
		cancel()

		select {
		case results <- o:
		case <-ctx.Done():
			return nil
		}
	}
}

// runIteration executes one bounded probe call, translating a context
// deadline into a Failure{timeout} outcome per spec.md §4.3.
func runIteration(ctx context.Context, p probe.Func, client *http.Client, server servers.Descriptor, in probe.Input, baseline *probe.ValidationBaseline) report.IterationOutcome {
	resultCh := make(chan report.IterationOutcome, 1)

	go func() {
		resultCh <- p(ctx, client, server, in, baseline)
	}()

	select {
	case o := <-resultCh:
		return o
	case <-ctx.Done():
		return report.IterationOutcome{Success: false, Kind: report.FailureTimeout}
	}
}
