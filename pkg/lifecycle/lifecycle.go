// Package lifecycle implements the server lifecycle controller (C4): start,
// readiness-wait, per-operation reset and shutdown of one containerized
// server, with a guaranteed-once teardown.
//
// Grounded on the original orchestrator's servers/docker_compose.rs: launch
// invokes the "up" recipe as a child process, polls the readiness probe
// (GET /metadata) on a fixed interval until a stability window of
// consecutive good probes is reached or the launch timeout elapses, and
// shutdown invokes the "down" recipe unconditionally. The "up" recipe runs
// via os/exec.CommandContext from its own goroutine, per spec.md §5's
// "separate blocking executor" requirement, mirroring the way
// timescale-tsbs's load.BenchmarkRunner.work goroutines isolate blocking
// work from the reporting path; the "down" recipe runs on the calling
// goroutine.
package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os/exec"
	"time"

	"github.com/fhirbench/fhirbench/internal/apperrors"
	"github.com/fhirbench/fhirbench/pkg/probe"
	"github.com/fhirbench/fhirbench/pkg/report"
	"github.com/fhirbench/fhirbench/pkg/servers"
)

// State is one position in the lifecycle state machine documented in
// spec.md §4.4.
type State int

const (
	Created State = iota
	Launching
	Ready
	Operating
	ShuttingDown
	Stopped
	Failed
)

// Options parametrizes a Controller's readiness polling, per spec.md §9's
// resolved Open Question: the readiness criterion defaults to 3 consecutive
// successful probes rather than a single good probe.
type Options struct {
	// PollInterval is how often the readiness probe is polled.
	PollInterval time.Duration
	// LaunchTimeout bounds the whole launch+readiness wait.
	LaunchTimeout time.Duration
	// StabilityWindow is the number of consecutive successful probes
	// required before the server is declared Ready.
	StabilityWindow int
}

// DefaultOptions matches spec.md §4.4/§9's defaults.
func DefaultOptions() Options {
	return Options{
		PollInterval:    500 * time.Millisecond,
		LaunchTimeout:   2 * time.Minute,
		StabilityWindow: 3,
	}
}

// Controller drives one server through its lifecycle state machine.
type Controller struct {
	server servers.Descriptor
	client *http.Client
	opts   Options
	state  State
}

// New returns a Controller for server, in the Created state.
func New(server servers.Descriptor, client *http.Client, opts Options) *Controller {
	return &Controller{server: server, client: client, opts: opts, state: Created}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State { return c.state }

// Launch invokes the server's "up" recipe and polls readiness until the
// stability window is satisfied or the launch timeout elapses. On any
// failure it records an apperrors LaunchError classified per spec.md §4.4
// (spawn, readiness_timeout, exit_status) in the returned phase's outcome,
// returns the underlying error (the up script's error, or the readiness
// wait's context error) and transitions to Failed.
func (c *Controller) Launch(ctx context.Context) (report.Phase, error) {
	phase := report.Phase{Started: time.Now().UTC()}
	c.state = Launching

	launchCtx, cancel := context.WithTimeout(ctx, c.opts.LaunchTimeout)
	defer cancel()

	exitCh := make(chan error, 1)
	var stderr bytes.Buffer
	go func() {
		cmd := exec.CommandContext(launchCtx, c.server.UpScript)
		cmd.Stderr = &stderr
		exitCh <- cmd.Run()
	}()

	readyErr := c.waitReady(launchCtx)
	phase.Completed = time.Now().UTC()

	if readyErr != nil {
		c.state = Failed
		detail := readyErr.Error()
		select {
		case runErr := <-exitCh:
			if runErr != nil {
				detail = appendLogs(detail, stderr.String())
				// Only *exec.ExitError means the process actually started
				// and ran to completion with a nonzero status; every other
				// error (missing binary, permission denied, ctx already
				// done) means it never started at all.
				kind := apperrors.LaunchSpawn
				var exitErr *exec.ExitError
				if errors.As(runErr, &exitErr) {
					kind = apperrors.LaunchExitStatus
				}
				phase.Outcome = report.OutcomeErr(apperrors.LaunchError(kind, runErr, "up script for %q exited: %s", c.server.ID, detail).Error())
				return phase, apperrors.Cause(runErr)
			}
		default:
		}
		detail = appendLogs(detail, stderr.String())
		phase.Outcome = report.OutcomeErr(apperrors.LaunchError(apperrors.LaunchReadinessTimeout, readyErr, "server %q never became ready: %s", c.server.ID, detail).Error())
		return phase, readyErr
	}

	c.state = Ready
	phase.Outcome = report.OutcomeOK()
	return phase, nil
}

// waitReady polls the metadata readiness probe until StabilityWindow
// consecutive successes are observed or ctx is done.
func (c *Controller) waitReady(ctx context.Context) error {
	consecutive := 0
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	baseline := &probe.ValidationBaseline{}
	for {
		outcome := probe.Metadata(ctx, c.client, c.server, nil, baseline)
		if outcome.Success {
			consecutive++
			if consecutive >= c.opts.StabilityWindow {
				return nil
			}
		} else {
			consecutive = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Reset issues the server's per-operation reset callback, if it has one.
// Returns ErrNoResetSupport when the server has no reset mechanism, so the
// coordinator can skip operations that depend on an empty dataset rather
// than run them against a contaminated one (spec.md §4.4/§9).
func (c *Controller) Reset(ctx context.Context) error {
	if !c.server.HasReset() {
		return ErrNoResetSupport
	}
	c.state = Operating
	return c.server.Reset(c.client, c.server.BaseURL)
}

// Shutdown invokes the server's "down" recipe. Per spec.md §4.4, this must
// run on every exit path regardless of prior failures; callers should
// defer it before calling Launch, so it runs whether launch succeeds or
// fails (teardown of partially-started containers is still required).
func (c *Controller) Shutdown(ctx context.Context) report.Phase {
	phase := report.Phase{Started: time.Now().UTC()}
	c.state = ShuttingDown

	cmd := exec.CommandContext(ctx, c.server.DownScript)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	phase.Completed = time.Now().UTC()

	if err != nil {
		c.state = Failed
		phase.Outcome = report.OutcomeErr(apperrors.ShutdownError(err, "down script for %q exited: %s", c.server.ID, stderr.String()).Error())
		return phase
	}

	c.state = Stopped
	phase.Outcome = report.OutcomeOK()
	return phase
}

func appendLogs(detail, logs string) string {
	if logs == "" {
		return detail
	}
	const maxLogBytes = 4096
	if len(logs) > maxLogBytes {
		logs = logs[len(logs)-maxLogBytes:]
	}
	return detail + "; logs: " + logs
}
