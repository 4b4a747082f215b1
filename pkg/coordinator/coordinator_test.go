package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fhirbench/fhirbench/pkg/lifecycle"
	"github.com/fhirbench/fhirbench/pkg/report"
	"github.com/fhirbench/fhirbench/pkg/servers"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "script.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func happyServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/fhir+json")
		w.Write([]byte(`{"resourceType":"CapabilityStatement"}`))
	}))
}

func baseConfig() report.Config {
	return report.Config{Iterations: 5, OperationTimeoutMS: 1000, ConcurrencyLevels: []int{1}, PopulationSize: 1}
}

func quickOpts() lifecycle.Options {
	return lifecycle.Options{PollInterval: 2 * time.Millisecond, LaunchTimeout: time.Second, StabilityWindow: 1}
}

func TestLaunchFailureSkipsOperationsAndStillShutsDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	up := writeScript(t, "exit 0")
	down := writeScript(t, "exit 0")

	server := servers.Descriptor{ID: "broken", UpScript: up, DownScript: down, BaseURL: ts.URL + "/"}
	c := New(zerolog.Nop(), ts.Client(), []Operation{MetadataOperation()}, lifecycle.Options{PollInterval: 2 * time.Millisecond, LaunchTimeout: 30 * time.Millisecond, StabilityWindow: 1})

	rep := c.Run(context.Background(), []servers.Descriptor{server}, baseConfig(), report.BenchmarkMetadata{})

	result := rep.Server("broken")
	require.NotNil(t, result)
	require.False(t, result.Launch.Outcome.Ok())
	require.Nil(t, result.Operations)
	require.True(t, result.Shutdown.Outcome.Ok())
}

func TestNextServerStillProcessedAfterLaunchFailure(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()
	good := happyServer(t)
	defer good.Close()

	up := writeScript(t, "exit 0")
	down := writeScript(t, "exit 0")

	servers1 := []servers.Descriptor{
		{ID: "broken", UpScript: up, DownScript: down, BaseURL: broken.URL + "/"},
		{ID: "good", UpScript: up, DownScript: down, BaseURL: good.URL + "/"},
	}

	client := &http.Client{}
	c := New(zerolog.Nop(), client, []Operation{MetadataOperation()}, lifecycle.Options{PollInterval: 2 * time.Millisecond, LaunchTimeout: 30 * time.Millisecond, StabilityWindow: 1})
	rep := c.Run(context.Background(), servers1, baseConfig(), report.BenchmarkMetadata{})

	require.False(t, rep.Server("broken").Launch.Outcome.Ok())
	require.True(t, rep.Server("good").Launch.Outcome.Ok())
	require.NotNil(t, rep.Server("good").Operations)
}

func TestOrderDeterminism(t *testing.T) {
	ts := happyServer(t)
	defer ts.Close()
	up := writeScript(t, "exit 0")
	down := writeScript(t, "exit 0")

	server := servers.Descriptor{ID: "mock", UpScript: up, DownScript: down, BaseURL: ts.URL + "/"}
	cfg := report.Config{Iterations: 5, OperationTimeoutMS: 1000, ConcurrencyLevels: []int{1, 2}, PopulationSize: 1}

	run := func() *report.Report {
		c := New(zerolog.Nop(), ts.Client(), []Operation{MetadataOperation()}, quickOpts())
		return c.Run(context.Background(), []servers.Descriptor{server}, cfg, report.BenchmarkMetadata{})
	}

	r1 := run()
	r2 := run()

	require.Equal(t, len(r1.Server("mock").Operations[0].Measurements), len(r2.Server("mock").Operations[0].Measurements))
	for i := range r1.Server("mock").Operations[0].Measurements {
		require.Equal(t,
			r1.Server("mock").Operations[0].Measurements[i].ConcurrentUsers,
			r2.Server("mock").Operations[0].Measurements[i].ConcurrentUsers,
		)
	}
}

// TestShutdownRunsUnderExternalCancellation covers scenario S5: even when
// the run's context is cancelled externally (e.g. SIGINT) while operations
// are still in flight, the down recipe must still execute exactly once.
// Reusing the cancelled context for Shutdown would make exec.CommandContext
// refuse to even spawn the down script, silently skipping teardown.
func TestShutdownRunsUnderExternalCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/fhir+json")
		w.Write([]byte(`{"resourceType":"CapabilityStatement"}`))
	}))
	defer ts.Close()

	marker := filepath.Join(t.TempDir(), "torn-down")
	up := writeScript(t, "exit 0")
	down := writeScript(t, "touch "+marker)

	server := servers.Descriptor{ID: "cancel-me", UpScript: up, DownScript: down, BaseURL: ts.URL + "/"}
	cfg := report.Config{Iterations: 1000, OperationTimeoutMS: 1000, ConcurrencyLevels: []int{4}, PopulationSize: 1}
	c := New(zerolog.Nop(), ts.Client(), []Operation{MetadataOperation()}, quickOpts())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *report.Report, 1)
	go func() {
		done <- c.Run(ctx, []servers.Descriptor{server}, cfg, report.BenchmarkMetadata{})
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, time.Second, 10*time.Millisecond, "down recipe must run even after external cancellation")
}

func TestNoResetSupportSkipsDependentOperation(t *testing.T) {
	ts := happyServer(t)
	defer ts.Close()
	up := writeScript(t, "exit 0")
	down := writeScript(t, "exit 0")

	server := servers.Descriptor{ID: "no-reset", UpScript: up, DownScript: down, BaseURL: ts.URL + "/"}
	c := New(zerolog.Nop(), ts.Client(), []Operation{{ID: "needs-reset", Probe: nil, RequiresReset: true}}, quickOpts())

	rep := c.Run(context.Background(), []servers.Descriptor{server}, baseConfig(), report.BenchmarkMetadata{})
	op := rep.Server("no-reset").Operations[0]
	require.Empty(t, op.Measurements)
	require.NotEmpty(t, op.Errors)
}
