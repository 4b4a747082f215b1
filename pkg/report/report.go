// Package report defines the typed tree that a benchmark run is reduced to,
// and its stable JSON encoding.
package report

import (
	"encoding/json"
	"time"
)

// FailureKind enumerates the ways a single iteration can fail.
type FailureKind string

const (
	FailureTimeout    FailureKind = "timeout"
	FailureTransport  FailureKind = "transport_error"
	FailureHTTPStatus FailureKind = "http_status_error"
	FailureValidation FailureKind = "validation_error"
)

// IterationOutcome is the result of a single probe execution.
type IterationOutcome struct {
	Success        bool
	DurationMillis int64
	Kind           FailureKind // zero value when Success is true
}

// Metrics summarises the latency/throughput profile of a measurement. It is
// only produced when at least one iteration succeeded (invariant I3).
type Metrics struct {
	ThroughputPerSecond      float64 `json:"throughput_per_second"`
	LatencyMillisMean        float64 `json:"latency_millis_mean"`
	LatencyMillisP50         int64   `json:"latency_millis_p50"`
	LatencyMillisP90         int64   `json:"latency_millis_p90"`
	LatencyMillisP99         int64   `json:"latency_millis_p99"`
	LatencyMillisP999        int64   `json:"latency_millis_p999"`
	LatencyMillisP100        int64   `json:"latency_millis_p100"`
	LatencyHistogram         string  `json:"latency_histogram"`
	LatencyHistogramHgrmGzip string  `json:"latency_histogram_hgrm_gzip"`
	// ClampedCount is the number of successful iterations whose duration
	// exceeded the histogram's ceiling and was clamped to it (spec.md §9's
	// "above-range values clamp; the measurement flags this condition").
	ClampedCount int `json:"clamped_count"`
}

// Measurement is one (operation, concurrent_users) pair's sealed aggregate.
type Measurement struct {
	ConcurrentUsers   int       `json:"concurrent_users"`
	Started           time.Time `json:"started"`
	Completed         time.Time `json:"completed"`
	ExecutionDuration Period    `json:"execution_duration"`
	IterationsFailed  int       `json:"iterations_failed"`
	IterationsSkipped int       `json:"iterations_skipped"`
	Metrics           *Metrics  `json:"metrics"`
}

// OperationResult carries every measurement taken for one operation against
// one server, in configured concurrency order.
type OperationResult struct {
	Operation    string        `json:"operation"`
	Errors       []string      `json:"errors"`
	Measurements []Measurement `json:"measurements"`
}

// Outcome is the tagged-union success/failure result of a framework-level
// operation (launch or shutdown). It marshals as either {"Ok":[]} or
// {"Errs":["..."]}, matching the original orchestrator's Rust enum.
type Outcome struct {
	Errs []string // nil/empty means Ok
}

// Ok reports whether this Outcome represents success.
func (o Outcome) Ok() bool { return len(o.Errs) == 0 }

// OutcomeOK constructs a successful Outcome.
func OutcomeOK() Outcome { return Outcome{} }

// OutcomeErr constructs a failed Outcome from one or more error messages.
func OutcomeErr(msgs ...string) Outcome { return Outcome{Errs: msgs} }

func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.Ok() {
		return json.Marshal(struct {
			Ok []string `json:"Ok"`
		}{Ok: []string{}})
	}
	return json.Marshal(struct {
		Errs []string `json:"Errs"`
	}{Errs: o.Errs})
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var asOk struct {
		Ok []string `json:"Ok"`
	}
	var asErrs struct {
		Errs []string `json:"Errs"`
	}
	if err := json.Unmarshal(data, &asErrs); err == nil && asErrs.Errs != nil {
		o.Errs = asErrs.Errs
		return nil
	}
	if err := json.Unmarshal(data, &asOk); err != nil {
		return err
	}
	o.Errs = nil
	return nil
}

// Phase records the wall-clock window and outcome of a lifecycle step
// (launch or shutdown) for one server.
type Phase struct {
	Started   time.Time `json:"started"`
	Completed time.Time `json:"completed"`
	Outcome   Outcome   `json:"outcome"`
}

// ServerResult is the complete record of one server's benchmark attempt.
type ServerResult struct {
	ServerID   string            `json:"server_id"`
	Launch     Phase             `json:"launch"`
	Operations []OperationResult `json:"operations"` // nil (-> null) if launch failed
	Shutdown   Phase             `json:"shutdown"`
}

// Config is the enumerated set of run configuration values, fixed at run
// start and echoed verbatim in the report.
type Config struct {
	Iterations         int   `json:"iterations"`
	OperationTimeoutMS int   `json:"operation_timeout_ms"`
	ConcurrencyLevels  []int `json:"concurrency_levels"`
	PopulationSize     int   `json:"population_size"`
}

// BenchmarkMetadata carries informational, opaque build/host strings.
type BenchmarkMetadata struct {
	CommitID       string `json:"commit_id"`
	BuildProfile   string `json:"build_profile"`
	HostCPUSummary string `json:"host_cpu_summary"`
}

// Report is the top-level, self-contained document emitted by a run.
type Report struct {
	Started           time.Time         `json:"started"`
	Completed         time.Time         `json:"completed"`
	Config            Config            `json:"config"`
	BenchmarkMetadata BenchmarkMetadata `json:"benchmark_metadata"`
	Servers           []ServerResult    `json:"servers"`
}

// NewReport constructs an empty Report with one ServerResult slot per
// server ID, in the order given, per invariant I6.
func NewReport(cfg Config, meta BenchmarkMetadata, serverIDs []string) *Report {
	servers := make([]ServerResult, len(serverIDs))
	for i, id := range serverIDs {
		servers[i] = ServerResult{ServerID: id}
	}
	return &Report{
		Started:           time.Now().UTC(),
		Config:            cfg,
		BenchmarkMetadata: meta,
		Servers:           servers,
	}
}

// Server returns a pointer to the ServerResult for the given ID, so callers
// can mutate it in place as a server's benchmark proceeds.
func (r *Report) Server(id string) *ServerResult {
	for i := range r.Servers {
		if r.Servers[i].ServerID == id {
			return &r.Servers[i]
		}
	}
	return nil
}
