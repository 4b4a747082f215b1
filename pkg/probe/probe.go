// Package probe implements the operation probe (C2): a pure function over
// (server base URL, inputs, HTTP client) returning an
// report.IterationOutcome, classifying transport, status and validation
// failures.
//
// Grounded on the original orchestrator's test_framework/metadata.rs
// (GET /metadata) and test_framework/post_org.rs (POST /Organization).
package probe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fhirbench/fhirbench/pkg/report"
	"github.com/fhirbench/fhirbench/pkg/servers"
)

// Input is the per-iteration data a probe consumes. It may be nil for
// operations with no input (e.g. metadata).
type Input = json.RawMessage

// Func executes one iteration of a named FHIR operation against one
// server. Implementations must confine all observable side effects to HTTP
// traffic against the server under test (spec.md §4.2).
type Func func(ctx context.Context, client *http.Client, server servers.Descriptor, input Input, baseline *ValidationBaseline) report.IterationOutcome

// ValidationBaseline records the first validated response's shape for a
// given (server, operation, concurrency) triplet, so that only the first
// iteration performs the expensive structural check while later ones do a
// cheap fuzzy comparison (spec.md §4.2).
type ValidationBaseline struct {
	mu          sync.Mutex
	set         bool
	bodySize    int
	contentType string
}

// EstablishOrCheck records baseline on the first call and returns true
// (already validated). On subsequent calls, it returns whether the given
// response is within tolerance of the baseline without needing to fully
// re-parse the body.
func (b *ValidationBaseline) EstablishOrCheck(bodySize int, contentType string) (isBaseline, withinTolerance bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.set {
		b.set = true
		b.bodySize = bodySize
		b.contentType = contentType
		return true, true
	}

	if contentType != b.contentType {
		return false, false
	}
	lower := float64(b.bodySize) * 0.5
	upper := float64(b.bodySize) * 1.5
	within := float64(bodySize) >= lower && float64(bodySize) <= upper
	return false, within
}

func classifyTransportOrHTTP(resp *http.Response, err error, duration time.Duration) (report.IterationOutcome, bool) {
	if err != nil {
		return report.IterationOutcome{
			Success:        false,
			DurationMillis: duration.Milliseconds(),
			Kind:           report.FailureTransport,
		}, true
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return report.IterationOutcome{
			Success:        false,
			DurationMillis: duration.Milliseconds(),
			Kind:           report.FailureHTTPStatus,
		}, true
	}
	return report.IterationOutcome{}, false
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
}

// Metadata probes a server's capability statement endpoint
// (GET {baseURL}/metadata), validating resourceType == "CapabilityStatement"
// on the first iteration of each (server, operation, concurrency) triplet
// and falling back to the cheap fuzzy check thereafter. Grounded on the
// original test_framework/metadata.rs.
func Metadata(ctx context.Context, client *http.Client, server servers.Descriptor, _ Input, baseline *ValidationBaseline) report.IterationOutcome {
	url := server.BaseURL + "metadata"
	req, err := server.BuildRequest(http.MethodGet, url, nil)
	if err != nil {
		return report.IterationOutcome{Success: false, Kind: report.FailureTransport}
	}
	req = req.WithContext(ctx)

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if outcome, failed := classifyTransportOrHTTP(resp, err, duration); failed {
		return outcome
	}
	defer resp.Body.Close()

	body, readErr := readBody(resp)
	if readErr != nil {
		return report.IterationOutcome{Success: false, DurationMillis: duration.Milliseconds(), Kind: report.FailureTransport}
	}

	isBaseline, within := baseline.EstablishOrCheck(len(body), resp.Header.Get("Content-Type"))
	if isBaseline {
		var typed struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(body, &typed); err != nil || typed.ResourceType != "CapabilityStatement" {
			return report.IterationOutcome{Success: false, DurationMillis: duration.Milliseconds(), Kind: report.FailureValidation}
		}
	} else if !within {
		return report.IterationOutcome{Success: false, DurationMillis: duration.Milliseconds(), Kind: report.FailureValidation}
	}

	return report.IterationOutcome{Success: true, DurationMillis: duration.Milliseconds()}
}

// PostOrganization probes POST {baseURL}/Organization with a sample
// Organization resource drawn from pkg/sampledata, validating
// resourceType == "Organization" and a non-empty id on the baseline
// iteration. Grounded on the original test_framework/post_org.rs.
func PostOrganization(ctx context.Context, client *http.Client, server servers.Descriptor, input Input, baseline *ValidationBaseline) report.IterationOutcome {
	url := server.BaseURL + "Organization"
	req, err := server.BuildRequest(http.MethodPost, url, input)
	if err != nil {
		return report.IterationOutcome{Success: false, Kind: report.FailureTransport}
	}
	req = req.WithContext(ctx)

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if outcome, failed := classifyTransportOrHTTP(resp, err, duration); failed {
		return outcome
	}
	defer resp.Body.Close()

	body, readErr := readBody(resp)
	if readErr != nil {
		return report.IterationOutcome{Success: false, DurationMillis: duration.Milliseconds(), Kind: report.FailureTransport}
	}

	isBaseline, within := baseline.EstablishOrCheck(len(body), resp.Header.Get("Content-Type"))
	if isBaseline {
		var typed struct {
			ResourceType string `json:"resourceType"`
			ID           string `json:"id"`
		}
		if err := json.Unmarshal(body, &typed); err != nil || typed.ResourceType != "Organization" || typed.ID == "" {
			return report.IterationOutcome{Success: false, DurationMillis: duration.Milliseconds(), Kind: report.FailureValidation}
		}
	} else if !within {
		return report.IterationOutcome{Success: false, DurationMillis: duration.Milliseconds(), Kind: report.FailureValidation}
	}

	return report.IterationOutcome{Success: true, DurationMillis: duration.Milliseconds()}
}
