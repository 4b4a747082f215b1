// Package servers declares the server descriptors (spec.md §3): stable
// identifiers, lifecycle recipe handles and base URL templates for each
// FHIR server implementation under test.
//
// Grounded on the original orchestrator's servers/mod.rs (ServerName,
// ServerPlugin) and its docker-compose-backed implementations
// (servers/hapi_jpa.rs, servers/firely_spark.rs, servers/ibm_fhir.rs).
package servers

import (
	"bytes"
	"io"
	"net/http"
)

// RequestBuilderFactory builds the *http.Request for a probe call against a
// particular server implementation, letting servers that need nonstandard
// content negotiation (headers, auth, etc.) customize it. Grounded on the
// original DockerComposeServerPlugin.request_builder_factory.
type RequestBuilderFactory func(method, url string, body []byte) (*http.Request, error)

// ResetFunc wipes all resources from a running server instance so that the
// next operation measured against it starts from an empty dataset. Servers
// without a supported reset mechanism leave this nil; per spec.md §4.4/§9
// the coordinator then skips operations that depend on an empty dataset
// rather than contaminate results.
type ResetFunc func(client *http.Client, baseURL string) error

// Descriptor is a server's immutable, run-long identity and lifecycle
// handle (spec.md §3).
type Descriptor struct {
	// ID is the stable, human-readable identifier used throughout the
	// report.
	ID string

	// UpScript and DownScript are paths to the shell-executable recipe
	// pair (spec.md §6) that bring the server's containers up and down.
	// Their internal implementation (Docker Compose, etc.) is opaque to
	// this package.
	UpScript   string
	DownScript string

	// BaseURL is the server's base FHIR endpoint URL once launched, e.g.
	// "http://localhost:8080/fhir/".
	BaseURL string

	// RequestBuilder customizes outgoing probe requests for this server's
	// FHIR flavor. If nil, a plain application/fhir+json request is used.
	RequestBuilder RequestBuilderFactory

	// Reset wipes the server's dataset. Nil means "no reset support".
	Reset ResetFunc
}

// HasReset reports whether this server supports the per-operation reset
// callback described in spec.md §4.4/§9.
func (d Descriptor) HasReset() bool { return d.Reset != nil }

func defaultRequestBuilder(method, url string, body []byte) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/fhir+json")
	}
	req.Header.Set("Accept", "application/fhir+json")
	return req, nil
}

// BuildRequest builds an outgoing request using the descriptor's
// RequestBuilder, falling back to the default FHIR content negotiation.
func (d Descriptor) BuildRequest(method, url string, body []byte) (*http.Request, error) {
	if d.RequestBuilder != nil {
		return d.RequestBuilder(method, url, body)
	}
	return defaultRequestBuilder(method, url, body)
}

// HAPI returns the descriptor for the HAPI FHIR JPA server implementation,
// grounded on the original servers/hapi_jpa.rs.
func HAPI() Descriptor {
	return Descriptor{
		ID:         "hapi-fhir-jpaserver",
		UpScript:   "scripts/hapi-fhir-jpaserver/up.sh",
		DownScript: "scripts/hapi-fhir-jpaserver/down.sh",
		BaseURL:    "http://localhost:8080/fhir/",
		Reset:      expungeEverything,
	}
}

// FirelySpark returns the descriptor for the Firely Spark server
// implementation, grounded on the original servers/firely_spark.rs. Spark
// has no supported bulk-reset endpoint, so Reset is left nil.
func FirelySpark() Descriptor {
	return Descriptor{
		ID:         "firely-spark",
		UpScript:   "scripts/firely-spark/up.sh",
		DownScript: "scripts/firely-spark/down.sh",
		BaseURL:    "http://localhost:8081/fhir/",
	}
}

// IBMFHIR returns the descriptor for the IBM FHIR Server implementation,
// grounded on the original servers/ibm_fhir.rs.
func IBMFHIR() Descriptor {
	return Descriptor{
		ID:         "ibm-fhir-server",
		UpScript:   "scripts/ibm-fhir-server/up.sh",
		DownScript: "scripts/ibm-fhir-server/down.sh",
		BaseURL:    "https://localhost:9443/fhir-server/api/v4/",
		Reset:      expungeEverything,
	}
}

// All returns the full set of server descriptors this build knows how to
// benchmark, in the fixed order they are exercised (spec.md §4.5).
func All() []Descriptor {
	return []Descriptor{HAPI(), FirelySpark(), IBMFHIR()}
}
