// Package buildinfo wires the report's benchmark_metadata (spec.md §3)
// to concrete build and host-introspection sources: commit/build-profile
// strings set via -ldflags at build time, and a host CPU summary read at
// process start.
//
// Grounded on timescale-tsbs's cmd/tsbs_load_timescaledb/profile.go, which
// already depends on github.com/shirou/gopsutil for host process
// introspection; this package uses the same library's cpu package instead.
package buildinfo

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/cpu"

	"github.com/fhirbench/fhirbench/pkg/report"
)

// CommitID and BuildProfile are set via -ldflags at build time, e.g.:
//
//	go build -ldflags "-X github.com/fhirbench/fhirbench/internal/buildinfo.CommitID=$(git rev-parse HEAD) -X github.com/fhirbench/fhirbench/internal/buildinfo.BuildProfile=release"
var (
	CommitID     = "unknown"
	BuildProfile = "unknown"
)

// Collect returns the report.BenchmarkMetadata for this run: the build
// identifiers above plus a best-effort host CPU summary. Failures reading
// host CPU info are non-fatal: benchmark_metadata is purely informational
// (spec.md §3), so a degraded summary string is preferable to aborting the
// run over it.
func Collect() report.BenchmarkMetadata {
	return report.BenchmarkMetadata{
		CommitID:       CommitID,
		BuildProfile:   BuildProfile,
		HostCPUSummary: hostCPUSummary(),
	}
}

func hostCPUSummary() string {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		return "unknown"
	}
	counts, err := cpu.Counts(true)
	if err != nil {
		counts = len(infos)
	}
	return fmt.Sprintf("%s (%d logical cores)", strings.TrimSpace(infos[0].ModelName), counts)
}
