// fhirbench benchmarks FHIR servers under controlled conditions and emits a
// machine-readable report of their throughput, latency distribution and
// failure ratios (spec.md §1).
//
// Grounded on timescale-tsbs's cmd/tsbs_load, which builds a cobra root
// command and binds its flags through github.com/blagojts/viper.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fhirbench",
	Short: "Benchmark FHIR servers under controlled, reproducible conditions",
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
