package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOutcomeMarshalOk(t *testing.T) {
	data, err := json.Marshal(OutcomeOK())
	require.NoError(t, err)
	require.JSONEq(t, `{"Ok":[]}`, string(data))
}

func TestOutcomeMarshalErrs(t *testing.T) {
	data, err := json.Marshal(OutcomeErr("boom", "again"))
	require.NoError(t, err)
	require.JSONEq(t, `{"Errs":["boom","again"]}`, string(data))
}

func TestOutcomeRoundTrip(t *testing.T) {
	for _, o := range []Outcome{OutcomeOK(), OutcomeErr("x")} {
		data, err := json.Marshal(o)
		require.NoError(t, err)
		var decoded Outcome
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.Equal(t, o.Ok(), decoded.Ok())
	}
}

func TestPeriodRoundTrip(t *testing.T) {
	p := Period(time.Second*10 + 132*time.Millisecond)
	require.Equal(t, "PT10.132000000S", p.String())

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded Period
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, p, decoded)
}

func TestReportTopLevelKeyOrder(t *testing.T) {
	r := NewReport(Config{Iterations: 1, ConcurrencyLevels: []int{1}}, BenchmarkMetadata{}, []string{"hapi"})
	r.Completed = r.Started

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Contains(t, raw, "started")
	require.Contains(t, raw, "completed")
	require.Contains(t, raw, "config")
	require.Contains(t, raw, "benchmark_metadata")
	require.Contains(t, raw, "servers")

	// encoding/json preserves struct field order, which is what guarantees
	// the stable top-level key order spec.md requires.
	idxStarted := indexOfKey(string(data), "started")
	idxCompleted := indexOfKey(string(data), "completed")
	idxConfig := indexOfKey(string(data), "config")
	idxMeta := indexOfKey(string(data), "benchmark_metadata")
	idxServers := indexOfKey(string(data), "servers")
	require.True(t, idxStarted < idxCompleted)
	require.True(t, idxCompleted < idxConfig)
	require.True(t, idxConfig < idxMeta)
	require.True(t, idxMeta < idxServers)
}

func indexOfKey(s, key string) int {
	needle := `"` + key + `"`
	for i := 0; i+len(needle) <= len(s); i++ {
		if s[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestServerLookup(t *testing.T) {
	r := NewReport(Config{}, BenchmarkMetadata{}, []string{"a", "b"})
	require.NotNil(t, r.Server("a"))
	require.NotNil(t, r.Server("b"))
	require.Nil(t, r.Server("c"))

	r.Server("a").Launch.Outcome = OutcomeOK()
	require.True(t, r.Server("a").Launch.Outcome.Ok())
}
