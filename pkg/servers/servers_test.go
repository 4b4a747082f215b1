package servers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllHasStableOrder(t *testing.T) {
	descriptors := All()
	require.Equal(t, []string{"hapi-fhir-jpaserver", "firely-spark", "ibm-fhir-server"}, ids(descriptors))
}

func TestHAPIHasReset(t *testing.T) {
	require.True(t, HAPI().HasReset())
}

func TestFirelySparkHasNoReset(t *testing.T) {
	require.False(t, FirelySpark().HasReset())
}

func TestBuildRequestDefaultsToFHIRJSON(t *testing.T) {
	d := HAPI()
	req, err := d.BuildRequest("POST", "http://example.invalid/Organization", []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, "application/fhir+json", req.Header.Get("Content-Type"))
}

func ids(ds []Descriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}
