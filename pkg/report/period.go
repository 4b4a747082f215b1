package report

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Period is a time.Duration that marshals to/from an RFC 3339 / ISO-8601
// period string. Marshalling always writes nine fractional digits, e.g.
// "PT10.132000000S"; unmarshalling accepts one to nine, e.g. "PT10.132S".
// Grounded on the original orchestrator's serde_duration_iso8601 codec.
type Period time.Duration

var periodPattern = regexp.MustCompile(`^PT(\d+)\.(\d{1,9})S$`)

func (p Period) String() string {
	d := time.Duration(p)
	seconds := int64(d / time.Second)
	nanos := int64(d % time.Second)
	if nanos < 0 {
		nanos = -nanos
	}
	return fmt.Sprintf("PT%d.%09dS", seconds, nanos)
}

func (p Period) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

func (p *Period) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("period: expected a JSON string, got %q", data)
	}
	text := string(data[1 : len(data)-1])
	m := periodPattern.FindStringSubmatch(text)
	if m == nil {
		return fmt.Errorf("period: %q does not match the expected 'PT<seconds>.<nanos>S' format", text)
	}
	seconds, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return err
	}
	nanosText := m[2]
	for len(nanosText) < 9 {
		nanosText += "0"
	}
	nanos, err := strconv.ParseInt(nanosText, 10, 64)
	if err != nil {
		return err
	}
	*p = Period(time.Duration(seconds)*time.Second + time.Duration(nanos))
	return nil
}
