package dateparse

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AcceptedFormats(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339 with zone", "2024-03-15T10:30:00Z", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)},
		{"rfc3339 offset", "2024-03-15T12:30:00+02:00", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)},
		{"iso without zone", "2024-03-15T10:30:00", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)},
		{"sql datetime", "2024-03-15 10:30:00", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)},
		{"date only", "2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"slash separators", "2024/03/15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"us format", "03/15/2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"eu format", "15.03.2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"whitespace trimmed", "  2024-03-15  ", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}

func TestParse_Unparseable(t *testing.T) {
	for _, input := range []string{"", "not a date", "32/13/2024", "yesterday"} {
		_, err := Parse(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseLogged_NeverSubstitutesNow(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)

	got, ok := ParseLogged("garbage", log)
	assert.False(t, ok)
	assert.True(t, got.IsZero(), "failed parse must return zero time, not now()")
}

func TestCivilDate(t *testing.T) {
	in := time.Date(2024, 3, 15, 23, 59, 59, 0, time.FixedZone("EST", -5*3600))
	got := CivilDate(in)
	// 23:59 EST is already March 16 in UTC
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), got)
}

func TestFormatRoundTrip(t *testing.T) {
	d := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	parsed, err := Parse(FormatDate(d))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(d))

	ts := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	parsedTS, err := Parse(FormatTime(ts))
	require.NoError(t, err)
	assert.True(t, parsedTS.Equal(ts))
}
