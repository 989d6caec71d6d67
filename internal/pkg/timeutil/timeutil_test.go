package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{"zulu", "2026-03-01T10:00:00Z", want, true},
		{"explicit utc offset", "2026-03-01T10:00:00+00:00", want, true},
		{"other offset", "2026-03-01T12:00:00+02:00", want, true},
		{"offset without colon", "2026-03-01T12:00:00+0200", want, true},
		{"hour-only offset", "2026-03-01T15:00:00+05", want, true},
		{"negative hour-only offset", "2026-03-01 07:00:00-03", want, true},
		{"lowercase zulu", "2026-03-01T10:00:00z", want, true},
		{"lowercase zulu fractional", "2026-03-01T10:00:00.5z", want.Add(500 * time.Millisecond), true},
		{"fractional seconds", "2026-03-01T10:00:00.000000Z", want, true},
		{"space separator", "2026-03-01 10:00:00+00:00", want, true},
		{"naive", "2026-03-01T10:00:00", want, true},
		{"naive with space", "2026-03-01 10:00:00", want, true},
		{"naive minutes", "2026-03-01T10:00", want, true},
		{"date only", "2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"surrounding whitespace", "  2026-03-01T10:00:00Z ", want, true},
		{"empty", "", time.Time{}, false},
		{"blank", "   ", time.Time{}, false},
		{"garbage", "yesterday", time.Time{}, false},
		{"bad month", "2026-13-01T10:00:00Z", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %v", got)
				assert.Equal(t, time.UTC, got.Location())
			}
		})
	}
}

func TestParse_ZuluEqualsOffset(t *testing.T) {
	a, ok := Parse("2026-01-01T00:00:00Z")
	require.True(t, ok)
	b, ok := Parse("2026-01-01T00:00:00+00:00")
	require.True(t, ok)
	assert.True(t, a.Equal(b))
}

func TestParsePtr(t *testing.T) {
	assert.Nil(t, ParsePtr(nil))

	bad := "not a date"
	assert.Nil(t, ParsePtr(&bad))

	good := "2026-01-01T00:00:00Z"
	got := ParsePtr(&good)
	require.NotNil(t, got)
	assert.Equal(t, 2026, got.Year())
}

func TestBetween(t *testing.T) {
	from := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	to := from.Add(90 * time.Minute)

	minutes, ok := MinutesBetween(&from, &to)
	require.True(t, ok)
	assert.InDelta(t, 90.0, minutes, 1e-9)

	hours, ok := HoursBetween(&from, &to)
	require.True(t, ok)
	assert.InDelta(t, 1.5, hours, 1e-9)

	negative, ok := MinutesBetween(&to, &from)
	require.True(t, ok)
	assert.InDelta(t, -90.0, negative, 1e-9)

	_, ok = MinutesBetween(nil, &to)
	assert.False(t, ok)
	_, ok = HoursBetween(&from, nil)
	assert.False(t, ok)
}

func TestFormat(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 30, 0, 0, time.FixedZone("x", 3600))
	assert.Equal(t, "2026-01-01T11:30:00Z", Format(ts))
}
