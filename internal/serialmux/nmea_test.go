package serialmux

import (
	"strings"
	"testing"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/testutil"
)

const (
	sampleRMC = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	sampleGGA = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
)

func TestParseRMC(t *testing.T) {
	t.Parallel()
	s, err := ParseSentence(sampleRMC)
	require.NoError(t, err)
	assert.Equal(t, "GP", s.TalkerID())
	assert.Equal(t, nmea.TypeRMC, s.DataType())

	fix, err := ParseRMC(s)
	require.NoError(t, err)
	assert.InDelta(t, 48.1173, fix.Latitude, 1e-9)
	assert.InDelta(t, 11.516667, fix.Longitude, 1e-6)
	assert.InDelta(t, 11.5236, fix.Speed, 1e-3)
	assert.Equal(t, 84.4, fix.Bearing)
	assert.Equal(t, time.Date(1994, 3, 23, 12, 35, 19, 0, time.UTC), fix.Time)
}

func TestParseRMCHemispheresAndFractionalSeconds(t *testing.T) {
	t.Parallel()
	s, err := ParseSentence(WithChecksum("GNRMC,081836.75,A,3751.65,S,14507.36,W,000.0,360.0,130998,011.3,E,A"))
	require.NoError(t, err)
	assert.Equal(t, "GN", s.TalkerID())

	fix, err := ParseRMC(s)
	require.NoError(t, err)
	assert.InDelta(t, -37.860833, fix.Latitude, 1e-6)
	assert.InDelta(t, -145.122667, fix.Longitude, 1e-6)
	assert.Equal(t, 0.0, fix.Speed)
	assert.Equal(t, time.Date(1998, 9, 13, 8, 18, 36, 750_000_000, time.UTC), fix.Time)
}

func TestParseSentenceErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		line string
		want error
	}{
		{"empty", "", ErrNotNMEA},
		{"no dollar", "GPRMC,123519,A", ErrNotNMEA},
		{"bad checksum", sampleRMC[:len(sampleRMC)-2] + "6B", ErrMalformed},
		{"corrupted body", "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,E*6A", ErrMalformed},
		{"missing checksum", "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W", ErrMalformed},
		{"void RMC without position", WithChecksum("GPRMC,123520,V,,,,,,,230394,,"), nil},
		{"corrupted void RMC", "$GPRMC,123520,V,,,,,,,230394,,*00", ErrMalformed},
		{"GGA without fix", WithChecksum("GPGGA,123519,,,,,0,00,99.9,,M,,M,,"), nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSentence(tc.line)
			if tc.want == nil {
				if err != nil {
					assert.ErrorIs(t, err, ErrNoFix)
				}
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParseRMCErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want error
	}{
		{"void status", "GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W", ErrNoFix},
		{"no fix mode", "GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W,N", ErrNoFix},
		{"wrong type", "GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,", ErrMalformed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := ParseSentence(WithChecksum(tc.body))
			require.NoError(t, err)
			_, err = ParseRMC(s)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParseRMCRejectsBadFields(t *testing.T) {
	t.Parallel()
	for _, body := range []string{
		"GPRMC,123519,A,4807.038,N",
		"GPRMC,123519,A,48x7.038,N,01131.000,E,022.4,084.4,230394,,",
		"GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,2303,,",
		"GPRMC,123519,A,4807.038,N,01131.000,E,fast,084.4,230394,,",
	} {
		_, err := ParseSentence(WithChecksum(body))
		assert.ErrorIs(t, err, ErrMalformed, body)
	}
}

func TestParseRMCWithoutCourse(t *testing.T) {
	t.Parallel()
	s, err := ParseSentence(WithChecksum("GPRMC,123519,A,4807.038,N,01131.000,E,,,230394,,"))
	require.NoError(t, err)
	fix, err := ParseRMC(s)
	require.NoError(t, err)
	assert.False(t, fix.HasBearing())
}

func TestParseGGAAccuracy(t *testing.T) {
	t.Parallel()
	s, err := ParseSentence(sampleGGA)
	require.NoError(t, err)
	acc, err := ParseGGAAccuracy(s)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, acc, 1e-9)

	s, err = ParseSentence(WithChecksum("GPGGA,123519,4807.038,N,01131.000,E,0,00,99.9,545.4,M,46.9,M,,"))
	require.NoError(t, err)
	_, err = ParseGGAAccuracy(s)
	assert.ErrorIs(t, err, ErrNoFix)

	_, err = ParseGGAAccuracy(mustParse(t, sampleRMC))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFormatRMCRoundTrip(t *testing.T) {
	t.Parallel()
	fixes := testutil.Walk(testutil.Along(testutil.TwoStepRoute().Geometry, 20), testutil.Epoch)
	fixes = append(fixes, route.Fix{
		Latitude: -33.8688, Longitude: 151.2093, Speed: 3, Bearing: 271.5,
		Time: time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
	})
	for _, want := range fixes {
		line := FormatRMC(want)
		s, err := ParseSentence(line)
		require.NoError(t, err, line)
		got, err := ParseRMC(s)
		require.NoError(t, err, line)

		assert.InDelta(t, want.Latitude, got.Latitude, 1e-7)
		assert.InDelta(t, want.Longitude, got.Longitude, 1e-7)
		assert.InDelta(t, want.Speed, got.Speed, 0.01)
		assert.InDelta(t, want.Bearing, got.Bearing, 0.05)
		assert.True(t, want.Time.Equal(got.Time), "%s != %s", want.Time, got.Time)
	}
}

func TestInitCommandsCarryChecksums(t *testing.T) {
	t.Parallel()
	for _, cmd := range InitCommands() {
		body, sum, ok := strings.Cut(strings.TrimPrefix(cmd, "$"), "*")
		require.True(t, ok, cmd)
		assert.Equal(t, nmea.Checksum(body), sum, cmd)
	}
	assert.Equal(t, "$PMTK220,1000*1F", InitCommands()[1])
}

func mustParse(t *testing.T, line string) nmea.Sentence {
	t.Helper()
	s, err := ParseSentence(line)
	require.NoError(t, err)
	return s
}
