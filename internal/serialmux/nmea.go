package serialmux

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"

	"github.com/banshee-data/wayfinder/internal/route"
)

const (
	// knotsToMetersPerSecond converts NMEA ground speed.
	knotsToMetersPerSecond = 1852.0 / 3600.0
	// userRangeError scales HDOP into an accuracy radius in meters.
	userRangeError = 5.0
)

var (
	ErrNotNMEA   = errors.New("not an NMEA sentence")
	ErrNoFix     = errors.New("receiver reports no fix")
	ErrMalformed = errors.New("malformed NMEA sentence")
)

// WithChecksum frames body, the text between '$' and '*', as a full
// sentence.
func WithChecksum(body string) string {
	return "$" + body + "*" + nmea.Checksum(body)
}

// ParseSentence parses one line. The checksum is required and verified.
// A sentence reporting no fix may fail with ErrNoFix.
func ParseSentence(line string) (nmea.Sentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nil, ErrNotNMEA
	}
	s, err := nmea.Parse(line)
	if err != nil {
		if reportsNoFix(line) {
			return nil, ErrNoFix
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return s, nil
}

// reportsNoFix recognizes an intact RMC with status V or GGA with quality
// 0. Receivers send those with empty position fields, which the parser
// rejects.
func reportsNoFix(line string) bool {
	body, sum, ok := strings.Cut(line[1:], "*")
	if !ok || !strings.EqualFold(sum, nmea.Checksum(body)) {
		return false
	}
	fields := strings.Split(body, ",")
	switch {
	case strings.HasSuffix(fields[0], "RMC"):
		return len(fields) > 2 && fields[2] == nmea.InvalidRMC
	case strings.HasSuffix(fields[0], "GGA"):
		return len(fields) > 6 && fields[6] == nmea.Invalid
	}
	return false
}

// ParseRMC maps a recommended minimum sentence ($GPRMC, $GNRMC, ...) to a
// fix. Accuracy is left zero since RMC does not carry it.
func ParseRMC(s nmea.Sentence) (route.Fix, error) {
	rmc, ok := s.(nmea.RMC)
	if !ok {
		return route.Fix{}, fmt.Errorf("%w: want RMC, got %s", ErrMalformed, s.DataType())
	}
	if rmc.Validity != nmea.ValidRMC {
		return route.Fix{}, ErrNoFix
	}
	// mode indicator N (NMEA 2.3+) also means no fix
	if len(rmc.Fields) >= 12 && rmc.Fields[11] == "N" {
		return route.Fix{}, ErrNoFix
	}
	if !rmc.Date.Valid || !rmc.Time.Valid {
		return route.Fix{}, fmt.Errorf("%w: timestamp %v %v", ErrMalformed, rmc.Date, rmc.Time)
	}
	return route.Fix{
		Latitude:  rmc.Latitude,
		Longitude: rmc.Longitude,
		Speed:     rmc.Speed * knotsToMetersPerSecond,
		Bearing:   rmc.Course,
		Time:      timestamp(rmc.Date, rmc.Time),
	}, nil
}

// ParseGGAAccuracy returns the accuracy radius implied by the HDOP of a GGA
// sentence.
func ParseGGAAccuracy(s nmea.Sentence) (float64, error) {
	gga, ok := s.(nmea.GGA)
	if !ok {
		return 0, fmt.Errorf("%w: want GGA, got %s", ErrMalformed, s.DataType())
	}
	if gga.FixQuality == nmea.Invalid || gga.FixQuality == "" {
		return 0, ErrNoFix
	}
	return gga.HDOP * userRangeError, nil
}

// timestamp joins an RMC date and time in UTC. Two-digit years follow the
// time package: 69-99 are 1900s.
func timestamp(d nmea.Date, t nmea.Time) time.Time {
	year := 2000 + d.YY
	if d.YY >= 69 {
		year = 1900 + d.YY
	}
	return time.Date(year, time.Month(d.MM), d.DD, t.Hour, t.Minute, t.Second,
		t.Millisecond*int(time.Millisecond), time.UTC)
}

// FormatRMC renders fix as a $GPRMC sentence. It is the inverse of
// ParseRMC up to the precision NMEA carries.
func FormatRMC(fix route.Fix) string {
	t := fix.Time.UTC()
	lat, ns := formatCoordinate(fix.Latitude, "N", "S", 2)
	lon, ew := formatCoordinate(fix.Longitude, "E", "W", 3)
	body := fmt.Sprintf("GPRMC,%s,A,%s,%s,%s,%s,%.2f,%.1f,%s,,,A",
		t.Format("150405.00"), lat, ns, lon, ew,
		fix.Speed/knotsToMetersPerSecond, fix.Bearing, t.Format("020106"))
	return WithChecksum(body)
}

func formatCoordinate(v float64, pos, neg string, degDigits int) (string, string) {
	hemi := pos
	if v < 0 {
		hemi = neg
		v = -v
	}
	deg := math.Floor(v)
	minutes := (v - deg) * 60
	// rounding can carry the minutes to 60
	if math.Round(minutes*1e6)/1e6 >= 60 {
		deg++
		minutes = 0
	}
	return fmt.Sprintf("%0*d%09.6f", degDigits, int(deg), minutes), hemi
}
