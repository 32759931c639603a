// Package units converts distances and speeds between the metric and
// imperial systems used for announcements and status output.
package units

import "fmt"

// Unit systems
const (
	Metric   = "metric"
	Imperial = "imperial"
)

// Conversion factors
const (
	MetersPerMile  = 1609.344
	FeetPerMeter   = 3.28084
	MPSToKMPH      = 3.6
	MPSToMPH       = 2.23694
	feetPerMileCap = 528.0 // 0.1 mi
)

// ValidSystems contains all valid unit systems
var ValidSystems = []string{Metric, Imperial}

// IsValid checks if the given unit system is known
func IsValid(system string) bool {
	for _, s := range ValidSystems {
		if system == s {
			return true
		}
	}
	return false
}

// GetValidSystemsString returns the valid systems for error messages
func GetValidSystemsString() string {
	return fmt.Sprintf("%s, %s", Metric, Imperial)
}

// ConvertSpeed converts a speed from meters per second to km/h or mph.
// Unknown systems are treated as metric.
func ConvertSpeed(speedMPS float64, system string) float64 {
	if system == Imperial {
		return speedMPS * MPSToMPH
	}
	return speedMPS * MPSToKMPH
}

// SpeedLabel names the unit ConvertSpeed returns for system.
func SpeedLabel(system string) string {
	if system == Imperial {
		return "mph"
	}
	return "km/h"
}

// MetersToMiles converts meters to statute miles.
func MetersToMiles(m float64) float64 { return m / MetersPerMile }

// MetersToFeet converts meters to feet.
func MetersToFeet(m float64) float64 { return m * FeetPerMeter }

// ShortDistance reports whether m is announced in feet rather than miles.
func ShortDistance(m float64) bool { return MetersToFeet(m) < feetPerMileCap }
