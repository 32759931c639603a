// Package config holds the navigation thresholds and how they are loaded.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/wayfinder/internal/units"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid navigation config")

// Off-route strategy names.
const (
	StrategyDistance = "distance"
	StrategyDrift    = "drift"
	StrategyDisabled = "disabled"
)

// Unit systems for instruction text.
const (
	UnitsMetric   = units.Metric
	UnitsImperial = units.Imperial
)

// Defaults.
const (
	DefaultMaxTurnCompletionOffset = 30.0
	DefaultManeuverZoneRadius      = 40.0
	DefaultMaxDistanceOffRoute     = 50.0
	DefaultRerouteCooldown         = 3 * time.Second
	DefaultDeadReckoningInterval   = time.Second
	DefaultArrivalThreshold        = 25.0
	DefaultMinConsecutiveOffRoute  = 2
)

const maxFileSize = 1 * 1024 * 1024

// NavigationConfig is the on-disk form of the navigation thresholds. Every
// field is optional; the Get* methods fall back to defaults.
type NavigationConfig struct {
	MaxTurnCompletionOffset *float64 `json:"max_turn_completion_offset,omitempty" yaml:"max_turn_completion_offset,omitempty" toml:"max_turn_completion_offset,omitempty"`
	ManeuverZoneRadius      *float64 `json:"maneuver_zone_radius,omitempty" yaml:"maneuver_zone_radius,omitempty" toml:"maneuver_zone_radius,omitempty"`
	MaxDistanceOffRoute     *float64 `json:"max_distance_off_route,omitempty" yaml:"max_distance_off_route,omitempty" toml:"max_distance_off_route,omitempty"`
	RerouteCooldown         *string  `json:"reroute_cooldown,omitempty" yaml:"reroute_cooldown,omitempty" toml:"reroute_cooldown,omitempty"`             // duration string like "3s"
	DeadReckoningInterval   *string  `json:"dead_reckoning_interval,omitempty" yaml:"dead_reckoning_interval,omitempty" toml:"dead_reckoning_interval,omitempty"` // duration string like "1s"
	ArrivalThreshold        *float64 `json:"arrival_threshold,omitempty" yaml:"arrival_threshold,omitempty" toml:"arrival_threshold,omitempty"`
	OffRouteStrategy        *string  `json:"off_route_strategy,omitempty" yaml:"off_route_strategy,omitempty" toml:"off_route_strategy,omitempty"`
	MinConsecutiveOffRoute  *int     `json:"min_consecutive_off_route,omitempty" yaml:"min_consecutive_off_route,omitempty" toml:"min_consecutive_off_route,omitempty"`
	SnapToRoute             *bool    `json:"snap_to_route,omitempty" yaml:"snap_to_route,omitempty" toml:"snap_to_route,omitempty"`
	DefaultMilestones       *bool    `json:"default_milestones,omitempty" yaml:"default_milestones,omitempty" toml:"default_milestones,omitempty"`
	Units                   *string  `json:"units,omitempty" yaml:"units,omitempty" toml:"units,omitempty"`
}

// Options is the resolved configuration handed to the engine.
type Options struct {
	MaxTurnCompletionOffset float64       `validate:"gt=0,lte=180"`
	ManeuverZoneRadius      float64       `validate:"gt=0"`
	MaxDistanceOffRoute     float64       `validate:"gt=0"`
	RerouteCooldown         time.Duration `validate:"gte=0"`
	DeadReckoningInterval   time.Duration `validate:"gte=0"`
	ArrivalThreshold        float64       `validate:"gt=0"`
	OffRouteStrategy        string        `validate:"oneof=distance drift disabled"`
	MinConsecutiveOffRoute  int           `validate:"min=1,max=8"` // bounded by progress.HistorySize
	SnapToRoute             bool
	DefaultMilestones       bool
	Units                   string `validate:"oneof=metric imperial"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultNavigationConfig returns a config with every field set to its
// default.
func DefaultNavigationConfig() *NavigationConfig {
	return &NavigationConfig{
		MaxTurnCompletionOffset: ptrFloat64(DefaultMaxTurnCompletionOffset),
		ManeuverZoneRadius:      ptrFloat64(DefaultManeuverZoneRadius),
		MaxDistanceOffRoute:     ptrFloat64(DefaultMaxDistanceOffRoute),
		RerouteCooldown:         ptrString(DefaultRerouteCooldown.String()),
		DeadReckoningInterval:   ptrString(DefaultDeadReckoningInterval.String()),
		ArrivalThreshold:        ptrFloat64(DefaultArrivalThreshold),
		OffRouteStrategy:        ptrString(StrategyDistance),
		MinConsecutiveOffRoute:  ptrInt(DefaultMinConsecutiveOffRoute),
		SnapToRoute:             ptrBool(true),
		DefaultMilestones:       ptrBool(true),
		Units:                   ptrString(UnitsMetric),
	}
}

// DefaultOptions returns the resolved defaults.
func DefaultOptions() Options {
	return (&NavigationConfig{}).Options()
}

// Load reads a config file. The format follows the extension: .json,
// .yaml/.yml or .toml. Omitted fields keep their defaults.
func Load(path string) (*NavigationConfig, error) {
	cleanPath := filepath.Clean(path)

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &NavigationConfig{}
	switch ext := strings.ToLower(filepath.Ext(cleanPath)); ext {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	default:
		return nil, fmt.Errorf("config file must be .json, .yaml or .toml, got %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that set values parse and fall within range.
func (c *NavigationConfig) Validate() error {
	if c.RerouteCooldown != nil && *c.RerouteCooldown != "" {
		if _, err := time.ParseDuration(*c.RerouteCooldown); err != nil {
			return fmt.Errorf("%w: reroute_cooldown '%s': %v", ErrInvalid, *c.RerouteCooldown, err)
		}
	}
	if c.DeadReckoningInterval != nil && *c.DeadReckoningInterval != "" {
		if _, err := time.ParseDuration(*c.DeadReckoningInterval); err != nil {
			return fmt.Errorf("%w: dead_reckoning_interval '%s': %v", ErrInvalid, *c.DeadReckoningInterval, err)
		}
	}
	if c.Units != nil && *c.Units != "" && !units.IsValid(*c.Units) {
		return fmt.Errorf("%w: units '%s': must be one of %s", ErrInvalid, *c.Units, units.GetValidSystemsString())
	}
	return c.Options().Validate()
}

var validate = validator.New()

// Validate checks the resolved values.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s must satisfy %s=%s, got %v", ErrInvalid, fe.Field(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Options resolves every field, applying defaults.
func (c *NavigationConfig) Options() Options {
	return Options{
		MaxTurnCompletionOffset: c.GetMaxTurnCompletionOffset(),
		ManeuverZoneRadius:      c.GetManeuverZoneRadius(),
		MaxDistanceOffRoute:     c.GetMaxDistanceOffRoute(),
		RerouteCooldown:         c.GetRerouteCooldown(),
		DeadReckoningInterval:   c.GetDeadReckoningInterval(),
		ArrivalThreshold:        c.GetArrivalThreshold(),
		OffRouteStrategy:        c.GetOffRouteStrategy(),
		MinConsecutiveOffRoute:  c.GetMinConsecutiveOffRoute(),
		SnapToRoute:             c.GetSnapToRoute(),
		DefaultMilestones:       c.GetDefaultMilestones(),
		Units:                   c.GetUnits(),
	}
}

// GetMaxTurnCompletionOffset returns the max_turn_completion_offset value or the default.
func (c *NavigationConfig) GetMaxTurnCompletionOffset() float64 {
	if c.MaxTurnCompletionOffset == nil {
		return DefaultMaxTurnCompletionOffset
	}
	return *c.MaxTurnCompletionOffset
}

// GetManeuverZoneRadius returns the maneuver_zone_radius value or the default.
func (c *NavigationConfig) GetManeuverZoneRadius() float64 {
	if c.ManeuverZoneRadius == nil {
		return DefaultManeuverZoneRadius
	}
	return *c.ManeuverZoneRadius
}

// GetMaxDistanceOffRoute returns the max_distance_off_route value or the default.
func (c *NavigationConfig) GetMaxDistanceOffRoute() float64 {
	if c.MaxDistanceOffRoute == nil {
		return DefaultMaxDistanceOffRoute
	}
	return *c.MaxDistanceOffRoute
}

// GetRerouteCooldown parses and returns the RerouteCooldown as a time.Duration.
func (c *NavigationConfig) GetRerouteCooldown() time.Duration {
	if c.RerouteCooldown == nil || *c.RerouteCooldown == "" {
		return DefaultRerouteCooldown
	}
	d, err := time.ParseDuration(*c.RerouteCooldown)
	if err != nil {
		return DefaultRerouteCooldown // default on parse error
	}
	return d
}

// GetDeadReckoningInterval parses and returns the DeadReckoningInterval as a time.Duration.
func (c *NavigationConfig) GetDeadReckoningInterval() time.Duration {
	if c.DeadReckoningInterval == nil || *c.DeadReckoningInterval == "" {
		return DefaultDeadReckoningInterval
	}
	d, err := time.ParseDuration(*c.DeadReckoningInterval)
	if err != nil {
		return DefaultDeadReckoningInterval // default on parse error
	}
	return d
}

// GetArrivalThreshold returns the arrival_threshold value or the default.
func (c *NavigationConfig) GetArrivalThreshold() float64 {
	if c.ArrivalThreshold == nil {
		return DefaultArrivalThreshold
	}
	return *c.ArrivalThreshold
}

// GetOffRouteStrategy returns the off_route_strategy value or the default.
func (c *NavigationConfig) GetOffRouteStrategy() string {
	if c.OffRouteStrategy == nil || *c.OffRouteStrategy == "" {
		return StrategyDistance
	}
	return *c.OffRouteStrategy
}

// GetMinConsecutiveOffRoute returns the min_consecutive_off_route value or the default.
func (c *NavigationConfig) GetMinConsecutiveOffRoute() int {
	if c.MinConsecutiveOffRoute == nil {
		return DefaultMinConsecutiveOffRoute
	}
	return *c.MinConsecutiveOffRoute
}

// GetSnapToRoute returns the snap_to_route value or the default.
func (c *NavigationConfig) GetSnapToRoute() bool {
	if c.SnapToRoute == nil {
		return true
	}
	return *c.SnapToRoute
}

// GetDefaultMilestones returns the default_milestones value or the default.
func (c *NavigationConfig) GetDefaultMilestones() bool {
	if c.DefaultMilestones == nil {
		return true
	}
	return *c.DefaultMilestones
}

// GetUnits returns the units value or the default.
func (c *NavigationConfig) GetUnits() string {
	if c.Units == nil || *c.Units == "" {
		return UnitsMetric
	}
	return *c.Units
}
