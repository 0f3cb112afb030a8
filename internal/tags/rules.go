package tags

import (
	"math"
	"time"

	"github.com/roman-kulish/flight-log-ingest/internal/flight"
	"github.com/roman-kulish/flight-log-ingest/internal/geo"
)

// Rule identifiers, used for the enable/disable toggles.
const (
	RuleNightFlight      = "night_flight"
	RuleHighSpeed        = "high_speed"
	RuleColdBattery      = "cold_battery"
	RuleHeavyLoad        = "heavy_load"
	RuleLowBattery       = "low_battery"
	RuleHighAltitude     = "high_altitude"
	RuleLongDistance     = "long_distance"
	RuleLongFlight       = "long_flight"
	RuleShortFlight      = "short_flight"
	RuleAggressiveFlying = "aggressive_flying"
	RuleNoGPS            = "no_gps"
	RuleCountry          = "country"
	RuleContinent        = "continent"
)

// Rule thresholds.
const (
	highSpeedMps        = 15.0
	coldBatteryC        = 15.0
	heavyLoadPercent    = 75.0
	heavyLoadMaxSecs    = 1200.0
	lowBatteryPercent   = 15.0
	highAltitudeM       = 120.0
	longDistanceM       = 1000.0
	longFlightSecs      = 1500.0
	shortFlightSecs     = 120.0
	aggressiveAvgMps    = 8.0
	nightStartLocalHour = 19
	nightEndLocalHour   = 6
)

type rule struct {
	id    string
	tag   string
	match func(s *flight.Stats, start *time.Time) bool
}

// Rules are evaluated independently; all that match are emitted.
var rules = []rule{
	{RuleNightFlight, "Night Flight", func(s *flight.Stats, start *time.Time) bool {
		if start == nil {
			return false
		}
		// Without a home fix the local time estimate degrades to UTC.
		var lon float64
		if s.HomeLon != nil {
			lon = *s.HomeLon
		}
		h := geo.LocalHour(*start, lon)
		return h >= nightStartLocalHour || h < nightEndLocalHour
	}},
	{RuleHighSpeed, "High Speed", func(s *flight.Stats, _ *time.Time) bool {
		return s.MaxSpeed > highSpeedMps
	}},
	{RuleColdBattery, "Cold Battery", func(s *flight.Stats, _ *time.Time) bool {
		return s.BatteryStartTemp != nil && *s.BatteryStartTemp < coldBatteryC
	}},
	{RuleHeavyLoad, "Heavy Load", func(s *flight.Stats, _ *time.Time) bool {
		if s.BatteryStart == nil || s.BatteryEnd == nil {
			return false
		}
		return *s.BatteryStart-*s.BatteryEnd > heavyLoadPercent && s.DurationSecs < heavyLoadMaxSecs
	}},
	{RuleLowBattery, "Low Battery", func(s *flight.Stats, _ *time.Time) bool {
		return s.BatteryEnd != nil && *s.BatteryEnd < lowBatteryPercent
	}},
	{RuleHighAltitude, "High Altitude", func(s *flight.Stats, _ *time.Time) bool {
		return s.MaxAltitude > highAltitudeM
	}},
	{RuleLongDistance, "Long Distance", func(s *flight.Stats, _ *time.Time) bool {
		return s.MaxDistanceFromHome > longDistanceM
	}},
	{RuleLongFlight, "Long Flight", func(s *flight.Stats, _ *time.Time) bool {
		return s.DurationSecs > longFlightSecs
	}},
	{RuleShortFlight, "Short Flight", func(s *flight.Stats, _ *time.Time) bool {
		return s.DurationSecs > 0 && s.DurationSecs < shortFlightSecs
	}},
	{RuleAggressiveFlying, "Aggressive Flying", func(s *flight.Stats, _ *time.Time) bool {
		return s.AvgSpeed > aggressiveAvgMps
	}},
	{RuleNoGPS, "No GPS", func(s *flight.Stats, _ *time.Time) bool {
		return s.HomeLat == nil
	}},
}

// tagRule maps fixed tag names back to their rule, for Filter.
var tagRule = func() map[string]string {
	m := make(map[string]string, len(rules))
	for _, r := range rules {
		m[r.tag] = r.id
	}
	return m
}()

var continentNames = map[string]struct{}{
	"Africa":        {},
	"Antarctica":    {},
	"Asia":          {},
	"Europe":        {},
	"North America": {},
	"Oceania":       {},
	"South America": {},
}

// Generate evaluates every rule against the flight statistics and returns
// the matching tags, plus country and continent names reverse-geocoded from
// the home point.
func Generate(s *flight.Stats, start *time.Time) []string {
	var out []string
	for _, r := range rules {
		if r.match(s, start) {
			out = append(out, r.tag)
		}
	}

	if s.HomeLat != nil && s.HomeLon != nil &&
		!(math.Abs(*s.HomeLat) < 1e-6 && math.Abs(*s.HomeLon) < 1e-6) {
		if country, continent, ok := geo.ReverseGeocode(*s.HomeLat, *s.HomeLon); ok {
			out = append(out, country, continent)
		}
	}
	return out
}

// AllRules returns every rule identifier, for building toggle defaults.
func AllRules() []string {
	out := make([]string, 0, len(rules)+2)
	for _, r := range rules {
		out = append(out, r.id)
	}
	return append(out, RuleCountry, RuleContinent)
}

// Filter removes tags whose rule is not enabled. Continent names pass only
// with the continent toggle; any unrecognized string is assumed to be a
// place name and passes only with the country toggle.
func Filter(in []string, enabled map[string]bool) []string {
	out := make([]string, 0, len(in))
	for _, tag := range in {
		var id string
		if rid, ok := tagRule[tag]; ok {
			id = rid
		} else if _, ok := continentNames[tag]; ok {
			id = RuleContinent
		} else {
			id = RuleCountry
		}
		if enabled[id] {
			out = append(out, tag)
		}
	}
	return out
}
