// Package geo provides the offline geography helpers used by flight
// statistics: great-circle distance, a coarse longitude-based local time
// estimate, and reverse geocoding against an embedded country gazetteer.
package geo

import (
	"math"
	"time"
)

const earthRadiusM = 6371000.0

// Haversine returns the great-circle distance in meters between two
// coordinates given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

// LocalHour estimates the local hour of day at the given longitude.
// The offset is longitude/15 rounded to the nearest hour, which ignores
// political timezone boundaries and DST. Known-imprecise near boundaries;
// good enough for day/night classification.
func LocalHour(utc time.Time, lon float64) int {
	offset := int(math.Round(lon / 15))
	h := (utc.UTC().Hour() + offset) % 24
	if h < 0 {
		h += 24
	}
	return h
}

// ReverseGeocode resolves coordinates to a country and continent name using
// nearest-centroid lookup over the embedded gazetteer. Returns ok=false for
// near-origin coordinates, which indicate a missing GPS fix rather than a
// position in the Gulf of Guinea.
func ReverseGeocode(lat, lon float64) (country, continent string, ok bool) {
	if math.Abs(lat) < 1e-6 && math.Abs(lon) < 1e-6 {
		return "", "", false
	}

	best := -1
	bestDist := math.MaxFloat64
	for i, c := range countries {
		d := Haversine(lat, lon, c.lat, c.lon)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 {
		return "", "", false
	}

	c := countries[best]
	return c.name, continentNames[c.continent], true
}
