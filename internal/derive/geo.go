// internal/derive/geo.go
//
// Geography lookup collaborators.
//
// Context
// -------
// The geography derivation needs three answers it cannot compute from the
// payload alone: coordinates for an address, a climate zone for a
// latitude, and an airport code for a city.  Each is an interface so a
// real geocoding API can replace the deterministic defaults below without
// touching the engine.
//
// Notes
// -----
//   - HashGeocoder never calls out; the same address always yields the same
//     point inside the continental United States bounding box.
//   - Any lookup error leaves its field unset.  The engine logs and moves on.
package derive

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// ErrNoMatch is returned by lookups that have no answer for their input.
var ErrNoMatch = errors.New("no match")

// Coordinates is a resolved point.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Geocoder resolves a free-form address.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (Coordinates, error)
}

// ClimateClassifier maps a latitude to a climate zone label.
type ClimateClassifier interface {
	ZoneFor(lat float64) (string, error)
}

// AirportLocator maps a city to an IATA code.
type AirportLocator interface {
	AirportFor(ctx context.Context, city string) (string, error)
}

/*──────────────────────────── geocoder ────────────────────────────────────*/

// HashGeocoder derives stable pseudo-coordinates from the address text.
type HashGeocoder struct{}

const (
	minLat, maxLat = 25.0, 49.0
	minLng, maxLng = -124.0, -67.0
)

func (HashGeocoder) Resolve(_ context.Context, address string) (Coordinates, error) {
	norm := strings.ToLower(strings.Join(strings.Fields(address), " "))
	if norm == "" {
		return Coordinates{}, ErrNoMatch
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(norm))
	sum := h.Sum64()

	latFrac := float64(sum&0xffffffff) / float64(math.MaxUint32)
	lngFrac := float64(sum>>32) / float64(math.MaxUint32)
	return Coordinates{
		Lat: round(minLat+latFrac*(maxLat-minLat), 6),
		Lng: round(minLng+lngFrac*(maxLng-minLng), 6),
	}, nil
}

/*──────────────────────────── climate ─────────────────────────────────────*/

// Climate zone labels.
const (
	ZoneTemperate = "temperate"
	ZoneWarm      = "warm"
)

// ThresholdClimate is the two-bucket classifier: |lat| at or above
// Threshold is temperate, anything closer to the equator is warm.
type ThresholdClimate struct {
	Threshold float64
}

// DefaultClimate splits at 35 degrees.
var DefaultClimate = ThresholdClimate{Threshold: 35}

func (c ThresholdClimate) ZoneFor(lat float64) (string, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return "", ErrNoMatch
	}
	if math.Abs(lat) >= c.Threshold {
		return ZoneTemperate, nil
	}
	return ZoneWarm, nil
}

/*──────────────────────────── airports ────────────────────────────────────*/

// TableAirports looks a city up in a static table and otherwise falls back
// to the first three letters of the city name, upper-cased.
type TableAirports struct {
	Codes map[string]string // lower-case city → IATA code
}

// DefaultAirports carries a handful of college towns whose nearest major
// airport is not named after them.
var DefaultAirports = TableAirports{Codes: map[string]string{
	"cambridge":     "BOS",
	"stanford":      "SFO",
	"palo alto":     "SFO",
	"new haven":     "HVN",
	"princeton":     "EWR",
	"ann arbor":     "DTW",
	"berkeley":      "OAK",
	"ithaca":        "ITH",
	"durham":        "RDU",
	"chapel hill":   "RDU",
	"evanston":      "ORD",
	"new york":      "JFK",
	"los angeles":   "LAX",
	"chicago":       "ORD",
	"austin":        "AUS",
	"pittsburgh":    "PIT",
	"atlanta":       "ATL",
	"seattle":       "SEA",
	"philadelphia":  "PHL",
	"washington":    "DCA",
	"boston":        "BOS",
	"san francisco": "SFO",
}}

func (a TableAirports) AirportFor(_ context.Context, city string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(city))
	if key == "" {
		return "", ErrNoMatch
	}
	if code, ok := a.Codes[key]; ok {
		return code, nil
	}
	var b strings.Builder
	for _, r := range key {
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if b.Len() == 3 {
			return b.String(), nil
		}
	}
	return "", ErrNoMatch
}
