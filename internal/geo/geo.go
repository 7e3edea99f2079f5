// Package geo computes great-circle distances and compass bearings used to grade wrong answers.
package geo

import (
	"fmt"
	"math"
	"strings"
)

// EarthRadiusKm is the mean Earth radius.
const EarthRadiusKm = 6371.0

// NoHint is returned as hint text when a guess cannot be placed on the map.
const NoHint = "no hint available"

var compassPoints = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Gazetteer resolves a place name to coordinates.
type Gazetteer interface {
	Lookup(name string) (Point, bool)
}

// Hint describes where the target lies relative to a wrong guess.
type Hint struct {
	Available  bool    `json:"available"`
	DistanceKm float64 `json:"distance_km,omitempty"`
	Bearing    float64 `json:"bearing,omitempty"`
	Compass    string  `json:"compass,omitempty"`
	Text       string  `json:"text"`
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// HaversineDistanceKm returns the great-circle distance between two points.
func HaversineDistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push a past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Asin(math.Sqrt(a))
	return EarthRadiusKm * c
}

// Bearing returns the initial bearing from point 1 to point 2 in degrees, in [0,360).
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	phi1, phi2 := toRad(lat1), toRad(lat2)
	dLng := toRad(lng2 - lng1)
	y := math.Sin(dLng) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLng)
	b := math.Mod(toDeg(math.Atan2(y, x))+360, 360)
	if b >= 360 {
		b = 0
	}
	return b
}

// Compass maps a bearing to one of eight compass labels.
func Compass(bearing float64) string {
	idx := int(math.Round(bearing/45)) % 8
	if idx < 0 {
		idx += 8
	}
	return compassPoints[idx]
}

// DistanceHint tells a player how far and in which direction the target is from their guess.
// Unknown guesses yield a Hint with Available=false instead of an error.
func DistanceHint(g Gazetteer, guessedName string, targetLat, targetLng float64) Hint {
	name := strings.TrimSpace(guessedName)
	if g == nil || name == "" {
		return Hint{Text: NoHint}
	}
	from, ok := g.Lookup(name)
	if !ok {
		return Hint{Text: NoHint}
	}
	km := HaversineDistanceKm(from.Lat, from.Lng, targetLat, targetLng)
	b := Bearing(from.Lat, from.Lng, targetLat, targetLng)
	dir := Compass(b)
	return Hint{
		Available:  true,
		DistanceKm: math.Round(km*10) / 10,
		Bearing:    math.Round(b*10) / 10,
		Compass:    dir,
		Text:       fmt.Sprintf("The target is %.0f km %s of %s", km, dir, name),
	}
}

// Grade is the score band for a distance between a guess and the target.
type Grade struct {
	Label  string `json:"grade"`
	Points int    `json:"points"`
}

// GradeDistance scores a map guess by its distance to the target.
func GradeDistance(km float64) Grade {
	switch {
	case km < 50:
		return Grade{Label: "EXCELLENT", Points: 1000}
	case km < 200:
		return Grade{Label: "GOOD", Points: 750}
	case km < 500:
		return Grade{Label: "FAIR", Points: 500}
	case km < 1000:
		return Grade{Label: "POOR", Points: 250}
	default:
		return Grade{Label: "MISS", Points: 50}
	}
}
