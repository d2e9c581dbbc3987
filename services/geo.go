package services

import (
	"fmt"
	"math"

	"github.com/blavejr/mealscout/models"
)

const earthRadiusMiles = 3959.0

// HaversineMiles is the great-circle distance between two points in miles.
func HaversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}

// RadiusResult reports what the radius filter dropped and why.
type RadiusResult struct {
	Items              []models.MenuItem
	MissingCoordinates int
	OutOfRange         int
	Applied            bool
}

// FilterByRadius keeps items within radiusMiles of loc and attaches their distance.
// Without a positive radius or a location it returns the input unchanged.
func FilterByRadius(items []models.MenuItem, radiusMiles *float64, loc *models.Location) RadiusResult {
	if radiusMiles == nil || *radiusMiles <= 0 || loc == nil {
		return RadiusResult{Items: items}
	}

	res := RadiusResult{Items: make([]models.MenuItem, 0, len(items)), Applied: true}
	for _, item := range items {
		if !item.HasCoordinates() {
			res.MissingCoordinates++
			continue
		}
		d := HaversineMiles(loc.Latitude, loc.Longitude, *item.Latitude, *item.Longitude)
		if d > *radiusMiles {
			res.OutOfRange++
			continue
		}
		item.Distance = &d
		res.Items = append(res.Items, item)
	}
	return res
}

// FormatDistance renders a distance for display, e.g. "3.3 miles away".
func FormatDistance(miles *float64) string {
	if miles == nil || math.IsNaN(*miles) {
		return ""
	}
	rounded := roundTenth(*miles)
	if rounded < 0.1 {
		return "< 0.1 miles away"
	}
	return fmt.Sprintf("%s miles away", formatTenth(rounded))
}

func formatTenth(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}
