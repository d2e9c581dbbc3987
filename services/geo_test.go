package services

import (
	"testing"

	"github.com/blavejr/mealscout/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func located(id string, lat, lon float64) models.MenuItem {
	return models.MenuItem{ID: id, Latitude: ptr(lat), Longitude: ptr(lon)}
}

func TestHaversineMiles(t *testing.T) {
	assert.InDelta(t, 0.0, HaversineMiles(10, 10, 10, 10), 1e-9)
	assert.InDelta(t, 69.1, HaversineMiles(0, 0, 1, 0), 0.1)
	// New York to Los Angeles
	assert.InDelta(t, 2445, HaversineMiles(40.7128, -74.0060, 34.0522, -118.2437), 10)
}

func TestFilterByRadiusFailsOpen(t *testing.T) {
	items := make([]models.MenuItem, 0, 10)
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			items = append(items, located("x", 0, float64(i)))
		} else {
			items = append(items, models.MenuItem{ID: "y"})
		}
	}

	res := FilterByRadius(items, ptr(5.0), nil)
	assert.False(t, res.Applied)
	assert.Len(t, res.Items, 10)

	res = FilterByRadius(items, nil, &models.Location{})
	assert.Len(t, res.Items, 10)

	res = FilterByRadius(items, ptr(0.0), &models.Location{})
	assert.Len(t, res.Items, 10)
}

func TestFilterByRadiusExcludes(t *testing.T) {
	items := []models.MenuItem{
		located("near", 0, 0.01),
		located("far", 1, 0),
		{ID: "unknown"},
	}

	res := FilterByRadius(items, ptr(5.0), &models.Location{Latitude: 0, Longitude: 0})
	require.True(t, res.Applied)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "near", res.Items[0].ID)
	require.NotNil(t, res.Items[0].Distance)
	assert.InDelta(t, 0.7, *res.Items[0].Distance, 0.05)
	assert.Equal(t, 1, res.MissingCoordinates)
	assert.Equal(t, 1, res.OutOfRange)

	// input rows are not modified
	assert.Nil(t, items[0].Distance)
}

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "", FormatDistance(nil))
	assert.Equal(t, "< 0.1 miles away", FormatDistance(ptr(0.04)))
	assert.Equal(t, "3.3 miles away", FormatDistance(ptr(3.27)))
	assert.Equal(t, "2 miles away", FormatDistance(ptr(2.0)))
	assert.Equal(t, "0.7 miles away", FormatDistance(ptr(0.691)))
}
