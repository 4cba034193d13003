package geometry

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundamental/crawler/internal/models"
)

func geocoded(neighborhood string, lat, lng float64) *models.Property {
	return &models.Property{
		URL:          "https://example.test/p",
		Neighborhood: neighborhood,
		Latitude:     &lat,
		Longitude:    &lng,
	}
}

func TestDistrictHulls(t *testing.T) {
	props := []*models.Property{
		geocoded("Staatsliedenbuurt", 52.380, 4.870),
		geocoded("Staatsliedenbuurt", 52.382, 4.875),
		geocoded("Staatsliedenbuurt", 52.384, 4.869),
		geocoded("Staatsliedenbuurt", 52.381, 4.872),
		geocoded("Jordaan", 52.373, 4.880),
		geocoded("Jordaan", 52.374, 4.882),
	}

	fc := DistrictHulls(props)
	require.Len(t, fc.Features, 1, "two points never form a district")

	feature := fc.Features[0]
	assert.Equal(t, "Staatsliedenbuurt", feature.Properties["neighborhood"])
	assert.Equal(t, 4, feature.Properties["property_count"])

	polygon, ok := feature.Geometry.(orb.Polygon)
	require.True(t, ok)
	// The buffered hull must contain every contributing point.
	for _, p := range props[:4] {
		assert.True(t, planar.PolygonContains(polygon, orb.Point{*p.Longitude, *p.Latitude}))
	}
}

func TestDistrictHullsSkipsUngeocodedAndUnnamed(t *testing.T) {
	lat, lng := 52.38, 4.87
	props := []*models.Property{
		{URL: "https://example.test/p", Neighborhood: "X", Latitude: &lat},
		{URL: "https://example.test/p", Latitude: &lat, Longitude: &lng},
	}
	fc := DistrictHulls(props)
	assert.Empty(t, fc.Features)
}
