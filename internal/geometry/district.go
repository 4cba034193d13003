package geometry

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"fundamental/crawler/internal/models"
)

// hullBuffer scales each hull slightly outward from its centroid so markers
// on the edge fall inside the rendered district.
const hullBuffer = 1.05

// minDistrictPoints is the smallest sample that yields a meaningful hull.
const minDistrictPoints = 3

// DistrictHulls groups geocoded properties by neighborhood and returns one
// convex hull feature per neighborhood with at least three distinct points.
func DistrictHulls(properties []*models.Property) *geojson.FeatureCollection {
	points := map[string][]orb.Point{}
	for _, p := range properties {
		if p.Neighborhood == "" || p.Latitude == nil || p.Longitude == nil {
			continue
		}
		points[p.Neighborhood] = append(points[p.Neighborhood], orb.Point{*p.Longitude, *p.Latitude})
	}

	fc := geojson.NewFeatureCollection()
	names := make([]string, 0, len(points))
	for name := range points {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		hull := convexHull(points[name])
		if len(hull) < minDistrictPoints {
			continue
		}
		hull = bufferHull(hull, hullBuffer)
		ring := append(orb.Ring{}, hull...)
		ring = append(ring, ring[0])

		feature := geojson.NewFeature(orb.Polygon{ring})
		feature.Properties["neighborhood"] = name
		feature.Properties["property_count"] = len(points[name])
		fc.Append(feature)
	}
	return fc
}

// convexHull computes the hull with Andrew's monotone chain.
func convexHull(points []orb.Point) []orb.Point {
	if len(points) < minDistrictPoints {
		return nil
	}

	pts := append([]orb.Point{}, points...)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	var lower []orb.Point
	for _, p := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}

	var upper []orb.Point
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	hull := append(lower[:len(lower)-1], upper[:len(upper)-1]...)
	if len(hull) < minDistrictPoints {
		return nil
	}
	return hull
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// bufferHull scales hull points outward from the centroid by the given
// factor.
func bufferHull(hull []orb.Point, factor float64) []orb.Point {
	var cx, cy float64
	for _, p := range hull {
		cx += p[0]
		cy += p[1]
	}
	cx /= float64(len(hull))
	cy /= float64(len(hull))

	buffered := make([]orb.Point, len(hull))
	for i, p := range hull {
		buffered[i] = orb.Point{
			cx + (p[0]-cx)*factor,
			cy + (p[1]-cy)*factor,
		}
	}
	return buffered
}
