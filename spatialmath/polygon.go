package spatialmath

import (
	"sort"

	"github.com/golang/geo/r2"
)

// PolygonCrossings returns, sorted ascending, the X coordinates at which the edges of the
// closed polygon cross the horizontal line Y = y. An edge counts when one endpoint lies strictly
// below y and the other at or above it, so shared vertices are counted once.
func PolygonCrossings(polygon []r2.Point, y float64) []float64 {
	var nodes []float64
	for i := range polygon {
		a := polygon[i]
		b := polygon[(i+1)%len(polygon)]
		if (a.Y < y && b.Y >= y) || (b.Y < y && a.Y >= y) {
			nodes = append(nodes, a.X+(y-a.Y)/(b.Y-a.Y)*(b.X-a.X))
		}
	}
	sort.Float64s(nodes)
	return nodes
}

// PointInPolygon2D reports whether p is inside the closed polygon by the even-odd rule. A point
// is inside when an odd number of crossings lies strictly to its left.
func PointInPolygon2D(polygon []r2.Point, p r2.Point) bool {
	if len(polygon) < 3 {
		return false
	}
	nodes := PolygonCrossings(polygon, p.Y)
	left := sort.SearchFloat64s(nodes, p.X)
	return left%2 == 1
}

// PolygonBounds returns the axis aligned bounds of the polygon.
func PolygonBounds(polygon []r2.Point) r2.Rect {
	return r2.RectFromPoints(polygon...)
}
