package spatialmath

import (
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestPointInPolygon2D(t *testing.T) {
	square := []r2.Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}}
	test.That(t, PointInPolygon2D(square, r2.Point{X: 2, Y: 2}), test.ShouldBeTrue)
	test.That(t, PointInPolygon2D(square, r2.Point{X: 5, Y: 2}), test.ShouldBeFalse)
	test.That(t, PointInPolygon2D(square, r2.Point{X: -1, Y: 2}), test.ShouldBeFalse)
	test.That(t, PointInPolygon2D(square, r2.Point{X: 2, Y: 5}), test.ShouldBeFalse)

	// concave "U" shape, the notch is outside
	u := []r2.Point{{X: 0, Y: 0}, {X: 6, Y: 0}, {X: 6, Y: 6}, {X: 4, Y: 6}, {X: 4, Y: 2}, {X: 2, Y: 2}, {X: 2, Y: 6}, {X: 0, Y: 6}}
	test.That(t, PointInPolygon2D(u, r2.Point{X: 1, Y: 4}), test.ShouldBeTrue)
	test.That(t, PointInPolygon2D(u, r2.Point{X: 3, Y: 4}), test.ShouldBeFalse)
	test.That(t, PointInPolygon2D(u, r2.Point{X: 5, Y: 4}), test.ShouldBeTrue)
	test.That(t, PointInPolygon2D(u, r2.Point{X: 3, Y: 1}), test.ShouldBeTrue)

	// degenerate polygons contain nothing
	test.That(t, PointInPolygon2D(nil, r2.Point{}), test.ShouldBeFalse)
	test.That(t, PointInPolygon2D([]r2.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}, r2.Point{X: 0.5, Y: 0.5}), test.ShouldBeFalse)
}

func TestPolygonCrossings(t *testing.T) {
	square := []r2.Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}}
	test.That(t, PolygonCrossings(square, 2), test.ShouldResemble, []float64{0, 4})
	test.That(t, PolygonCrossings(square, 10), test.ShouldBeEmpty)

	// A scan line through a vertex is counted once per side.
	diamond := []r2.Point{{X: 2, Y: 0}, {X: 4, Y: 2}, {X: 2, Y: 4}, {X: 0, Y: 2}}
	test.That(t, PolygonCrossings(diamond, 2), test.ShouldResemble, []float64{0, 4})

	bounds := PolygonBounds(diamond)
	test.That(t, bounds.X.Lo, test.ShouldEqual, 0.)
	test.That(t, bounds.Y.Hi, test.ShouldEqual, 4.)
}
