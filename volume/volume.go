// Package volume implements the selection polygon volume: a polygon extruded along one axis
// between two bounds, used to crop point clouds.
package volume

import (
	"context"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/pccrop/logging"
	"go.viam.com/pccrop/pointcloud"
	"go.viam.com/pccrop/spatialmath"
	"go.viam.com/pccrop/utils"
)

// Axis names the axis a polygon volume is extruded along.
type Axis string

// The axes a volume can be extruded along.
const (
	AxisX Axis = "X"
	AxisY Axis = "Y"
	AxisZ Axis = "Z"
)

// ParseAxis parses an axis name, ignoring case.
func ParseAxis(s string) (Axis, error) {
	switch Axis(strings.ToUpper(strings.TrimSpace(s))) {
	case AxisX:
		return AxisX, nil
	case AxisY:
		return AxisY, nil
	case AxisZ:
		return AxisZ, nil
	default:
		return "", errors.Errorf("invalid orthogonal axis %q, expected x, y or z", s)
	}
}

// planeIndices returns the component indices (u, v) of the polygon plane and w of the axis.
func (a Axis) planeIndices() (int, int, int, bool) {
	switch a {
	case AxisX:
		return 1, 2, 0, true
	case AxisY:
		return 0, 2, 1, true
	case AxisZ:
		return 0, 1, 2, true
	default:
		return 0, 0, 0, false
	}
}

// SelectionPolygonVolume selects the points whose OrthogonalAxis component lies in
// [AxisMin, AxisMax] and whose projection onto the other two axes lies inside BoundingPolygon.
// Only the plane components of the polygon vertices are used.
type SelectionPolygonVolume struct {
	OrthogonalAxis  Axis
	AxisMin         float64
	AxisMax         float64
	BoundingPolygon []r3.Vector
}

func component(v r3.Vector, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// polygon2D projects the bounding polygon onto the plane orthogonal to the axis.
func (vol *SelectionPolygonVolume) polygon2D() ([]r2.Point, int, int, int, bool) {
	u, v, w, ok := vol.OrthogonalAxis.planeIndices()
	if !ok {
		return nil, 0, 0, 0, false
	}
	poly := make([]r2.Point, len(vol.BoundingPolygon))
	for i, p := range vol.BoundingPolygon {
		poly[i] = r2.Point{X: component(p, u), Y: component(p, v)}
	}
	return poly, u, v, w, true
}

// Contains reports whether the point lies inside the volume.
func (vol *SelectionPolygonVolume) Contains(p r3.Vector) bool {
	poly, u, v, w, ok := vol.polygon2D()
	if !ok || len(poly) == 0 {
		return false
	}
	return vol.contains(poly, u, v, w, p)
}

func (vol *SelectionPolygonVolume) contains(poly []r2.Point, u, v, w int, p r3.Vector) bool {
	along := component(p, w)
	if along < vol.AxisMin || along > vol.AxisMax {
		return false
	}
	return spatialmath.PointInPolygon2D(poly, r2.Point{X: component(p, u), Y: component(p, v)})
}

// CropInPolygon returns the indices of the points inside the volume in ascending order.
func (vol *SelectionPolygonVolume) CropInPolygon(ctx context.Context, points []r3.Vector) ([]int, error) {
	poly, u, v, w, ok := vol.polygon2D()
	if !ok || len(poly) == 0 || len(points) == 0 {
		return []int{}, ctx.Err()
	}

	var groups [][]int
	err := utils.GroupWorkParallel(
		ctx,
		len(points),
		func(numGroups int) {
			groups = make([][]int, numGroups)
		},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			inside := make([]int, 0, groupSize)
			return func(memberNum, workNum int) {
					if vol.contains(poly, u, v, w, points[workNum]) {
						inside = append(inside, workNum)
					}
				}, func() {
					groups[groupNum] = inside
				}
		},
	)
	if err != nil {
		return nil, err
	}

	// groups cover contiguous ranges in order so concatenating them keeps indices sorted
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	indices := make([]int, 0, total)
	for _, g := range groups {
		indices = append(indices, g...)
	}
	return indices, nil
}

// CropPointCloud returns a new cloud holding the points of cloud inside the volume, with all of
// their attributes, in the order of the input cloud. A volume without a polygon or axis selects
// nothing and logs a warning.
func (vol *SelectionPolygonVolume) CropPointCloud(
	ctx context.Context,
	cloud pointcloud.PointCloud,
	logger logging.Logger,
) (pointcloud.PointCloud, error) {
	if _, _, _, ok := vol.OrthogonalAxis.planeIndices(); !ok || len(vol.BoundingPolygon) == 0 {
		logger.Warn("SelectionPolygonVolume is empty")
		return pointcloud.New(), nil
	}
	indices, err := vol.CropInPolygon(ctx, pointcloud.Points(cloud))
	if err != nil {
		return nil, err
	}
	logger.CDebugw(ctx, "cropped point cloud",
		"axis", vol.OrthogonalAxis, "range", []float64{vol.AxisMin, vol.AxisMax},
		"vertices", len(vol.BoundingPolygon), "input", cloud.Size(), "kept", len(indices))
	return pointcloud.SelectByIndex(cloud, indices, false)
}

// Validate reports whether the volume is usable for cropping.
func (vol *SelectionPolygonVolume) Validate() error {
	if _, _, _, ok := vol.OrthogonalAxis.planeIndices(); !ok {
		return errors.Errorf("invalid orthogonal axis %q", vol.OrthogonalAxis)
	}
	if vol.AxisMin > vol.AxisMax {
		return errors.Errorf("axis_min (%v) is greater than axis_max (%v)", vol.AxisMin, vol.AxisMax)
	}
	if len(vol.BoundingPolygon) < 3 {
		return errors.Errorf("bounding polygon needs at least 3 vertices, got %d", len(vol.BoundingPolygon))
	}
	return nil
}
