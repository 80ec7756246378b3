package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// CloudContains is a silly helper method.
func CloudContains(cloud PointCloud, x, y, z float64) bool {
	_, got := cloud.At(x, y, z)
	return got
}

// Points returns the positions of the cloud in iteration order.
func Points(cloud PointCloud) []r3.Vector {
	points := make([]r3.Vector, 0, cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		points = append(points, p)
		return true
	})
	return points
}

// CalculateMean returns the spatial average center of a given point cloud.
func CalculateMean(cloud PointCloud) r3.Vector {
	return cloud.MetaData().Centroid()
}

// BoundingBox returns the minimum and maximum corners of the axis aligned box holding every
// point. An empty cloud has a zero box.
func BoundingBox(cloud PointCloud) (r3.Vector, r3.Vector) {
	meta := cloud.MetaData()
	if meta.Empty() {
		return r3.Vector{}, r3.Vector{}
	}
	return meta.Min(), meta.Max()
}

// Clone returns a deep copy of the cloud.
func Clone(cloud PointCloud) (PointCloud, error) {
	out := NewWithPrealloc(cloud.Size())
	var err error
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		if d != nil {
			d = d.Clone()
		}
		err = out.Set(p, d)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SelectByIndex returns a new cloud with the points whose iteration index is listed in indices,
// in the order they appear in the source cloud. A repeated index selects a point once. With
// invert, the points not listed are selected instead.
func SelectByIndex(cloud PointCloud, indices []int, invert bool) (PointCloud, error) {
	want := make([]bool, cloud.Size())
	for _, idx := range indices {
		if idx < 0 || idx >= cloud.Size() {
			return nil, errors.Errorf("index %d out of range for cloud of %d points", idx, cloud.Size())
		}
		want[idx] = true
	}

	size := len(indices)
	if invert {
		size = cloud.Size() - size
	}
	if size < 0 {
		size = 0
	}
	out := NewWithPrealloc(size)
	var err error
	i := 0
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		if want[i] != invert {
			if d != nil {
				d = d.Clone()
			}
			err = out.Set(p, d)
		}
		i++
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
