// Package pointcloud defines a point cloud and provides an implementation for one.
//
// Points are keyed by position: setting a point at a position that already exists replaces its
// data. Iteration order is insertion order, which the file codecs and index based selection
// rely on.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/pccrop/spatialmath"
)

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	HasColor  bool
	HasNormal bool
	HasValue  bool

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64

	TotalX, TotalY, TotalZ float64
	count                  int
}

// PointCloud is a general purpose container of points. It does not
// dictate whether or not the cloud is sparse or dense.
type PointCloud interface {
	// Size returns the number of points in the cloud.
	Size() int

	// MetaData returns meta data
	MetaData() MetaData

	// Set places the given point in the cloud.
	Set(p r3.Vector, d Data) error

	// At returns the point in the cloud at the given position.
	// The 2nd return is if the point exists, the first is data if any.
	At(x, y, z float64) (Data, bool)

	// Iterate iterates over all points in the cloud and calls the given
	// function for each point. If the supplied function returns false,
	// iteration will stop after the function returns.
	// numBatches lets you divide up he work. 0 means don't divide
	// myBatch is used iff numBatches > 0 and is which batch you want
	Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool)

	// Transform applies the homogeneous transform to every point in place. Normals are rotated
	// by the linear part of the transform. On error the cloud is left untouched.
	Transform(t *spatialmath.Transform) error
}

// NewMetaData creates a new MetaData.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge updates the meta data with the new data.
func (meta *MetaData) Merge(v r3.Vector, data Data) {
	if data != nil {
		if data.HasColor() {
			meta.HasColor = true
		}
		if data.HasNormal() {
			meta.HasNormal = true
		}
		if data.HasValue() {
			meta.HasValue = true
		}
	}

	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}

	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}

	meta.TotalX += v.X
	meta.TotalY += v.Y
	meta.TotalZ += v.Z
	meta.count++
}

// Empty reports whether no point was merged.
func (meta MetaData) Empty() bool {
	return meta.count == 0
}

// Min returns the minimum corner of the bounding box.
func (meta MetaData) Min() r3.Vector {
	return r3.Vector{X: meta.MinX, Y: meta.MinY, Z: meta.MinZ}
}

// Max returns the maximum corner of the bounding box.
func (meta MetaData) Max() r3.Vector {
	return r3.Vector{X: meta.MaxX, Y: meta.MaxY, Z: meta.MaxZ}
}

// Center returns the center of the bounding box.
func (meta MetaData) Center() r3.Vector {
	return meta.Min().Add(meta.Max()).Mul(0.5)
}

// Extents returns the size of the bounding box along each axis.
func (meta MetaData) Extents() r3.Vector {
	if meta.Empty() {
		return r3.Vector{}
	}
	return meta.Max().Sub(meta.Min())
}

// Centroid returns the mean position of all merged points.
func (meta MetaData) Centroid() r3.Vector {
	if meta.Empty() {
		return r3.Vector{}
	}
	return r3.Vector{X: meta.TotalX, Y: meta.TotalY, Z: meta.TotalZ}.Mul(1 / float64(meta.count))
}
