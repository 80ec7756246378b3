package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/pccrop/spatialmath"
)

// Float64 can exactly represent every integer in this range, positions outside of it lose
// precision in the LAS integer encoding and in position keyed lookups.
const (
	maxPreciseFloat64 = float64(1 << 53)
	minPreciseFloat64 = -maxPreciseFloat64
)

// basicPointCloud is the basic implementation of the PointCloud interface backed by
// an ordered slice of points. Repeated positions are kept as separate points.
type basicPointCloud struct {
	points *matrixStorage
	meta   MetaData
}

// New returns an empty PointCloud backed by a basicPointCloud.
func New() PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty, preallocated PointCloud backed by a basicPointCloud.
func NewWithPrealloc(size int) PointCloud {
	return &basicPointCloud{
		points: newMatrixStorage(size),
		meta:   NewMetaData(),
	}
}

func (cloud *basicPointCloud) Size() int {
	return cloud.points.Size()
}

func (cloud *basicPointCloud) MetaData() MetaData {
	return cloud.meta
}

func (cloud *basicPointCloud) At(x, y, z float64) (Data, bool) {
	return cloud.points.At(x, y, z)
}

// Set validates that the point can be precisely stored before setting it in the cloud.
func (cloud *basicPointCloud) Set(p r3.Vector, d Data) error {
	if err := checkPrecise(p); err != nil {
		return err
	}
	if err := cloud.points.Set(p, d); err != nil {
		return err
	}
	cloud.meta.Merge(p, d)
	return nil
}

func (cloud *basicPointCloud) Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool) {
	cloud.points.Iterate(numBatches, myBatch, fn)
}

// Transform moves every point in place; points that land on the same position stay distinct.
// The cloud is unchanged when any point cannot be moved.
func (cloud *basicPointCloud) Transform(t *spatialmath.Transform) error {
	if t == nil {
		return errors.New("cannot transform by a nil transform")
	}
	moved := make([]PointAndData, 0, cloud.Size())
	var err error
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		var np r3.Vector
		np, err = t.ApplyPoint(p)
		if err != nil {
			return false
		}
		if err = checkPrecise(np); err != nil {
			return false
		}
		// data may be shared with another cloud so it is never rotated in place
		if d != nil {
			d = d.Clone()
			if d.HasNormal() {
				d.SetNormal(t.ApplyDirection(d.Normal()))
			}
		}
		moved = append(moved, PointAndData{P: np, D: d})
		return true
	})
	if err != nil {
		return err
	}

	meta := NewMetaData()
	for i, pd := range moved {
		cloud.points.update(i, pd.P, pd.D)
		meta.Merge(pd.P, pd.D)
	}
	cloud.points.reindex()
	cloud.meta = meta
	return nil
}

func checkPrecise(p r3.Vector) error {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) {
		return errors.Errorf("point %v has a NaN component", p)
	}
	if p.X < minPreciseFloat64 || p.X > maxPreciseFloat64 {
		return errors.Errorf("x component (%v) is out of range [%v,%v]", p.X, minPreciseFloat64, maxPreciseFloat64)
	}
	if p.Y < minPreciseFloat64 || p.Y > maxPreciseFloat64 {
		return errors.Errorf("y component (%v) is out of range [%v,%v]", p.Y, minPreciseFloat64, maxPreciseFloat64)
	}
	if p.Z < minPreciseFloat64 || p.Z > maxPreciseFloat64 {
		return errors.Errorf("z component (%v) is out of range [%v,%v]", p.Z, minPreciseFloat64, maxPreciseFloat64)
	}
	return nil
}
