package pointcloud

import (
	"github.com/golang/geo/r3"
)

// PointAndData is a tiny struct to facilitate returning nearest neighbors in a neat way.
type PointAndData struct {
	P r3.Vector
	D Data
}

// matrixStorage is an ordered slice of points with an index from a position to the first point
// stored there. The same position may be stored more than once.
type matrixStorage struct {
	points   []PointAndData
	indexMap map[r3.Vector]uint
}

func newMatrixStorage(size int) *matrixStorage {
	return &matrixStorage{points: make([]PointAndData, 0, size), indexMap: make(map[r3.Vector]uint, size)}
}

func (ms *matrixStorage) Size() int {
	return len(ms.points)
}

// Set appends the point, even when a point already sits at p.
func (ms *matrixStorage) Set(p r3.Vector, d Data) error {
	ms.points = append(ms.points, PointAndData{P: p, D: d})
	if _, found := ms.indexMap[p]; !found {
		ms.indexMap[p] = uint(len(ms.points) - 1)
	}
	return nil
}

// At returns the data of the first point stored at the position.
func (ms *matrixStorage) At(x, y, z float64) (Data, bool) {
	i, found := ms.indexMap[r3.Vector{X: x, Y: y, Z: z}]
	if !found {
		return nil, false
	}
	return ms.points[i].D, true
}

// update replaces the point at index i. The position index is rebuilt by reindex.
func (ms *matrixStorage) update(i int, p r3.Vector, d Data) {
	ms.points[i] = PointAndData{P: p, D: d}
}

func (ms *matrixStorage) reindex() {
	ms.indexMap = make(map[r3.Vector]uint, len(ms.points))
	for i, pd := range ms.points {
		if _, found := ms.indexMap[pd.P]; !found {
			ms.indexMap[pd.P] = uint(i)
		}
	}
}

func (ms *matrixStorage) Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool) {
	lowerBound := 0
	upperBound := ms.Size()
	if numBatches > 0 {
		batchSize := (ms.Size() + numBatches - 1) / numBatches
		lowerBound = myBatch * batchSize
		upperBound = (myBatch + 1) * batchSize
		if upperBound > ms.Size() {
			upperBound = ms.Size()
		}
	}
	for i := lowerBound; i < upperBound; i++ {
		if cont := fn(ms.points[i].P, ms.points[i].D); !cont {
			return
		}
	}
}
