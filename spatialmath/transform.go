// Package spatialmath defines homogeneous transforms and planar polygon
// helpers used to move and select points in a cloud.
package spatialmath

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const transformEpsilon = 1e-9

// Transform is a 4x4 homogeneous transformation matrix acting on column vectors.
type Transform struct {
	m *mat.Dense
}

// NewTransformFromRows returns a transform from 4 rows of 4 values each.
func NewTransformFromRows(rows [][]float64) (*Transform, error) {
	if len(rows) != 4 {
		return nil, errors.Errorf("transform must have 4 rows, got %d", len(rows))
	}
	data := make([]float64, 0, 16)
	for i, row := range rows {
		if len(row) != 4 {
			return nil, errors.Errorf("transform row %d must have 4 columns, got %d", i, len(row))
		}
		data = append(data, row...)
	}
	return NewTransformFromSlice(data)
}

// NewTransformFromSlice returns a transform from 16 row-major values.
func NewTransformFromSlice(data []float64) (*Transform, error) {
	if len(data) != 16 {
		return nil, errors.Errorf("transform needs 16 values, got %d", len(data))
	}
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Errorf("transform value %d is not finite", i)
		}
	}
	cp := make([]float64, 16)
	copy(cp, data)
	return &Transform{m: mat.NewDense(4, 4, cp)}, nil
}

// ParseTransform parses 16 row-major values separated by commas and/or whitespace.
func ParseTransform(s string) (*Transform, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '[' || r == ']' || r == ' ' || r == '\t' || r == '\n'
	})
	data := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid transform value %q", f)
		}
		data = append(data, v)
	}
	return NewTransformFromSlice(data)
}

// NewIdentityTransform returns the identity transform.
func NewIdentityTransform() *Transform {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		m.Set(i, i, 1)
	}
	return &Transform{m: m}
}

// NewTranslation returns a transform that translates by v.
func NewTranslation(v r3.Vector) *Transform {
	t := NewIdentityTransform()
	t.m.Set(0, 3, v.X)
	t.m.Set(1, 3, v.Y)
	t.m.Set(2, 3, v.Z)
	return t
}

// NewRotationZ returns a rotation of theta radians about the Z axis.
func NewRotationZ(theta float64) *Transform {
	t := NewIdentityTransform()
	sin, cos := math.Sincos(theta)
	t.m.Set(0, 0, cos)
	t.m.Set(0, 1, -sin)
	t.m.Set(1, 0, sin)
	t.m.Set(1, 1, cos)
	return t
}

// NewFlipYZ returns the transform that negates Y and Z, a half turn about X. Scans captured
// with a camera looking down +Z appear upside down without it.
func NewFlipYZ() *Transform {
	t := NewIdentityTransform()
	t.m.Set(1, 1, -1)
	t.m.Set(2, 2, -1)
	return t
}

// At returns the element at row i, column j.
func (t *Transform) At(i, j int) float64 {
	return t.m.At(i, j)
}

// Rows returns a copy of the matrix as rows.
func (t *Transform) Rows() [][]float64 {
	rows := make([][]float64, 4)
	for i := range rows {
		rows[i] = mat.Row(nil, i, t.m)
	}
	return rows
}

// Compose returns t * other, which applies other first and then t.
func (t *Transform) Compose(other *Transform) *Transform {
	var out mat.Dense
	out.Mul(t.m, other.m)
	return &Transform{m: &out}
}

// Inverse returns the inverse transform or an error if t is singular.
func (t *Transform) Inverse() (*Transform, error) {
	var out mat.Dense
	if err := out.Inverse(t.m); err != nil {
		return nil, errors.Wrap(err, "transform is not invertible")
	}
	return &Transform{m: &out}, nil
}

// IsAffine reports whether the last row is [0 0 0 1].
func (t *Transform) IsAffine() bool {
	return nearly(t.m.At(3, 0), 0) && nearly(t.m.At(3, 1), 0) &&
		nearly(t.m.At(3, 2), 0) && nearly(t.m.At(3, 3), 1)
}

// IsRigid reports whether t is affine with an orthonormal, non reflecting rotation block.
func (t *Transform) IsRigid() bool {
	if !t.IsAffine() {
		return false
	}
	rot := t.m.Slice(0, 3, 0, 3)
	var rtr mat.Dense
	rtr.Mul(rot.T(), rot)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.
			if i == j {
				want = 1
			}
			if math.Abs(rtr.At(i, j)-want) > 1e-6 {
				return false
			}
		}
	}
	return mat.Det(rot) > 0
}

// ApplyPoint transforms a position. The homogeneous result is divided by w when w is not 1.
func (t *Transform) ApplyPoint(p r3.Vector) (r3.Vector, error) {
	in := mat.NewVecDense(4, []float64{p.X, p.Y, p.Z, 1})
	var out mat.VecDense
	out.MulVec(t.m, in)
	w := out.AtVec(3)
	if nearly(w, 0) {
		return r3.Vector{}, errors.Errorf("transform maps %v to the plane at infinity", p)
	}
	res := r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
	if !nearly(w, 1) {
		res = res.Mul(1 / w)
	}
	return res, nil
}

// ApplyDirection transforms a direction such as a normal with the upper 3x3 block only.
func (t *Transform) ApplyDirection(d r3.Vector) r3.Vector {
	return r3.Vector{
		X: t.m.At(0, 0)*d.X + t.m.At(0, 1)*d.Y + t.m.At(0, 2)*d.Z,
		Y: t.m.At(1, 0)*d.X + t.m.At(1, 1)*d.Y + t.m.At(1, 2)*d.Z,
		Z: t.m.At(2, 0)*d.X + t.m.At(2, 1)*d.Y + t.m.At(2, 2)*d.Z,
	}
}

// AlmostEqual compares two transforms element wise within epsilon.
func (t *Transform) AlmostEqual(other *Transform, epsilon float64) bool {
	return mat.EqualApprox(t.m, other.m, epsilon)
}

func (t *Transform) String() string {
	rows := t.Rows()
	parts := make([]string, len(rows))
	for i, row := range rows {
		parts[i] = fmt.Sprint(row)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// MarshalJSON encodes the transform as 4 rows.
func (t *Transform) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Rows())
}

// UnmarshalJSON decodes the transform from 4 rows.
func (t *Transform) UnmarshalJSON(data []byte) error {
	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	parsed, err := NewTransformFromRows(rows)
	if err != nil {
		return err
	}
	*t = *parsed
	return nil
}

func nearly(a, b float64) bool {
	return math.Abs(a-b) < transformEpsilon
}
