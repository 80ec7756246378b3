package pointcloud

import (
	"encoding"
	"encoding/binary"
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Vectors is a series of three-dimensional vectors.
type Vectors []r3.Vector

// Len returns the number of vectors.
func (vs Vectors) Len() int {
	return len(vs)
}

// Swap swaps two vectors positionally.
func (vs Vectors) Swap(i, j int) {
	vs[i], vs[j] = vs[j], vs[i]
}

// Less returns which vector is less than the other based on
// r3.Vector.Cmp.
func (vs Vectors) Less(i, j int) bool {
	return vs[i].Cmp(vs[j]) < 0
}

// Data describes data associated single point within a PointCloud.
type Data interface {
	// HasColor returns whether or not this point is colored.
	HasColor() bool

	// RGB255 returns, if colored, the RGB components of the color. There
	// is no alpha channel right now and as such the data can be assumed to be
	// premultiplied.
	RGB255() (uint8, uint8, uint8)

	// Color returns the native color of the point.
	Color() color.Color

	// SetColor sets the given color on the point.
	SetColor(c color.NRGBA) Data

	// HasNormal returns whether or not this point carries a surface normal.
	HasNormal() bool

	// Normal returns the surface normal, if it exists.
	Normal() r3.Vector

	// SetNormal sets the surface normal on the point.
	SetNormal(n r3.Vector) Data

	// HasValue returns whether or not this point has some user data value
	// associated with it.
	HasValue() bool

	// Value returns the user data set value, if it exists.
	Value() int

	// SetValue sets the given user data value on the point.
	SetValue(v int) Data

	// Clone returns an independent copy of the data.
	Clone() Data

	// BinaryMarshaler allows the marshaling of Data into a list of bytes.
	encoding.BinaryMarshaler

	// BinaryUnmarshaler allows the unmarshaling of a list of bytes in Data.
	encoding.BinaryUnmarshaler
}

type basicData struct {
	hasColor bool
	c        color.NRGBA

	hasNormal bool
	normal    r3.Vector

	hasValue bool
	value    int
}

// NewBasicData returns a point that is solely positionally based.
func NewBasicData() Data {
	return &basicData{}
}

// NewColoredData returns a point that has both position and color.
func NewColoredData(c color.NRGBA) Data {
	return &basicData{c: c, hasColor: true}
}

// NewNormalData returns a point that has both position and a surface normal.
func NewNormalData(n r3.Vector) Data {
	return &basicData{normal: n, hasNormal: true}
}

// NewValueData returns a point that has both position and a user data value.
func NewValueData(v int) Data {
	return &basicData{value: v, hasValue: true}
}

func (bp *basicData) SetColor(c color.NRGBA) Data {
	bp.c = c
	bp.hasColor = true
	return bp
}

func (bp *basicData) HasColor() bool {
	return bp.hasColor
}

func (bp *basicData) RGB255() (uint8, uint8, uint8) {
	return bp.c.R, bp.c.G, bp.c.B
}

func (bp *basicData) Color() color.Color {
	return &bp.c
}

func (bp *basicData) SetNormal(n r3.Vector) Data {
	bp.normal = n
	bp.hasNormal = true
	return bp
}

func (bp *basicData) HasNormal() bool {
	return bp.hasNormal
}

func (bp *basicData) Normal() r3.Vector {
	return bp.normal
}

func (bp *basicData) SetValue(v int) Data {
	bp.hasValue = true
	bp.value = v
	return bp
}

func (bp *basicData) HasValue() bool {
	return bp.hasValue
}

func (bp *basicData) Value() int {
	return bp.value
}

func (bp *basicData) Clone() Data {
	cp := *bp
	return &cp
}

const (
	dataFlagColor = 1 << iota
	dataFlagNormal
	dataFlagValue
)

// MarshalBinary stores a flag byte followed by whichever of color (RGBA), normal (3 little endian
// float64s) and value (little endian int64) are present, in that order.
func (bp *basicData) MarshalBinary() ([]byte, error) {
	var flags byte
	dataBytes := []byte{0}

	if bp.HasColor() {
		flags |= dataFlagColor
		dataBytes = append(dataBytes, bp.c.R, bp.c.G, bp.c.B, bp.c.A)
	}
	if bp.HasNormal() {
		flags |= dataFlagNormal
		for _, f := range []float64{bp.normal.X, bp.normal.Y, bp.normal.Z} {
			dataBytes = binary.LittleEndian.AppendUint64(dataBytes, math.Float64bits(f))
		}
	}
	if bp.HasValue() {
		flags |= dataFlagValue
		dataBytes = binary.LittleEndian.AppendUint64(dataBytes, uint64(int64(bp.value)))
	}
	dataBytes[0] = flags
	return dataBytes, nil
}

// UnmarshalBinary reads the layout written by MarshalBinary.
func (bp *basicData) UnmarshalBinary(dataBytes []byte) error {
	if len(dataBytes) == 0 {
		return errors.New("error unmarshaling data: empty packet")
	}
	flags := dataBytes[0]
	expected := 1
	if flags&dataFlagColor != 0 {
		expected += 4
	}
	if flags&dataFlagNormal != 0 {
		expected += 24
	}
	if flags&dataFlagValue != 0 {
		expected += 8
	}
	if len(dataBytes) != expected {
		// Invalid data packet size
		return errors.Errorf("error unmarshaling data invalid packet size (%d), expected %d", len(dataBytes), expected)
	}

	*bp = basicData{}
	rest := dataBytes[1:]
	if flags&dataFlagColor != 0 {
		bp.SetColor(color.NRGBA{R: rest[0], G: rest[1], B: rest[2], A: rest[3]})
		rest = rest[4:]
	}
	if flags&dataFlagNormal != 0 {
		bp.SetNormal(r3.Vector{
			X: math.Float64frombits(binary.LittleEndian.Uint64(rest[0:])),
			Y: math.Float64frombits(binary.LittleEndian.Uint64(rest[8:])),
			Z: math.Float64frombits(binary.LittleEndian.Uint64(rest[16:])),
		})
		rest = rest[24:]
	}
	if flags&dataFlagValue != 0 {
		bp.SetValue(int(int64(binary.LittleEndian.Uint64(rest))))
	}
	return nil
}
