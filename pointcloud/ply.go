package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/chenzhekl/goply"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// PLYFormat is the body encoding of a written ply file.
type PLYFormat int

const (
	// PLYAscii is the ascii 1.0 format.
	PLYAscii PLYFormat = iota
	// PLYBinary is the binary_little_endian 1.0 format.
	PLYBinary
)

// ReadPLY reads the vertex element of a ply file. Properties x y z are required; nx ny nz and
// red green blue are read when present. Colors stored as floats are taken to be in [0, 1].
func ReadPLY(in io.Reader) (pc PointCloud, err error) {
	// goply panics on malformed input
	defer func() {
		if r := recover(); r != nil {
			pc = nil
			err = errors.Errorf("error parsing ply file: %v", r)
		}
	}()

	ply := goply.New(in)
	vertices := ply.Elements("vertex")
	cloud := NewWithPrealloc(len(vertices))
	for i, vertex := range vertices {
		x, okX := plyFloat(vertex["x"])
		y, okY := plyFloat(vertex["y"])
		z, okZ := plyFloat(vertex["z"])
		if !okX || !okY || !okZ {
			return nil, errors.Errorf("ply vertex %d does not have numeric x y z properties", i)
		}
		if math.IsNaN(x) || math.IsNaN(y) || math.IsNaN(z) {
			continue
		}

		data := NewBasicData()
		nx, okX := plyFloat(vertex["nx"])
		ny, okY := plyFloat(vertex["ny"])
		nz, okZ := plyFloat(vertex["nz"])
		if okX && okY && okZ {
			data.SetNormal(r3.Vector{X: nx, Y: ny, Z: nz})
		}
		if c, ok := plyColor(vertex["red"], vertex["green"], vertex["blue"]); ok {
			data.SetColor(c)
		}
		if err := cloud.Set(r3.Vector{X: x, Y: y, Z: z}, data); err != nil {
			return nil, errors.Wrapf(err, "ply vertex %d", i)
		}
	}
	return cloud, nil
}

func plyFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case int8:
		return float64(n), true
	case uint8:
		return float64(n), true
	case int16:
		return float64(n), true
	case uint16:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func plyColor(r, g, b interface{}) (color.NRGBA, bool) {
	channel := func(v interface{}) (uint8, bool) {
		switch n := v.(type) {
		case float32:
			return unitToByte(float64(n)), true
		case float64:
			return unitToByte(n), true
		case uint16:
			return uint8(n >> 8), true
		default:
			f, ok := plyFloat(v)
			if !ok {
				return 0, false
			}
			return uint8(math.Max(0, math.Min(255, f))), true
		}
	}
	red, okR := channel(r)
	green, okG := channel(g)
	blue, okB := channel(b)
	if !okR || !okG || !okB {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: red, G: green, B: blue, A: 255}, true
}

func unitToByte(f float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, f)) * 255))
}

// ToPLY writes the cloud as a ply file with double precision positions and normals and uchar colors.
func ToPLY(cloud PointCloud, out io.Writer, format PLYFormat) error {
	meta := cloud.MetaData()
	w := bufio.NewWriter(out)

	formatName := "ascii"
	if format == PLYBinary {
		formatName = "binary_little_endian"
	} else if format != PLYAscii {
		return errors.Errorf("unsupported ply format %d", format)
	}
	header := []string{
		"ply",
		"format " + formatName + " 1.0",
		"element vertex " + strconv.Itoa(cloud.Size()),
		"property double x",
		"property double y",
		"property double z",
	}
	if meta.HasNormal {
		header = append(header, "property double nx", "property double ny", "property double nz")
	}
	if meta.HasColor {
		header = append(header, "property uchar red", "property uchar green", "property uchar blue")
	}
	header = append(header, "end_header")
	if _, err := fmt.Fprintln(w, strings.Join(header, "\n")); err != nil {
		return err
	}

	var err error
	buf := make([]byte, 0, 51)
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		values := []float64{p.X, p.Y, p.Z}
		if meta.HasNormal {
			var n r3.Vector
			if d != nil && d.HasNormal() {
				n = d.Normal()
			}
			values = append(values, n.X, n.Y, n.Z)
		}
		var rgb [3]uint8
		if meta.HasColor {
			rgb = [3]uint8{255, 255, 255}
			if d != nil && d.HasColor() {
				rgb[0], rgb[1], rgb[2] = d.RGB255()
			}
		}

		if format == PLYBinary {
			buf = buf[:0]
			for _, v := range values {
				buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
			}
			if meta.HasColor {
				buf = append(buf, rgb[:]...)
			}
			_, err = w.Write(buf)
			return err == nil
		}

		tokens := make([]string, 0, 9)
		for _, v := range values {
			tokens = append(tokens, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if meta.HasColor {
			for _, c := range rgb {
				tokens = append(tokens, strconv.Itoa(int(c)))
			}
		}
		_, err = fmt.Fprintln(w, strings.Join(tokens, " "))
		return err == nil
	})
	if err != nil {
		return err
	}
	return w.Flush()
}
