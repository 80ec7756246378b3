package pointcloud

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	lzf "github.com/zhuyie/golzf"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed lzf compressed binary format for pcd, stored field by field.
	PCDCompressed PCDType = 2
)

func (t PCDType) String() string {
	switch t {
	case PCDAscii:
		return "ascii"
	case PCDBinary:
		return "binary"
	case PCDCompressed:
		return "binary_compressed"
	default:
		return fmt.Sprintf("PCDType(%d)", int(t))
	}
}

func colorToPCDInt(pt Data) uint32 {
	if pt == nil || !pt.HasColor() {
		return 0xFFFFFF
	}
	r, g, b := pt.RGB255()
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func pcdIntToColor(c uint32) color.NRGBA {
	r := uint8(0xFF & (c >> 16))
	g := uint8(0xFF & (c >> 8))
	b := uint8(0xFF & (c >> 0))
	return color.NRGBA{r, g, b, 255}
}

// ToPCD writes the cloud as a PCD v0.7 file. Points are stored as 32 bit floats, colors as rgb
// packed into the bits of a 32 bit float and normals, when the cloud has them, as normal_x normal_y normal_z.
func ToPCD(cloud PointCloud, out io.Writer, outputType PCDType) error {
	if outputType != PCDAscii && outputType != PCDBinary && outputType != PCDCompressed {
		return errors.Errorf("unsupported pcd data type %v", outputType)
	}
	meta := cloud.MetaData()

	fields := []string{"x", "y", "z"}
	types := []string{"F", "F", "F"}
	if meta.HasColor {
		fields = append(fields, "rgb")
		types = append(types, "F")
	}
	if meta.HasNormal {
		fields = append(fields, "normal_x", "normal_y", "normal_z")
		types = append(types, "F", "F", "F")
	}
	sizes := strings.TrimSpace(strings.Repeat("4 ", len(fields)))
	counts := strings.TrimSpace(strings.Repeat("1 ", len(fields)))

	w := bufio.NewWriter(out)
	if _, err := fmt.Fprintf(w, "VERSION .7\n"+
		"FIELDS %s\n"+
		"SIZE %s\n"+
		"TYPE %s\n"+
		"COUNT %s\n"+
		"WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		strings.Join(fields, " "),
		sizes,
		strings.Join(types, " "),
		counts,
		cloud.Size(),
		1,
		cloud.Size(),
		outputType,
	); err != nil {
		return err
	}
	if outputType == PCDCompressed {
		if err := writePCDCompressed(cloud, w, meta, len(fields)); err != nil {
			return err
		}
		return w.Flush()
	}
	if err := writePCDData(cloud, w, outputType, meta); err != nil {
		return err
	}
	return w.Flush()
}

// writePCDCompressed writes the size of the compressed and uncompressed data followed by the lzf
// compressed data. Uncompressed, every field holds the values of all points in a row.
func writePCDCompressed(cloud PointCloud, out io.Writer, meta MetaData, numFields int) error {
	var rows bytes.Buffer
	if err := writePCDData(cloud, &rows, PCDBinary, meta); err != nil {
		return err
	}
	const fieldSize = 4
	n := cloud.Size()
	raw := make([]byte, rows.Len())
	rowBytes := rows.Bytes()
	for i := 0; i < n; i++ {
		for f := 0; f < numFields; f++ {
			src := (i*numFields + f) * fieldSize
			dst := (f*n + i) * fieldSize
			copy(raw[dst:dst+fieldSize], rowBytes[src:src+fieldSize])
		}
	}

	var compressed []byte
	if len(raw) > 0 {
		// lzf can grow incompressible input slightly
		compressed = make([]byte, len(raw)+len(raw)/16+64)
		size, err := lzf.Compress(raw, compressed)
		if err != nil {
			return errors.Wrap(err, "error compressing pcd data")
		}
		compressed = compressed[:size]
	}

	sizes := binary.LittleEndian.AppendUint32(nil, uint32(len(compressed)))
	sizes = binary.LittleEndian.AppendUint32(sizes, uint32(len(raw)))
	if _, err := out.Write(sizes); err != nil {
		return err
	}
	_, err := out.Write(compressed)
	return err
}

func writePCDData(cloud PointCloud, out io.Writer, pcdtype PCDType, meta MetaData) error {
	var err error
	buf := make([]byte, 0, 28)
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		floats := []float64{pos.X, pos.Y, pos.Z}
		var normal r3.Vector
		if meta.HasNormal && d != nil && d.HasNormal() {
			normal = d.Normal()
		}
		switch pcdtype {
		case PCDBinary:
			buf = buf[:0]
			for _, f := range floats {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(f)))
			}
			if meta.HasColor {
				buf = binary.LittleEndian.AppendUint32(buf, colorToPCDInt(d))
			}
			if meta.HasNormal {
				for _, f := range []float64{normal.X, normal.Y, normal.Z} {
					buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(f)))
				}
			}
			_, err = out.Write(buf)
		case PCDAscii:
			tokens := make([]string, 0, 7)
			for _, f := range floats {
				tokens = append(tokens, formatFloat32(f))
			}
			if meta.HasColor {
				packed := math.Float32frombits(colorToPCDInt(d))
				tokens = append(tokens, strconv.FormatFloat(float64(packed), 'g', -1, 32))
			}
			if meta.HasNormal {
				for _, f := range []float64{normal.X, normal.Y, normal.Z} {
					tokens = append(tokens, formatFloat32(f))
				}
			}
			_, err = fmt.Fprintln(out, strings.Join(tokens, " "))
		}
		return err == nil
	})
	return err
}

func formatFloat32(f float64) string {
	return strconv.FormatFloat(float64(float32(f)), 'g', -1, 32)
}

type pcdValType string

const (
	pcdValFloat pcdValType = "F"
	pcdValInt   pcdValType = "I"
	pcdValUInt  pcdValType = "U"
)

type pcdField struct {
	name  string
	size  int
	type_ pcdValType
	count int
}

type pcdHeader struct {
	fields    []pcdField
	width     uint64
	height    uint64
	viewpoint [7]float64
	points    uint64
	data      PCDType
}

// maxPCDPrealloc bounds the points reserved up front from the POINTS field; larger clouds grow as
// they are read.
const maxPCDPrealloc = 1 << 20

// lzfMaxExpansion is the most a single lzf back reference (3 bytes for 264) expands.
const lzfMaxExpansion = 88

func (h *pcdHeader) preallocPoints() int {
	return int(min(h.points, maxPCDPrealloc))
}

// stride is the number of bytes a single binary point takes.
func (h *pcdHeader) stride() int {
	n := 0
	for _, f := range h.fields {
		n += f.size * f.count
	}
	return n
}

// values is the number of ascii tokens a single point takes.
func (h *pcdHeader) values() int {
	n := 0
	for _, f := range h.fields {
		n += f.count
	}
	return n
}

const pcdCommentChar = "#"

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	value = strings.TrimSpace(value)
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		if len(tokens) == 0 {
			return errors.New("pcd FIELDS line is empty")
		}
		header.fields = make([]pcdField, len(tokens))
		for i, token := range tokens {
			header.fields[i] = pcdField{name: token, count: 1}
		}
	case "SIZE":
		if len(tokens) != len(header.fields) {
			return errors.New("unexpected number of fields in SIZE line")
		}
		for i, token := range tokens {
			size, err := strconv.Atoi(token)
			if err != nil || (size != 1 && size != 2 && size != 4 && size != 8) {
				return errors.Errorf("invalid SIZE field %s", token)
			}
			header.fields[i].size = size
		}
	case "TYPE":
		if len(tokens) != len(header.fields) {
			return errors.New("unexpected number of fields in TYPE line")
		}
		for i, token := range tokens {
			t := pcdValType(token)
			if t != pcdValFloat && t != pcdValInt && t != pcdValUInt {
				return errors.Errorf("invalid TYPE field %s", token)
			}
			if t == pcdValFloat && header.fields[i].size != 4 && header.fields[i].size != 8 {
				return errors.Errorf("float field %s must have SIZE 4 or 8", header.fields[i].name)
			}
			header.fields[i].type_ = t
		}
	case "COUNT":
		if len(tokens) != len(header.fields) {
			return errors.New("unexpected number of fields in COUNT line")
		}
		for i, token := range tokens {
			count, err := strconv.Atoi(token)
			if err != nil || count < 1 {
				return errors.Errorf("invalid COUNT field %s", token)
			}
			header.fields[i].count = count
		}
	case "WIDTH":
		header.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
	case "HEIGHT":
		header.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		for i, token := range tokens {
			header.viewpoint[i], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid VIEWPOINT field %s", token)
			}
		}
	case "POINTS":
		var points uint64
		points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", points, header.width*header.height)
		}
		header.points = points
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return errors.Errorf("unsupported pcd data type %q", value)
		}
	}

	return nil
}

// ReadPCD reads a PCD v0.7 file. The fields x y z are required; rgb (or rgba) and
// normal_x normal_y normal_z are read when present and any other field is skipped. Points with
// a NaN coordinate are dropped.
func ReadPCD(inRaw io.Reader) (PointCloud, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}
	layout, err := newPCDLayout(header)
	if err != nil {
		return nil, err
	}
	switch header.data {
	case PCDAscii:
		return readPCDAscii(in, header, layout)
	case PCDBinary:
		return readPCDBinary(in, header, layout)
	case PCDCompressed:
		return readPCDCompressed(in, header, layout)
	default:
		return nil, errors.Errorf("unsupported pcd data type %v", header.data)
	}
}

// pcdLayout holds the value offsets of the fields read into a point, -1 when absent.
type pcdLayout struct {
	x, y, z int
	rgb     int
	normal  int
}

func newPCDLayout(header pcdHeader) (pcdLayout, error) {
	layout := pcdLayout{x: -1, y: -1, z: -1, rgb: -1, normal: -1}
	offset := 0
	normalParts := 0
	for _, f := range header.fields {
		switch f.name {
		case "x":
			layout.x = offset
		case "y":
			layout.y = offset
		case "z":
			layout.z = offset
		case "rgb", "rgba":
			layout.rgb = offset
		case "normal_x":
			layout.normal = offset
			normalParts++
		case "normal_y", "normal_z":
			normalParts++
		}
		offset += f.count
	}
	if layout.x < 0 || layout.y < 0 || layout.z < 0 {
		return layout, errors.New("pcd file must have x y z fields")
	}
	if normalParts != 3 {
		layout.normal = -1
	}
	// normals are only read when stored contiguously
	if layout.normal >= 0 {
		idx := fieldIndexAtOffset(header, layout.normal)
		if idx+2 >= len(header.fields) || header.fields[idx+1].name != "normal_y" || header.fields[idx+2].name != "normal_z" {
			layout.normal = -1
		}
	}
	return layout, nil
}

func fieldIndexAtOffset(header pcdHeader, offset int) int {
	at := 0
	for i, f := range header.fields {
		if at == offset {
			return i
		}
		at += f.count
	}
	return -1
}

func readPCDAscii(in *bufio.Reader, header pcdHeader, layout pcdLayout) (PointCloud, error) {
	pc := NewWithPrealloc(header.preallocPoints())
	numValues := header.values()
	values := make([]float64, numValues)
	kinds := make([]pcdField, 0, numValues)
	for _, f := range header.fields {
		for c := 0; c < f.count; c++ {
			kinds = append(kinds, f)
		}
	}
	for i := 0; i < int(header.points); i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && strings.TrimSpace(line) != "") {
			return nil, errors.Wrapf(err, "error reading point %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != numValues {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		for j, token := range tokens {
			values[j], err = parsePCDAsciiValue(token, kinds[j], j == layout.rgb)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid point %d field %s", i, token)
			}
		}
		if err := setPCDPoint(pc, values, layout); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func parsePCDAsciiValue(token string, field pcdField, packedColor bool) (float64, error) {
	if field.type_ != pcdValFloat {
		return strconv.ParseFloat(token, 64)
	}
	if packedColor {
		v, err := strconv.ParseFloat(token, 32)
		if err != nil {
			return 0, err
		}
		// packed floats carry the color in their bit pattern
		return float64(math.Float32bits(float32(v))), nil
	}
	return strconv.ParseFloat(token, 64)
}

func readPCDBinary(in *bufio.Reader, header pcdHeader, layout pcdLayout) (PointCloud, error) {
	pc := NewWithPrealloc(header.preallocPoints())
	buf := make([]byte, header.stride())
	values := make([]float64, header.values())
	for i := 0; i < int(header.points); i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, errors.Wrapf(err, "error reading point %d", i)
		}
		off := 0
		vi := 0
		for _, f := range header.fields {
			for c := 0; c < f.count; c++ {
				values[vi] = decodePCDValue(buf[off:off+f.size], f, vi == layout.rgb)
				off += f.size
				vi++
			}
		}
		if err := setPCDPoint(pc, values, layout); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func readPCDCompressed(in *bufio.Reader, header pcdHeader, layout pcdLayout) (PointCloud, error) {
	var sizes [8]byte
	if _, err := io.ReadFull(in, sizes[:]); err != nil {
		return nil, errors.Wrap(err, "error reading binary_compressed data sizes")
	}
	compressedSize := binary.LittleEndian.Uint32(sizes[0:4])
	uncompressedSize := binary.LittleEndian.Uint32(sizes[4:8])
	numPoints := int(header.points)
	if uint64(uncompressedSize) != uint64(header.stride())*header.points {
		return nil, errors.Errorf("binary_compressed data holds %d bytes, expected %d for %d points",
			uncompressedSize, header.stride()*numPoints, numPoints)
	}

	// sizes come from the file so nothing is allocated for them before the data is there
	compressed, err := io.ReadAll(io.LimitReader(in, int64(compressedSize)))
	if err != nil {
		return nil, errors.Wrap(err, "error reading binary_compressed data")
	}
	if len(compressed) != int(compressedSize) {
		return nil, errors.Errorf("binary_compressed data is truncated, read %d of %d bytes", len(compressed), compressedSize)
	}
	if uint64(uncompressedSize) > uint64(compressedSize)*lzfMaxExpansion {
		return nil, errors.Errorf("binary_compressed data of %d bytes cannot expand to %d bytes", compressedSize, uncompressedSize)
	}
	raw := make([]byte, uncompressedSize)
	if len(raw) > 0 {
		n, err := lzf.Decompress(compressed, raw)
		if err != nil {
			return nil, errors.Wrap(err, "error decompressing binary_compressed data")
		}
		if n != len(raw) {
			return nil, errors.Errorf("binary_compressed data decompressed to %d bytes, expected %d", n, len(raw))
		}
	}

	// each field stores the values of every point back to back
	fieldStart := make([]int, len(header.fields))
	start := 0
	for i, f := range header.fields {
		fieldStart[i] = start
		start += f.size * f.count * numPoints
	}

	pc := NewWithPrealloc(header.preallocPoints())
	values := make([]float64, header.values())
	for i := 0; i < numPoints; i++ {
		vi := 0
		for fi, f := range header.fields {
			base := fieldStart[fi] + i*f.size*f.count
			for c := 0; c < f.count; c++ {
				off := base + c*f.size
				values[vi] = decodePCDValue(raw[off:off+f.size], f, vi == layout.rgb)
				vi++
			}
		}
		if err := setPCDPoint(pc, values, layout); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func decodePCDValue(b []byte, field pcdField, packedColor bool) float64 {
	switch field.type_ {
	case pcdValFloat:
		if field.size == 8 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
		bits := binary.LittleEndian.Uint32(b)
		if packedColor {
			return float64(bits)
		}
		return float64(math.Float32frombits(bits))
	case pcdValInt:
		switch field.size {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(binary.LittleEndian.Uint16(b)))
		case 4:
			if packedColor {
				return float64(binary.LittleEndian.Uint32(b))
			}
			return float64(int32(binary.LittleEndian.Uint32(b)))
		default:
			return float64(int64(binary.LittleEndian.Uint64(b)))
		}
	default:
		switch field.size {
		case 1:
			return float64(b[0])
		case 2:
			return float64(binary.LittleEndian.Uint16(b))
		case 4:
			return float64(binary.LittleEndian.Uint32(b))
		default:
			return float64(binary.LittleEndian.Uint64(b))
		}
	}
}

func setPCDPoint(pc PointCloud, values []float64, layout pcdLayout) error {
	pos := r3.Vector{X: values[layout.x], Y: values[layout.y], Z: values[layout.z]}
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) {
		return nil
	}
	data := NewBasicData()
	if layout.rgb >= 0 {
		data.SetColor(pcdIntToColor(uint32(int64(values[layout.rgb]))))
	}
	if layout.normal >= 0 {
		n := r3.Vector{X: values[layout.normal], Y: values[layout.normal+1], Z: values[layout.normal+2]}
		if !math.IsNaN(n.X) && !math.IsNaN(n.Y) && !math.IsNaN(n.Z) {
			data.SetNormal(n)
		}
	}
	return pc.Set(pos, data)
}
