package pointcloud

import (
	"bytes"
	"encoding/binary"
	"image/color"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/pccrop/logging"
)

// pointValueDataTag names the VLR holding one little endian uint64 value per point.
const pointValueDataTag = "rc|pv"

// NewFromLASFile reads a LAS file. Points in format 2 keep their color and, when the file
// carries a value VLR, their value. Points out of the precise float range are an error.
func NewFromLASFile(fn string, logger logging.Logger) (PointCloud, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	values := lasValueRecord(lf.VlrData)
	withColor := lf.Header.PointFormatID == 2
	count := lf.Header.NumberPoints
	if values != nil && len(values) < count*8 {
		logger.Warnw("LAS value record is short, later points have no value",
			"file", fn, "points", count, "values", len(values)/8)
	}

	pc := NewWithPrealloc(count)
	for i := 0; i < count; i++ {
		lp, err := lf.LasPoint(i)
		if err != nil {
			return nil, errors.Wrapf(err, "LAS point %d", i)
		}
		rec := lp.PointData()
		d := NewBasicData()
		if withColor {
			if c, ok := lasColor(lp.RgbData()); ok {
				d.SetColor(c)
			}
		}
		if v, ok := lasValue(values, i); ok {
			d.SetValue(v)
		}
		if err := pc.Set(r3.Vector{X: rec.X, Y: rec.Y, Z: rec.Z}, d); err != nil {
			return nil, errors.Wrapf(err, "LAS point %d", i)
		}
	}
	return pc, nil
}

func lasValueRecord(vlrs []lidario.VLR) []byte {
	for _, vlr := range vlrs {
		if vlr.Description == pointValueDataTag {
			return vlr.BinaryData
		}
	}
	return nil
}

// lasValue is the value of point i, absent when the record is too short.
func lasValue(record []byte, i int) (int, bool) {
	off := i * 8
	if off+8 > len(record) {
		return 0, false
	}
	return int(binary.LittleEndian.Uint64(record[off : off+8])), true
}

// lasColor scales LAS 16 bit channels down to 8 bits.
func lasColor(rgb *lidario.RgbData) (color.NRGBA, bool) {
	if rgb == nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(rgb.Red >> 8), G: uint8(rgb.Green >> 8), B: uint8(rgb.Blue >> 8), A: 255}, true
}

// WriteToLASFile writes the point cloud out to a LAS file.
func WriteToLASFile(cloud PointCloud, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return
	}
	defer func() {
		cerr := lf.Close()
		err = multierr.Combine(err, cerr)
	}()

	meta := cloud.MetaData()

	pointFormatID := 0
	if meta.HasColor {
		pointFormatID = 2
	}
	if err = lf.AddHeader(lidario.LasHeader{
		PointFormatID: byte(pointFormatID),
	}); err != nil {
		return
	}

	var pVals []int
	if meta.HasValue {
		pVals = make([]int, 0, cloud.Size())
	}
	var lastErr error
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		var lp lidario.LasPointer
		pr0 := &lidario.PointRecord0{
			// floating point lossiness validated/warned from set/load
			X: pos.X,
			Y: pos.Y,
			Z: pos.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3) | (0 << 6) | (0 << 7),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			ScanAngle:     0,
			UserData:      0,
			PointSourceID: 1,
		}
		lp = pr0

		if meta.HasColor {
			red, green, blue := 255, 255, 255
			if d != nil && d.HasColor() {
				r, g, b := d.RGB255()
				red, green, blue = int(r), int(g), int(b)
			}
			lp = &lidario.PointRecord2{
				PointRecord0: pr0,
				RGB: &lidario.RgbData{
					Red:   uint16(red * 256),
					Green: uint16(green * 256),
					Blue:  uint16(blue * 256),
				},
			}
		}
		if meta.HasValue {
			if d != nil && d.HasValue() {
				pVals = append(pVals, d.Value())
			} else {
				pVals = append(pVals, 0)
			}
		}
		if lerr := lf.AddLasPoint(lp); lerr != nil {
			lastErr = lerr
			return false
		}
		return true
	})
	if lastErr != nil {
		err = lastErr
		return
	}
	if meta.HasValue {
		var buf bytes.Buffer
		for _, v := range pVals {
			b := make([]byte, 8)
			binary.LittleEndian.PutUint64(b, uint64(v))
			buf.Write(b)
		}
		if err = lf.AddVLR(lidario.VLR{
			UserID:                  "",
			Description:             pointValueDataTag,
			BinaryData:              buf.Bytes(),
			RecordLengthAfterHeader: buf.Len(),
		}); err != nil {
			return
		}
	}

	// nolint:nakedret
	return
}
