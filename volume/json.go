package volume

import (
	"encoding/json"
	"io"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

const (
	className    = "SelectionPolygonVolume"
	versionMajor = 1
	versionMinor = 0
)

type volumeJSON struct {
	ClassName       string       `json:"class_name"`
	VersionMajor    int          `json:"version_major"`
	VersionMinor    int          `json:"version_minor"`
	OrthogonalAxis  string       `json:"orthogonal_axis"`
	AxisMin         float64      `json:"axis_min"`
	AxisMax         float64      `json:"axis_max"`
	BoundingPolygon [][3]float64 `json:"bounding_polygon"`
}

// ReadFile reads a volume from a JSON file.
func ReadFile(path string) (*SelectionPolygonVolume, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	vol, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading volume %q", path)
	}
	return vol, nil
}

// Read decodes a volume from its JSON form.
func Read(r io.Reader) (*SelectionPolygonVolume, error) {
	var raw volumeJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode selection polygon volume")
	}
	if raw.ClassName != className {
		return nil, errors.Errorf("expected class_name %q, got %q", className, raw.ClassName)
	}
	if raw.VersionMajor != versionMajor {
		return nil, errors.Errorf("unsupported version %d.%d", raw.VersionMajor, raw.VersionMinor)
	}

	vol := &SelectionPolygonVolume{AxisMin: raw.AxisMin, AxisMax: raw.AxisMax}
	if raw.OrthogonalAxis != "" {
		axis, err := ParseAxis(raw.OrthogonalAxis)
		if err != nil {
			return nil, err
		}
		vol.OrthogonalAxis = axis
	}
	vol.BoundingPolygon = make([]r3.Vector, len(raw.BoundingPolygon))
	for i, p := range raw.BoundingPolygon {
		vol.BoundingPolygon[i] = r3.Vector{X: p[0], Y: p[1], Z: p[2]}
	}
	return vol, nil
}

// Write encodes the volume as indented JSON.
func (vol *SelectionPolygonVolume) Write(w io.Writer) error {
	raw := volumeJSON{
		ClassName:       className,
		VersionMajor:    versionMajor,
		VersionMinor:    versionMinor,
		OrthogonalAxis:  string(vol.OrthogonalAxis),
		AxisMin:         vol.AxisMin,
		AxisMax:         vol.AxisMax,
		BoundingPolygon: make([][3]float64, len(vol.BoundingPolygon)),
	}
	for i, p := range vol.BoundingPolygon {
		raw.BoundingPolygon[i] = [3]float64{p.X, p.Y, p.Z}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	return enc.Encode(raw)
}

// WriteFile writes the volume to a JSON file.
func (vol *SelectionPolygonVolume) WriteFile(path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return vol.Write(f)
}
