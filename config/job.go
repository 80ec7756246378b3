// Package config reads crop jobs: a JSON document naming an input cloud, an optional selection
// volume and transform, and where to write and render the result.
//
// Environment references such as ${DATA_DIR} are substituted before the document is decoded.
// Relative paths are resolved against the directory of the job file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"go.viam.com/pccrop/pointcloud"
	"go.viam.com/pccrop/render"
	"go.viam.com/pccrop/spatialmath"
	"go.viam.com/pccrop/utils"
)

// Job describes one crop run.
type Job struct {
	Input     string                 `json:"input"`
	Volume    string                 `json:"volume,omitempty"`
	Transform *spatialmath.Transform `json:"transform,omitempty"`
	Outputs   []Output               `json:"outputs,omitempty"`
	Render    *Render                `json:"render,omitempty"`
	// Debug logs the steps of this job at debug level whatever the logger's level.
	Debug bool `json:"debug,omitempty"`
}

// Output is a file the resulting cloud is written to.
type Output struct {
	Path   string `json:"path"`
	Binary bool   `json:"binary,omitempty"`
}

// Render describes an image of the resulting cloud.
type Render struct {
	Path      string  `json:"path"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	PointSize float64 `json:"point_size,omitempty"`
	Label     string  `json:"label,omitempty"`
	Colormap  string  `json:"colormap,omitempty"`
	// WithInput draws the input cloud under the result.
	WithInput bool `json:"with_input,omitempty"`
}

// Options returns the render options, defaults filling unset fields.
func (r *Render) Options() (render.Options, error) {
	opts := render.DefaultOptions()
	if r.Width != 0 {
		opts.Width = r.Width
	}
	if r.Height != 0 {
		opts.Height = r.Height
	}
	if r.PointSize != 0 {
		opts.PointSize = r.PointSize
	}
	opts.Label = r.Label
	cm, err := render.ColormapByName(r.Colormap)
	if err != nil {
		return opts, err
	}
	opts.Colormap = cm
	return opts, nil
}

// fieldError reports a problem with a field of the job.
type fieldError struct {
	path string
	msg  string
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("error validating %q: %s", e.path, e.msg)
}

func newFieldError(path, format string, args ...interface{}) error {
	return &fieldError{path: path, msg: fmt.Sprintf(format, args...)}
}

// Validate returns the first problem found in the job.
func (j *Job) Validate() error {
	if j.Input == "" {
		return newFieldError("input", "is required")
	}
	if !pointcloud.IsSupportedFile(j.Input) {
		return newFieldError("input", "unsupported point cloud file %q", j.Input)
	}
	if j.Transform == nil && j.Volume == "" && len(j.Outputs) == 0 && j.Render == nil {
		return newFieldError("", "job does nothing, set at least one of volume, transform, outputs or render")
	}
	for i, out := range j.Outputs {
		path := fmt.Sprintf("outputs.%d.path", i)
		if out.Path == "" {
			return newFieldError(path, "is required")
		}
		if !pointcloud.IsSupportedFile(out.Path) {
			return newFieldError(path, "unsupported point cloud file %q", out.Path)
		}
	}
	if j.Render != nil {
		if j.Render.Path == "" {
			return newFieldError("render.path", "is required")
		}
		if j.Render.Width < 0 || j.Render.Height < 0 {
			return newFieldError("render", "width and height cannot be negative")
		}
		if j.Render.PointSize < 0 {
			return newFieldError("render.point_size", "cannot be negative")
		}
		if _, err := render.ColormapByName(j.Render.Colormap); err != nil {
			return newFieldError("render.colormap", "%v", err)
		}
	}
	return nil
}

// resolve makes every path of the job absolute against dir.
func (j *Job) resolve(dir string) {
	j.Input = utils.ResolvePath(dir, j.Input)
	j.Volume = utils.ResolvePath(dir, j.Volume)
	for i := range j.Outputs {
		j.Outputs[i].Path = utils.ResolvePath(dir, j.Outputs[i].Path)
	}
	if j.Render != nil {
		j.Render.Path = utils.ResolvePath(dir, j.Render.Path)
	}
}

// Read reads the job at path, substituting environment variables first.
func Read(path string) (*Job, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromReader(path, bytes.NewReader(buf))
}

// FromReader decodes and validates a job. path is where the job came from and anchors relative
// paths; an empty path anchors them to the working directory. Jobs in .json5 files may have
// comments, trailing commas and unquoted keys.
func FromReader(path string, r io.Reader) (*Job, error) {
	if strings.EqualFold(filepath.Ext(path), ".json5") {
		var err error
		if r, err = json5ToJSON(r); err != nil {
			return nil, errors.Wrap(err, "cannot parse job")
		}
	}
	var job Job
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&job); err != nil {
		return nil, errors.Wrap(err, "cannot parse job")
	}
	if path != "" {
		dir, err := filepath.Abs(filepath.Dir(path))
		if err != nil {
			return nil, err
		}
		job.resolve(dir)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// json5ToJSON rewrites a json5 document as plain JSON so it can be decoded strictly.
func json5ToJSON(r io.Reader) (io.Reader, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json5.Unmarshal(buf, &doc); err != nil {
		return nil, err
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(out), nil
}
