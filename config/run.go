package config

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"go.viam.com/pccrop/logging"
	"go.viam.com/pccrop/pointcloud"
	"go.viam.com/pccrop/render"
	"go.viam.com/pccrop/volume"
)

// Result is what a job produced.
type Result struct {
	Input  pointcloud.PointCloud
	Output pointcloud.PointCloud
}

// Run executes the job: read the input, crop it with the volume, transform it, then write the
// outputs and the rendering. The input is transformed too so a rendering drawing both lines up.
func Run(ctx context.Context, job *Job, logger logging.Logger) (*Result, error) {
	if job.Debug {
		ctx = logging.EnableDebugMode(ctx, filepath.Base(job.Input))
	}
	input, err := pointcloud.NewFromFile(job.Input, logger)
	if err != nil {
		return nil, err
	}
	logger.Infow("read point cloud", "file", job.Input, "points", input.Size())

	output := input
	if job.Volume != "" {
		vol, err := volume.ReadFile(job.Volume)
		if err != nil {
			return nil, err
		}
		output, err = vol.CropPointCloud(ctx, input, logger)
		if err != nil {
			return nil, errors.Wrap(err, "failed to crop point cloud")
		}
		logger.Infow("cropped point cloud", "volume", job.Volume, "points", output.Size())
	}

	if job.Transform != nil {
		if output != input {
			if err := output.Transform(job.Transform); err != nil {
				return nil, err
			}
		}
		if err := input.Transform(job.Transform); err != nil {
			return nil, err
		}
		logger.CDebugw(ctx, "transformed point cloud", "transform", job.Transform.String())
	}

	for _, out := range job.Outputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := pointcloud.WriteToFile(output, out.Path, out.Binary); err != nil {
			return nil, errors.Wrapf(err, "failed to write %q", out.Path)
		}
		logger.Infow("wrote point cloud", "file", out.Path, "points", output.Size())
	}

	if job.Render != nil {
		opts, err := job.Render.Options()
		if err != nil {
			return nil, err
		}
		clouds := []pointcloud.PointCloud{output}
		if job.Render.WithInput && output != input {
			clouds = []pointcloud.PointCloud{input, output}
		}
		img, err := render.Render(clouds, opts)
		if err != nil {
			return nil, err
		}
		if err := render.WritePNG(job.Render.Path, img); err != nil {
			return nil, errors.Wrapf(err, "failed to write %q", job.Render.Path)
		}
		logger.Infow("rendered point cloud", "file", job.Render.Path)
	}
	return &Result{Input: input, Output: output}, nil
}
