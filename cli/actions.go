package cli

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/pccrop/config"
	"go.viam.com/pccrop/dataset"
	"go.viam.com/pccrop/pointcloud"
	"go.viam.com/pccrop/render"
	"go.viam.com/pccrop/spatialmath"
	"go.viam.com/pccrop/viewer"
	"go.viam.com/pccrop/volume"
)

type demoArgs struct {
	renderArgs
	DataRoot string
	Out      string
	Serve    string
}

// DemoAction is the corresponding action for 'demo'. It loads the demo point cloud, crops the
// chair out of it with the demo selection volume, flips both clouds so they are not upside down
// and displays them.
func DemoAction(c *cli.Context, args demoArgs) error {
	logger := newLogger(c)
	printf(c.App.Writer, "Load a ply point cloud, crop it, and render it")

	dataRoot := datasetArgs{DataRoot: args.DataRoot}.dataRoot()
	demo, err := dataset.NewDemoCropPointCloud(dataRoot)
	if err != nil {
		return err
	}
	if err := fetchDataset(c, demo, logger); err != nil {
		return err
	}

	pcd, err := pointcloud.NewFromFile(demo.PointCloudPath(), logger)
	if err != nil {
		return err
	}
	vol, err := volume.ReadFile(demo.CroppedJSONPath())
	if err != nil {
		return err
	}
	chair, err := vol.CropPointCloud(c.Context, pcd, logger)
	if err != nil {
		return err
	}

	flip := spatialmath.NewFlipYZ()
	if err := pcd.Transform(flip); err != nil {
		return err
	}
	if err := chair.Transform(flip); err != nil {
		return err
	}

	opts, err := args.options()
	if err != nil {
		return err
	}
	out := args.Out
	if out == "" {
		out = "."
	}
	if err := os.MkdirAll(out, 0o750); err != nil {
		return err
	}

	printf(c.App.Writer, "Displaying original pointcloud ...")
	originalPath := filepath.Join(out, "original.png")
	if err := renderToFile([]pointcloud.PointCloud{pcd}, opts, "original", originalPath); err != nil {
		return err
	}
	printf(c.App.Writer, "%s (%d points)", originalPath, pcd.Size())

	printf(c.App.Writer, "Displaying cropped pointcloud")
	croppedPath := filepath.Join(out, "cropped.png")
	if err := renderToFile([]pointcloud.PointCloud{chair}, opts, "cropped", croppedPath); err != nil {
		return err
	}
	printf(c.App.Writer, "%s (%d points)", croppedPath, chair.Size())

	if args.Serve == "" {
		return nil
	}
	printf(c.App.Writer, "Serving both point clouds on http://%s", args.Serve)
	return viewer.Display(c.Context, args.Serve, logger, pcd, chair)
}

func renderToFile(clouds []pointcloud.PointCloud, opts render.Options, label, path string) error {
	if opts.Label == "" {
		opts.Label = label
	}
	img, err := render.Render(clouds, opts)
	if err != nil {
		return err
	}
	return render.WritePNG(path, img)
}

type cropArgs struct {
	Input     string
	Volume    string
	Output    string
	Transform string
	Binary    bool
}

// CropAction is the corresponding action for 'crop'.
func CropAction(c *cli.Context, args cropArgs) error {
	if !pointcloud.IsSupportedFile(args.Output) {
		return errors.Errorf("cannot write %q, expected one of %v", args.Output, pointcloud.Extensions)
	}
	job := &config.Job{
		Input:   args.Input,
		Volume:  args.Volume,
		Outputs: []config.Output{{Path: args.Output, Binary: args.Binary}},
	}
	if args.Transform != "" {
		t, err := spatialmath.ParseTransform(args.Transform)
		if err != nil {
			return err
		}
		job.Transform = t
	}
	if err := job.Validate(); err != nil {
		return err
	}
	res, err := config.Run(c.Context, job, newLogger(c))
	if err != nil {
		return err
	}
	if res.Output.Size() == 0 {
		warningf(c.App.ErrWriter, "no point of %s is inside the volume", args.Input)
	}
	printf(c.App.Writer, "Kept %d of %d points in %s", res.Output.Size(), res.Input.Size(), args.Output)
	return nil
}

type renderFilesArgs struct {
	renderArgs
	Output string
}

// RenderAction is the corresponding action for 'render'.
func RenderAction(c *cli.Context, args renderFilesArgs) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return errors.New("at least one point cloud file is required")
	}
	opts, err := args.options()
	if err != nil {
		return err
	}
	logger := newLogger(c)
	clouds := make([]pointcloud.PointCloud, 0, len(files))
	for _, fn := range files {
		pc, err := pointcloud.NewFromFile(fn, logger)
		if err != nil {
			return err
		}
		clouds = append(clouds, pc)
	}
	img, err := render.Render(clouds, opts)
	if err != nil {
		return err
	}
	if err := render.WritePNG(args.Output, img); err != nil {
		return err
	}
	printf(c.App.Writer, "Rendered %d point clouds to %s", len(clouds), args.Output)
	return nil
}

type viewArgs struct {
	renderArgs
	Addr string
}

// ViewAction is the corresponding action for 'view'.
func ViewAction(c *cli.Context, args viewArgs) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return errors.New("at least one point cloud file is required")
	}
	names := lo.Map(files, func(fn string, _ int) string { return viewer.CloudName(fn) })
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return errors.Errorf("point cloud files must have distinct names, got %v more than once", dups)
	}
	opts, err := args.options()
	if err != nil {
		return err
	}
	return viewer.ServeFiles(c.Context, args.Addr, files, opts, newLogger(c), func(addr net.Addr) {
		printf(c.App.Writer, "Serving %d point clouds on http://%s", len(files), addr)
	})
}

type runArgs struct {
	Config string
}

// RunAction is the corresponding action for 'run'.
func RunAction(c *cli.Context, args runArgs) error {
	job, err := config.Read(args.Config)
	if err != nil {
		return err
	}
	res, err := config.Run(c.Context, job, newLogger(c))
	if err != nil {
		return err
	}
	printf(c.App.Writer, "Kept %d of %d points", res.Output.Size(), res.Input.Size())
	for _, out := range job.Outputs {
		printf(c.App.Writer, "%s", out.Path)
	}
	if job.Render != nil {
		printf(c.App.Writer, "%s", job.Render.Path)
	}
	return nil
}

type schemaArgs struct{}

// SchemaAction is the corresponding action for 'schema'.
func SchemaAction(c *cli.Context, args schemaArgs) error {
	raw, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", raw)
	return nil
}
