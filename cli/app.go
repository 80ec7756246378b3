// Package cli contains the pccrop command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/pccrop/dataset"
)

const (
	generalFlagDebug   = "debug"
	generalFlagLogFile = "log-file"

	flagDataRoot  = "data-root"
	flagOut       = "out"
	flagServe     = "serve"
	flagWidth     = "width"
	flagHeight    = "height"
	flagPointSize = "point-size"
	flagColormap  = "colormap"
	flagLabel     = "label"

	cropFlagInput     = "input"
	cropFlagVolume    = "volume"
	cropFlagOutput    = "output"
	cropFlagTransform = "transform"
	cropFlagBinary    = "binary"

	viewFlagAddr  = "addr"
	runFlagConfig = "config"
)

func dataRootFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    flagDataRoot,
		EnvVars: []string{dataset.DataRootEnv},
		Usage:   "directory datasets are downloaded to (default ~/pccrop_data)",
	}
}

func renderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  flagWidth,
			Value: 800,
			Usage: "image width in pixels",
		},
		&cli.IntFlag{
			Name:  flagHeight,
			Value: 600,
			Usage: "image height in pixels",
		},
		&cli.Float64Flag{
			Name:  flagPointSize,
			Value: 1,
			Usage: "size of a point in pixels",
		},
		&cli.StringFlag{
			Name:  flagColormap,
			Value: "height",
			Usage: "colormap for points without color: height, gray or #rrggbb-#rrggbb",
		},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:            "pccrop",
		Usage:           "crop, transform and look at point clouds",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  generalFlagLogFile,
				Usage: "also write logs to `FILE`, rotated every 10MB",
			},
		},
		Before: openLogFile,
		After:  closeLogFile,
		Commands: []*cli.Command{
			{
				Name:  "demo",
				Usage: "crop the chair out of the demo point cloud and display both",
				UsageText: "pccrop demo [--out DIR] [--serve ADDR]\n\n" +
					"downloads the demo dataset if needed, crops it with its selection volume, flips both clouds and " +
					"renders them to original.png and cropped.png",
				Flags: append([]cli.Flag{
					dataRootFlag(),
					&cli.StringFlag{
						Name:  flagOut,
						Value: ".",
						Usage: "directory the rendered images are written to",
					},
					&cli.StringFlag{
						Name:  flagServe,
						Usage: "also serve both clouds in a viewer on `ADDR` until interrupted",
					},
				}, renderFlags()...),
				Action: createCommandWithT(DemoAction),
			},
			{
				Name:      "crop",
				Usage:     "crop a point cloud with a selection polygon volume",
				UsageText: "pccrop crop --input FILE --volume FILE --output FILE [--transform M] [--binary]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     cropFlagInput,
						Aliases:  []string{"i"},
						Required: true,
						Usage:    "point cloud to crop (.pcd, .ply or .las)",
					},
					&cli.StringFlag{
						Name:     cropFlagVolume,
						Required: true,
						Usage:    "selection polygon volume JSON",
					},
					&cli.StringFlag{
						Name:     cropFlagOutput,
						Aliases:  []string{"o"},
						Required: true,
						Usage:    "where to write the cropped cloud",
					},
					&cli.StringFlag{
						Name:  cropFlagTransform,
						Usage: "16 row-major values of a 4x4 transform applied after cropping",
					},
					&cli.BoolFlag{
						Name:  cropFlagBinary,
						Usage: "write binary PCD or PLY",
					},
				},
				Action: createCommandWithT(CropAction),
			},
			{
				Name:      "info",
				Usage:     "print statistics of point cloud files",
				ArgsUsage: "FILE...",
				Action:    createCommandWithT(InfoAction),
			},
			{
				Name:      "render",
				Usage:     "render point cloud files into one image",
				ArgsUsage: "FILE...",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     cropFlagOutput,
						Aliases:  []string{"o"},
						Required: true,
						Usage:    "PNG file to write",
					},
					&cli.StringFlag{
						Name:  flagLabel,
						Usage: "text drawn in the corner of the image",
					},
				}, renderFlags()...),
				Action: createCommandWithT(RenderAction),
			},
			{
				Name:      "view",
				Usage:     "serve point cloud files in a viewer, reloading them when they change",
				ArgsUsage: "FILE...",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  viewFlagAddr,
						Value: "localhost:8080",
						Usage: "address to listen on",
					},
				}, renderFlags()...),
				Action: createCommandWithT(ViewAction),
			},
			{
				Name:  "run",
				Usage: "run a crop job described by a JSON file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     runFlagConfig,
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "load the job from `FILE`",
					},
				},
				Action: createCommandWithT(RunAction),
			},
			{
				Name:   "schema",
				Usage:  "print the JSON schema of job files",
				Action: createCommandWithT(SchemaAction),
			},
			{
				Name:            "dataset",
				Usage:           "work with sample datasets",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "list sample datasets and whether they are downloaded",
						Flags:  []cli.Flag{dataRootFlag()},
						Action: createCommandWithT(DatasetListAction),
					},
					{
						Name:      "fetch",
						Usage:     "download a sample dataset",
						ArgsUsage: "NAME",
						Flags:     []cli.Flag{dataRootFlag()},
						Action:    createCommandWithT(DatasetFetchAction),
					},
				},
			},
		},
	}
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app := newApp()
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
