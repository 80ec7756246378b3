package cli

import (
	"io/fs"
	"path/filepath"
	"strings"

	units "github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/pccrop/dataset"
	"go.viam.com/pccrop/logging"
)

type datasetArgs struct {
	DataRoot string
}

func (args datasetArgs) dataRoot() string {
	if args.DataRoot != "" {
		return args.DataRoot
	}
	return dataset.LocateDataRoot()
}

// DatasetListAction is the corresponding action for 'dataset list'.
func DatasetListAction(c *cli.Context, args datasetArgs) error {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Name", "Downloaded", "Size", "Directory"})
	for _, name := range dataset.Names() {
		entry, err := dataset.Lookup(name, args.dataRoot())
		if err != nil {
			return err
		}
		size := "-"
		if entry.Present() {
			n, err := dirSize(entry.ExtractDir())
			if err != nil {
				return err
			}
			size = units.HumanSize(float64(n))
		}
		t.AppendRow(table.Row{name, entry.Present(), size, entry.ExtractDir()})
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

// DatasetFetchAction is the corresponding action for 'dataset fetch'.
func DatasetFetchAction(c *cli.Context, args datasetArgs) error {
	name := c.Args().First()
	if name == "" {
		return errors.Errorf("dataset name is required, one of: %s", strings.Join(dataset.Names(), ", "))
	}
	entry, err := dataset.Lookup(name, args.dataRoot())
	if err != nil {
		return err
	}
	if err := fetchDataset(c, entry, newLogger(c)); err != nil {
		return err
	}
	for _, p := range entry.Paths() {
		printf(c.App.Writer, "%s", p)
	}
	return nil
}

// fetchDataset downloads the dataset unless it is already there, showing progress on a spinner.
func fetchDataset(c *cli.Context, entry dataset.Entry, logger logging.Logger) error {
	if entry.Present() {
		logger.Debugw("dataset already downloaded", "dataset", entry.Prefix(), "dir", entry.ExtractDir())
		return nil
	}
	text := "Downloading " + entry.Prefix()
	spinner, err := spinnerFactory(text)
	if err != nil {
		return err
	}
	fetcher := entry.Fetcher()
	fetcher.Progress = &downloadProgress{spinner: spinner, text: text}
	if err := fetcher.Fetch(c.Context, logger); err != nil {
		spinner.Fail("Failed to download " + entry.Prefix())
		return err
	}
	spinner.Success("Downloaded " + entry.Prefix() + " to " + entry.ExtractDir())
	return nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
