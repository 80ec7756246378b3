// Package dataset locates, downloads and unpacks the sample point cloud datasets.
//
// Every dataset lives under a data root:
//
//	<root>/download/<prefix>/<archive>   the downloaded file
//	<root>/extract/<prefix>/...          its extracted contents
//
// A dataset whose extract directory already exists is never downloaded again.
package dataset

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// DataRootEnv names the environment variable overriding the default data root.
const DataRootEnv = "PCCROP_DATA_ROOT"

// LocateDataRoot returns $PCCROP_DATA_ROOT when set, otherwise ~/pccrop_data.
func LocateDataRoot() string {
	if root := os.Getenv(DataRootEnv); root != "" {
		return root
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "pccrop_data")
}

// Dataset is a named directory pair under a data root.
type Dataset struct {
	prefix   string
	dataRoot string
}

// NewDataset returns the dataset for prefix. An empty dataRoot selects LocateDataRoot.
func NewDataset(prefix, dataRoot string) (*Dataset, error) {
	if prefix == "" {
		return nil, errors.New("prefix cannot be empty")
	}
	if dataRoot == "" {
		dataRoot = LocateDataRoot()
	}
	return &Dataset{prefix: prefix, dataRoot: dataRoot}, nil
}

// Prefix returns the dataset name used for its directories.
func (d *Dataset) Prefix() string {
	return d.prefix
}

// DataRoot returns the root directory all datasets are stored under.
func (d *Dataset) DataRoot() string {
	return d.dataRoot
}

// DownloadDir returns the directory downloaded files are kept in.
func (d *Dataset) DownloadDir() string {
	return filepath.Join(d.dataRoot, "download", d.prefix)
}

// ExtractDir returns the directory holding the usable files.
func (d *Dataset) ExtractDir() string {
	return filepath.Join(d.dataRoot, "extract", d.prefix)
}
