package pointcloud

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/pccrop/logging"
)

// Extensions lists the file extensions NewFromFile and WriteToFile understand.
var Extensions = []string{".pcd", ".ply", ".las"}

// IsSupportedFile reports whether the extension of fn is one this package reads and writes.
func IsSupportedFile(fn string) bool {
	ext := strings.ToLower(filepath.Ext(fn))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// NewFromFile returns a pointcloud read in from the given file.
func NewFromFile(fn string, logger logging.Logger) (PointCloud, error) {
	var (
		pc  PointCloud
		err error
	)
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".las":
		pc, err = NewFromLASFile(fn, logger)
	case ".pcd":
		pc, err = readFileWith(fn, ReadPCD)
	case ".ply":
		pc, err = readFileWith(fn, ReadPLY)
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %q", fn)
	}
	logger.Debugw("read point cloud", "file", fn, "points", pc.Size())
	return pc, nil
}

func readFileWith(fn string, read func(io.Reader) (PointCloud, error)) (PointCloud, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return read(bufio.NewReader(f))
}

// WriteToFile writes the cloud to fn in the format its extension names. binary selects the
// binary body for pcd and ply; las is always binary.
func WriteToFile(cloud PointCloud, fn string, binary bool) (err error) {
	ext := strings.ToLower(filepath.Ext(fn))
	if ext == ".las" {
		return WriteToLASFile(cloud, fn)
	}
	if ext != ".pcd" && ext != ".ply" {
		return errors.Errorf("do not know how to write file %q", fn)
	}

	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	if ext == ".pcd" {
		pcdType := PCDAscii
		if binary {
			pcdType = PCDBinary
		}
		return ToPCD(cloud, f, pcdType)
	}
	plyFormat := PLYAscii
	if binary {
		plyFormat = PLYBinary
	}
	return ToPLY(cloud, f, plyFormat)
}
