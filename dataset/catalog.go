package dataset

import (
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

const releaseURL = "https://github.com/isl-org/open3d_downloads/releases/download/20220201-data/"

// DemoCropPointCloud is a living room fragment and the polygon volume selecting the chair in it.
type DemoCropPointCloud struct {
	*SingleDownload
}

// NewDemoCropPointCloud returns the crop demo dataset under dataRoot.
func NewDemoCropPointCloud(dataRoot string) (*DemoCropPointCloud, error) {
	sd, err := NewSingleDownload("DemoCropPointCloud", dataRoot,
		[]string{releaseURL + "DemoCropPointCloud.zip"}, "12dbcdddd3f0865d8312929506135e23", false)
	if err != nil {
		return nil, err
	}
	return &DemoCropPointCloud{sd}, nil
}

// PointCloudPath returns the path of the fragment point cloud.
func (d *DemoCropPointCloud) PointCloudPath() string {
	return filepath.Join(d.ExtractDir(), "fragment.ply")
}

// CroppedJSONPath returns the path of the selection polygon volume.
func (d *DemoCropPointCloud) CroppedJSONPath() string {
	return filepath.Join(d.ExtractDir(), "cropped.json")
}

// Paths implements Entry.
func (d *DemoCropPointCloud) Paths() []string {
	return []string{d.PointCloudPath(), d.CroppedJSONPath()}
}

// DemoICPPointClouds holds three overlapping scans of one scene.
type DemoICPPointClouds struct {
	*SingleDownload
}

// NewDemoICPPointClouds returns the registration demo dataset under dataRoot.
func NewDemoICPPointClouds(dataRoot string) (*DemoICPPointClouds, error) {
	sd, err := NewSingleDownload("DemoICPPointClouds", dataRoot,
		[]string{releaseURL + "DemoICPPointClouds.zip"}, "76cf67ab1af942e3c4d5e97b9c2ae58f", false)
	if err != nil {
		return nil, err
	}
	return &DemoICPPointClouds{sd}, nil
}

// Path returns the path of scan index, which must be 0, 1 or 2.
func (d *DemoICPPointClouds) Path(index int) (string, error) {
	if index < 0 || index > 2 {
		return "", errors.Errorf("invalid index, expected index between 0 to 2 but got %d", index)
	}
	return filepath.Join(d.ExtractDir(), "cloud_bin_"+strconv.Itoa(index)+".pcd"), nil
}

// Paths implements Entry.
func (d *DemoICPPointClouds) Paths() []string {
	paths := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		p, _ := d.Path(i)
		paths = append(paths, p)
	}
	return paths
}

// SingleFile is a dataset made of one point cloud file downloaded as is.
type SingleFile struct {
	*SingleDownload
}

// Path returns the path of the point cloud.
func (d *SingleFile) Path() string {
	return filepath.Join(d.ExtractDir(), d.FileName())
}

// Paths implements Entry.
func (d *SingleFile) Paths() []string {
	return []string{d.Path()}
}

func newSingleFile(prefix, dataRoot, fileName, md5sum string) (*SingleFile, error) {
	sd, err := NewSingleDownload(prefix, dataRoot, []string{releaseURL + fileName}, md5sum, true)
	if err != nil {
		return nil, err
	}
	return &SingleFile{sd}, nil
}

// NewSamplePointCloudPCD returns the fragment scan stored as pcd.
func NewSamplePointCloudPCD(dataRoot string) (*SingleFile, error) {
	return newSingleFile("SamplePointCloudPCD", dataRoot, "fragment.pcd", "f3a613fd2bdecd699aabdd858fb29606")
}

// NewSamplePointCloudPLY returns the fragment scan stored as ply.
func NewSamplePointCloudPLY(dataRoot string) (*SingleFile, error) {
	return newSingleFile("SamplePointCloudPLY", dataRoot, "fragment.ply", "831ecffd4d7cbbbe02494c5c351aa6e5")
}

// NewEaglePointCloud returns the colored eagle statue scan.
func NewEaglePointCloud(dataRoot string) (*SingleFile, error) {
	return newSingleFile("EaglePointCloud", dataRoot, "EaglePointCloud.ply", "e4e6c77bc548e7eb7548542a0220ad78")
}

// Entry is a catalog dataset.
type Entry interface {
	Prefix() string
	ExtractDir() string
	Present() bool
	Paths() []string
	Fetcher() *SingleDownload
}

// Fetcher returns the download backing the dataset.
func (sd *SingleDownload) Fetcher() *SingleDownload {
	return sd
}

var catalog = map[string]func(dataRoot string) (Entry, error){
	"DemoCropPointCloud": func(dataRoot string) (Entry, error) {
		return NewDemoCropPointCloud(dataRoot)
	},
	"DemoICPPointClouds": func(dataRoot string) (Entry, error) {
		return NewDemoICPPointClouds(dataRoot)
	},
	"SamplePointCloudPCD": func(dataRoot string) (Entry, error) {
		return NewSamplePointCloudPCD(dataRoot)
	},
	"SamplePointCloudPLY": func(dataRoot string) (Entry, error) {
		return NewSamplePointCloudPLY(dataRoot)
	},
	"EaglePointCloud": func(dataRoot string) (Entry, error) {
		return NewEaglePointCloud(dataRoot)
	},
}

// Names returns the catalog dataset names, sorted.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the catalog dataset called name under dataRoot.
func Lookup(name, dataRoot string) (Entry, error) {
	ctor, ok := catalog[name]
	if !ok {
		return nil, errors.Errorf("unknown dataset %q", name)
	}
	return ctor(dataRoot)
}
