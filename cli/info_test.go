package cli

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.viam.com/test"

	"go.viam.com/pccrop/logging"
	"go.viam.com/pccrop/pointcloud"
)

func TestSummarize(t *testing.T) {
	dir := t.TempDir()
	logger := logging.NewTestLogger(t)
	plyPath, _ := writeScene(t, dir, "scene.ply")
	info, err := os.Stat(plyPath)
	test.That(t, err, test.ShouldBeNil)

	got, err := summarize(plyPath, logger)
	test.That(t, err, test.ShouldBeNil)
	want := cloudStats{
		File:       plyPath,
		Bytes:      info.Size(),
		Points:     10,
		Attributes: []string{"color"},
		Min:        r3.Vector{X: 0, Y: 1, Z: 0.5},
		Max:        r3.Vector{X: 9, Y: 1, Z: 0.5},
		Mean:       r3.Vector{X: 4.5, Y: 1, Z: 0.5},
		StdDev:     r3.Vector{X: math.Sqrt(8.25)},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("summarize mismatch (-want +got):\n%s", diff)
	}

	empty := filepath.Join(dir, "empty.pcd")
	test.That(t, pointcloud.WriteToFile(pointcloud.New(), empty, false), test.ShouldBeNil)
	got, err = summarize(empty, logger)
	test.That(t, err, test.ShouldBeNil)
	if diff := cmp.Diff(cloudStats{File: empty, Bytes: got.Bytes}, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("empty summary mismatch (-want +got):\n%s", diff)
	}
	test.That(t, got.Bytes, test.ShouldBeGreaterThan, 0)
}
