package dataset

import (
	"archive/zip"
	"bytes"
	"context"
	//nolint:gosec
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"go.viam.com/test"

	"go.viam.com/pccrop/logging"
)

func TestDataset(t *testing.T) {
	_, err := NewDataset("", "/my/custom/data_root")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "prefix cannot be empty")

	ds, err := NewDataset("some_prefix", "/my/custom/data_root")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ds.Prefix(), test.ShouldEqual, "some_prefix")
	test.That(t, ds.DataRoot(), test.ShouldEqual, "/my/custom/data_root")
	test.That(t, ds.DownloadDir(), test.ShouldEqual, "/my/custom/data_root/download/some_prefix")
	test.That(t, ds.ExtractDir(), test.ShouldEqual, "/my/custom/data_root/extract/some_prefix")
}

func TestLocateDataRoot(t *testing.T) {
	t.Setenv(DataRootEnv, "/from/env")
	test.That(t, LocateDataRoot(), test.ShouldEqual, "/from/env")
	ds, err := NewDataset("p", "")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ds.DataRoot(), test.ShouldEqual, "/from/env")

	t.Setenv(DataRootEnv, "")
	home, err := os.UserHomeDir()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, LocateDataRoot(), test.ShouldEqual, filepath.Join(home, "pccrop_data"))
}

func makeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		test.That(t, err, test.ShouldBeNil)
		_, err = w.Write([]byte(body))
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, zw.Close(), test.ShouldBeNil)
	return buf.Bytes()
}

func md5Hex(b []byte) string {
	//nolint:gosec
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// fileServer serves body at /good/<name> and fails every other path. It counts the requests
// that reached it.
func fileServer(t *testing.T, name string, body []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/good/"+name {
			http.NotFound(w, r)
			return
		}
		//nolint:errcheck
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestSingleDownloadExtract(t *testing.T) {
	logger := logging.NewTestLogger(t)
	archive := makeZip(t, map[string]string{
		"fragment.ply": "ply\n",
		"cropped.json": "{}",
	})
	srv, hits := fileServer(t, "DemoCropPointCloud.zip", archive)

	root := t.TempDir()
	ds, err := NewDemoCropPointCloud(root)
	test.That(t, err, test.ShouldBeNil)
	// the first mirror is broken, the second one works
	ds.URLs = []string{srv.URL + "/bad/DemoCropPointCloud.zip", srv.URL + "/good/DemoCropPointCloud.zip"}
	ds.MD5 = md5Hex(archive)
	test.That(t, ds.Present(), test.ShouldBeFalse)

	test.That(t, ds.Fetch(context.Background(), logger), test.ShouldBeNil)
	test.That(t, ds.Present(), test.ShouldBeTrue)
	test.That(t, hits.Load(), test.ShouldEqual, 2)

	//nolint:gosec
	body, err := os.ReadFile(ds.CroppedJSONPath())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(body), test.ShouldEqual, "{}")
	_, err = os.Stat(ds.PointCloudPath())
	test.That(t, err, test.ShouldBeNil)
	_, err = os.Stat(filepath.Join(ds.DownloadDir(), "DemoCropPointCloud.zip"))
	test.That(t, err, test.ShouldBeNil)

	// an extracted dataset is never downloaded again
	test.That(t, ds.Fetch(context.Background(), logger), test.ShouldBeNil)
	test.That(t, hits.Load(), test.ShouldEqual, 2)

	// a verified download is reused when only the extract directory is gone
	test.That(t, os.RemoveAll(ds.ExtractDir()), test.ShouldBeNil)
	test.That(t, ds.Fetch(context.Background(), logger), test.ShouldBeNil)
	test.That(t, hits.Load(), test.ShouldEqual, 2)
	test.That(t, ds.Present(), test.ShouldBeTrue)
}

func TestSingleDownloadNoExtract(t *testing.T) {
	logger := logging.NewTestLogger(t)
	body := []byte("ply\nformat ascii 1.0\n")
	srv, _ := fileServer(t, "EaglePointCloud.ply", body)

	ds, err := NewEaglePointCloud(t.TempDir())
	test.That(t, err, test.ShouldBeNil)
	ds.URLs = []string{srv.URL + "/good/EaglePointCloud.ply"}
	ds.MD5 = md5Hex(body)

	test.That(t, ds.Fetch(context.Background(), logger), test.ShouldBeNil)
	test.That(t, ds.Path(), test.ShouldEqual, filepath.Join(ds.ExtractDir(), "EaglePointCloud.ply"))
	//nolint:gosec
	got, err := os.ReadFile(ds.Path())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, body)
}

func TestSingleDownloadChecksumMismatch(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	body := []byte("not the expected content")
	srv, _ := fileServer(t, "fragment.pcd", body)

	ds, err := NewSamplePointCloudPCD(t.TempDir())
	test.That(t, err, test.ShouldBeNil)
	ds.URLs = []string{srv.URL + "/good/fragment.pcd", srv.URL + "/bad/fragment.pcd"}

	err = ds.Fetch(context.Background(), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to download dataset \"SamplePointCloudPCD\"")
	// both mirrors are reported
	test.That(t, err.Error(), test.ShouldContainSubstring, "/good/fragment.pcd")
	test.That(t, err.Error(), test.ShouldContainSubstring, "/bad/fragment.pcd")
	test.That(t, logs.FilterMessage("download failed").Len(), test.ShouldEqual, 2)
	test.That(t, ds.Present(), test.ShouldBeFalse)
}

func TestSingleDownloadCanceled(t *testing.T) {
	ds, err := NewSamplePointCloudPLY(t.TempDir())
	test.That(t, err, test.ShouldBeNil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = ds.Fetch(ctx, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, context.Canceled.Error())
}

func TestNewSingleDownload(t *testing.T) {
	_, err := NewSingleDownload("p", t.TempDir(), nil, "", false)
	test.That(t, err, test.ShouldNotBeNil)

	sd, err := NewSingleDownload("p", "/root", []string{"https://example.com/a/b/file.zip?x=1"}, "ABC", false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sd.FileName(), test.ShouldEqual, "file.zip")
	test.That(t, sd.MD5, test.ShouldEqual, "abc")
	test.That(t, sd.Fetcher(), test.ShouldEqual, sd)

	src, err := withGetterParams("https://example.com/file.zip", "abc")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src, test.ShouldEqual, "https://example.com/file.zip?archive=false&checksum=md5%3Aabc")
}

func TestCatalog(t *testing.T) {
	test.That(t, Names(), test.ShouldResemble, []string{
		"DemoCropPointCloud",
		"DemoICPPointClouds",
		"EaglePointCloud",
		"SamplePointCloudPCD",
		"SamplePointCloudPLY",
	})

	for _, name := range Names() {
		entry, err := Lookup(name, "/data")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, entry.Prefix(), test.ShouldEqual, name)
		test.That(t, entry.ExtractDir(), test.ShouldEqual, "/data/extract/"+name)
		test.That(t, entry.Paths(), test.ShouldNotBeEmpty)
		test.That(t, entry.Fetcher().URLs, test.ShouldNotBeEmpty)
	}

	_, err := Lookup("Bunny", "/data")
	test.That(t, err, test.ShouldNotBeNil)

	crop, err := NewDemoCropPointCloud("/data")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, crop.Paths(), test.ShouldResemble, []string{
		"/data/extract/DemoCropPointCloud/fragment.ply",
		"/data/extract/DemoCropPointCloud/cropped.json",
	})

	icp, err := NewDemoICPPointClouds("/data")
	test.That(t, err, test.ShouldBeNil)
	p, err := icp.Path(2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldEqual, "/data/extract/DemoICPPointClouds/cloud_bin_2.pcd")
	_, err = icp.Path(3)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "between 0 to 2")
	test.That(t, len(icp.Paths()), test.ShouldEqual, 3)
}
