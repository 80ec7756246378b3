package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/pccrop/logging"
	"go.viam.com/pccrop/pointcloud"
	"go.viam.com/pccrop/render"
)

func smallOptions() render.Options {
	opts := render.DefaultOptions()
	opts.Width = 64
	opts.Height = 48
	opts.Margin = 2
	return opts
}

func makeCloud(t *testing.T, n int) pointcloud.PointCloud {
	t.Helper()
	pc := pointcloud.New()
	for i := 0; i < n; i++ {
		d := pointcloud.NewColoredData(color.NRGBA{uint8(10 * i), 0, 0, 255})
		test.That(t, pc.Set(r3.Vector{X: float64(i), Y: float64(i), Z: 0}, d), test.ShouldBeNil)
	}
	return pc
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	//nolint:gosec,noctx
	resp, err := http.Get(url)
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	return resp, body
}

func TestServerRoutes(t *testing.T) {
	logger := logging.NewTestLogger(t)
	srv := NewServer(smallOptions(), logger)
	srv.AddCloud("original", makeCloud(t, 5))
	srv.AddCloud("cropped", makeCloud(t, 2))
	test.That(t, srv.Names(), test.ShouldResemble, []string{"original", "cropped"})

	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	resp, body := get(t, httpSrv.URL+"/clouds")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	var infos []CloudInfo
	test.That(t, json.Unmarshal(body, &infos), test.ShouldBeNil)
	test.That(t, len(infos), test.ShouldEqual, 2)
	test.That(t, infos[0].Name, test.ShouldEqual, "original")
	test.That(t, infos[0].Points, test.ShouldEqual, 5)
	test.That(t, infos[0].Max, test.ShouldResemble, r3.Vector{X: 4, Y: 4, Z: 0})
	test.That(t, infos[1].Points, test.ShouldEqual, 2)

	resp, body = get(t, httpSrv.URL+"/")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, string(body), test.ShouldContainSubstring, `/clouds/cropped/image.png`)

	resp, body = get(t, httpSrv.URL+"/clouds/original/image.png")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, resp.Header.Get("Content-Type"), test.ShouldEqual, "image/png")
	test.That(t, resp.Header.Get("Access-Control-Allow-Origin"), test.ShouldEqual, "")
	img, err := png.Decode(bytes.NewReader(body))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 64)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, 48)

	resp, body = get(t, httpSrv.URL+"/clouds/cropped/cloud.pcd")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	back, err := pointcloud.ReadPCD(bytes.NewReader(body))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Size(), test.ShouldEqual, 2)

	resp, _ = get(t, httpSrv.URL+"/clouds/missing/image.png")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNotFound)
	resp, _ = get(t, httpSrv.URL+"/clouds/missing/cloud.pcd")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNotFound)
}

func TestServerCORS(t *testing.T) {
	srv := NewServer(smallOptions(), logging.NewTestLogger(t))
	srv.AddCloud("a", makeCloud(t, 1))
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, httpSrv.URL+"/clouds", nil)
	test.That(t, err, test.ShouldBeNil)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, resp.Header.Get("Access-Control-Allow-Origin"), test.ShouldEqual, "*")
}

func TestRenderCache(t *testing.T) {
	srv := NewServer(smallOptions(), logging.NewTestLogger(t))
	srv.AddCloud("a", makeCloud(t, 3))
	first, version, err := srv.renderPNG("a")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, version, test.ShouldEqual, 1)
	again, _, err := srv.renderPNG("a")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, &again[0], test.ShouldEqual, &first[0])

	// replacing the cloud invalidates the cached image
	srv.AddCloud("a", makeCloud(t, 4))
	third, version, err := srv.renderPNG("a")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, version, test.ShouldEqual, 2)
	test.That(t, &third[0], test.ShouldNotEqual, &first[0])

	_, _, err = srv.renderPNG("b")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestImageETag(t *testing.T) {
	srv := NewServer(smallOptions(), logging.NewTestLogger(t))
	srv.AddCloud("a", makeCloud(t, 3))
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	resp, _ := get(t, httpSrv.URL+"/clouds/a/image.png")
	etag := resp.Header.Get("ETag")
	test.That(t, etag, test.ShouldContainSubstring, srv.id)

	fetch := func(etag string) int {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, httpSrv.URL+"/clouds/a/image.png", nil)
		test.That(t, err, test.ShouldBeNil)
		req.Header.Set("If-None-Match", etag)
		resp, err := http.DefaultClient.Do(req)
		test.That(t, err, test.ShouldBeNil)
		defer resp.Body.Close()
		return resp.StatusCode
	}
	test.That(t, fetch(etag), test.ShouldEqual, http.StatusNotModified)

	srv.AddCloud("a", makeCloud(t, 5))
	test.That(t, fetch(etag), test.ShouldEqual, http.StatusOK)

	// another server never matches
	test.That(t, NewServer(smallOptions(), logging.NewTestLogger(t)).id, test.ShouldNotEqual, srv.id)
}

func TestAddFileAndReload(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	fn := filepath.Join(dir, "scan.pcd")
	test.That(t, pointcloud.WriteToFile(makeCloud(t, 2), fn, false), test.ShouldBeNil)

	srv := NewServer(smallOptions(), logger)
	test.That(t, srv.AddFile(CloudName(fn), fn), test.ShouldBeNil)
	cloud, ok := srv.Cloud("scan")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cloud.Size(), test.ShouldEqual, 2)

	test.That(t, pointcloud.WriteToFile(makeCloud(t, 6), fn, false), test.ShouldBeNil)
	test.That(t, srv.reload(fn), test.ShouldBeNil)
	cloud, _ = srv.Cloud("scan")
	test.That(t, cloud.Size(), test.ShouldEqual, 6)

	// unknown files are ignored
	test.That(t, srv.reload(filepath.Join(dir, "other.pcd")), test.ShouldBeNil)

	test.That(t, srv.AddFile("missing", filepath.Join(dir, "missing.pcd")), test.ShouldNotBeNil)
}

func TestWatchReloads(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	fn := filepath.Join(dir, "scan.pcd")
	test.That(t, pointcloud.WriteToFile(makeCloud(t, 2), fn, false), test.ShouldBeNil)

	srv := NewServer(smallOptions(), logger)
	srv.reloadDelay = time.Millisecond
	test.That(t, srv.AddFile("scan", fn), test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Watch(ctx)
	}()
	defer func() {
		cancel()
		test.That(t, <-done, test.ShouldBeNil)
	}()

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		// rewrite until the watcher, which starts asynchronously, sees it
		test.That(tb, pointcloud.WriteToFile(makeCloud(t, 7), fn, false), test.ShouldBeNil)
		cloud, _ := srv.Cloud("scan")
		test.That(tb, cloud.Size(), test.ShouldEqual, 7)
	})
}

func TestServeFiles(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	fn := filepath.Join(dir, "chair.ply")
	test.That(t, pointcloud.WriteToFile(makeCloud(t, 3), fn, false), test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- ServeFiles(ctx, "localhost:0", []string{fn}, smallOptions(), logger, func(addr net.Addr) {
			addrCh <- addr
		})
	}()
	addr := <-addrCh
	resp, body := get(t, "http://"+addr.String()+"/clouds")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, string(body), test.ShouldContainSubstring, `"name":"chair"`)

	cancel()
	test.That(t, <-done, test.ShouldBeNil)

	err := ServeFiles(context.Background(), "localhost:0", []string{filepath.Join(dir, "nope.pcd")}, smallOptions(), logger, nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = os.Stat(fn)
	test.That(t, err, test.ShouldBeNil)
}

func TestDisplay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// a canceled context shuts the server down right after it starts
	err := Display(ctx, "localhost:0", logging.NewTestLogger(t), makeCloud(t, 2), makeCloud(t, 1))
	test.That(t, err, test.ShouldBeNil)

	err = Display(context.Background(), "not-an-address", logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCloudName(t *testing.T) {
	test.That(t, CloudName("/a/b/fragment.ply"), test.ShouldEqual, "fragment")
	test.That(t, CloudName("cropped.tar.pcd"), test.ShouldEqual, "cropped.tar")
}
