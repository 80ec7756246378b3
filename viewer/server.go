// Package viewer serves rendered point clouds over HTTP.
//
// Each cloud is published under a name:
//
//	GET /                         index page showing every cloud
//	GET /clouds                   JSON summary of every cloud
//	GET /clouds/:name/image.png   the rendered cloud
//	GET /clouds/:name/cloud.pcd   the cloud as a compressed pcd file
//
// Clouds added from files are reloaded when the file changes on disk. Images carry an ETag
// unique to the server instance and cloud version.
package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"image/png"
	"net"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/samber/lo"
	"go.viam.com/utils"
	"goji.io"
	"goji.io/pat"

	"go.viam.com/pccrop/logging"
	"go.viam.com/pccrop/pointcloud"
	"go.viam.com/pccrop/render"
)

type entry struct {
	name    string
	path    string
	cloud   pointcloud.PointCloud
	version int
	// png caches the rendering of version
	png        []byte
	pngVersion int
}

// defaultReloadDelay is how long a file must stay unchanged before it is reloaded. Writers often
// produce several events per save.
const defaultReloadDelay = 100 * time.Millisecond

// Server publishes point clouds over HTTP.
type Server struct {
	logger      logging.Logger
	options     render.Options
	id          string
	reloadDelay time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	watched map[string]string // file path -> cloud name
}

// NewServer returns a server rendering clouds with the given options.
func NewServer(options render.Options, logger logging.Logger) *Server {
	return &Server{
		logger:      logger,
		options:     options,
		id:          uuid.NewString(),
		reloadDelay: defaultReloadDelay,
		entries:     map[string]*entry{},
		watched:     map[string]string{},
	}
}

// AddCloud publishes the cloud under name, replacing any cloud with that name.
func (s *Server) AddCloud(name string, cloud pointcloud.PointCloud) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(name, "", cloud)
}

func (s *Server) setLocked(name, path string, cloud pointcloud.PointCloud) {
	e, ok := s.entries[name]
	if !ok {
		e = &entry{name: name}
		s.entries[name] = e
		s.order = append(s.order, name)
	}
	e.path = path
	e.cloud = cloud
	e.version++
}

// AddFile reads the cloud at path and publishes it under name. Watch reloads it on change.
func (s *Server) AddFile(name, path string) error {
	path = filepath.Clean(path)
	cloud, err := pointcloud.NewFromFile(path, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(name, path, cloud)
	s.watched[path] = name
	return nil
}

// Names returns the published names in the order they were added.
func (s *Server) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Cloud returns the cloud published under name.
func (s *Server) Cloud(name string) (pointcloud.PointCloud, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, false
	}
	return e.cloud, true
}

func (s *Server) reload(path string) error {
	s.mu.Lock()
	name, ok := s.watched[path]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	cloud, err := pointcloud.NewFromFile(path, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(name, path, cloud)
	s.logger.Infow("reloaded point cloud", "name", name, "file", path, "points", cloud.Size())
	return nil
}

// Watch reloads file backed clouds once their file stops changing, until ctx is done. The
// directories holding the files are watched so editors replacing files are seen too.
func (s *Server) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(watcher.Close)

	s.mu.Lock()
	dirs := lo.Uniq(lo.Map(lo.Keys(s.watched), func(path string, _ int) string {
		return filepath.Dir(path)
	}))
	s.mu.Unlock()
	sort.Strings(dirs)
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return errors.Wrapf(err, "failed to watch %q", dir)
		}
	}

	// debounced reloads may fire after Watch returns; they are dropped once closed is set
	var (
		pendingMu sync.Mutex
		closed    bool
		pending   sync.WaitGroup
	)
	defer func() {
		pendingMu.Lock()
		closed = true
		pendingMu.Unlock()
		pending.Wait()
	}()
	reloadLater := func(path string) func() {
		return func() {
			pendingMu.Lock()
			if closed {
				pendingMu.Unlock()
				return
			}
			pending.Add(1)
			pendingMu.Unlock()
			defer pending.Done()
			if err := s.reload(path); err != nil {
				// partially written files fail to parse; the next write retries
				s.logger.Debugw("failed to reload point cloud", "file", path, "error", err)
			}
		}
	}
	debouncers := map[string]func(func()){}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			s.mu.Lock()
			_, isWatched := s.watched[event.Name]
			s.mu.Unlock()
			if !isWatched {
				continue
			}
			debounced, ok := debouncers[event.Name]
			if !ok {
				debounced = debounce.New(s.reloadDelay)
				debouncers[event.Name] = debounced
			}
			debounced(reloadLater(event.Name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warnw("file watcher error", "error", err)
		}
	}
}

// Handler returns the HTTP handler serving the clouds.
func (s *Server) Handler() http.Handler {
	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/"), s.handleIndex)
	mux.HandleFunc(pat.Get("/clouds"), s.handleList)
	mux.HandleFunc(pat.Get("/clouds/:name/image.png"), s.handleImage)
	mux.HandleFunc(pat.Get("/clouds/:name/cloud.pcd"), s.handlePCD)
	return cors.AllowAll().Handler(mux)
}

// CloudInfo summarizes a published cloud.
type CloudInfo struct {
	Name    string    `json:"name"`
	File    string    `json:"file,omitempty"`
	Points  int       `json:"points"`
	Version int       `json:"version"`
	Min     r3.Vector `json:"min"`
	Max     r3.Vector `json:"max"`
}

func (s *Server) infos() []CloudInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.order, func(name string, _ int) CloudInfo {
		e := s.entries[name]
		lower, upper := pointcloud.BoundingBox(e.cloud)
		return CloudInfo{Name: name, File: e.path, Points: e.cloud.Size(), Version: e.version, Min: lower, Max: upper}
	})
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>pccrop viewer</title></head>
<body>
{{range .}}<figure>
<img src="/clouds/{{.Name}}/image.png?v={{.Version}}" alt="{{.Name}}">
<figcaption>{{.Name}} ({{.Points}} points) <a href="/clouds/{{.Name}}/cloud.pcd">pcd</a></figcaption>
</figure>
{{end}}</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, s.infos()); err != nil {
		s.logger.Debugw("failed to write index", "error", err)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.infos()); err != nil {
		s.logger.Debugw("failed to write cloud list", "error", err)
	}
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	name := pat.Param(r, "name")
	body, version, err := s.renderPNG(name)
	if err != nil {
		writeError(w, err)
		return
	}
	etag := `"` + s.id + "-" + strconv.Itoa(version) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	//nolint:errcheck
	w.Write(body)
}

func (s *Server) handlePCD(w http.ResponseWriter, r *http.Request) {
	name := pat.Param(r, "name")
	cloud, ok := s.Cloud(name)
	if !ok {
		writeError(w, errNotFound(name))
		return
	}
	var buf bytes.Buffer
	if err := pointcloud.ToPCD(cloud, &buf, pointcloud.PCDCompressed); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.pcd"`)
	//nolint:errcheck
	w.Write(buf.Bytes())
}

type notFoundError string

func (e notFoundError) Error() string {
	return "no point cloud named " + string(e)
}

func errNotFound(name string) error {
	return notFoundError(name)
}

func writeError(w http.ResponseWriter, err error) {
	var nf notFoundError
	if errors.As(err, &nf) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// renderPNG returns the png of the named cloud and the cloud version it shows, rendering it only
// when it changed.
func (s *Server) renderPNG(name string) ([]byte, int, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return nil, 0, errNotFound(name)
	}
	if e.png != nil && e.pngVersion == e.version {
		body, version := e.png, e.pngVersion
		s.mu.Unlock()
		return body, version, nil
	}
	cloud, version := e.cloud, e.version
	s.mu.Unlock()

	opts := s.options
	if opts.Label == "" {
		opts.Label = name
	}
	img, err := render.Render([]pointcloud.PointCloud{cloud}, opts)
	if err != nil {
		return nil, 0, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.version == version {
		e.png = buf.Bytes()
		e.pngVersion = version
	}
	return buf.Bytes(), version, nil
}

// Serve listens on addr and serves until ctx is done. ready, if not nil, receives the bound
// address once listening.
func (s *Server) Serve(ctx context.Context, addr string, ready func(addr net.Addr)) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infow("serving point clouds", "url", "http://"+listener.Addr().String())
	if ready != nil {
		ready(listener.Addr())
	}

	serveErr := make(chan error, 1)
	utils.PanicCapturingGo(func() {
		serveErr <- httpServer.Serve(listener)
	})
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
