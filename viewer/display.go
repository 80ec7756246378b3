package viewer

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"go.viam.com/utils"

	"go.viam.com/pccrop/logging"
	"go.viam.com/pccrop/pointcloud"
	"go.viam.com/pccrop/render"
)

// Display publishes the clouds as cloud_0, cloud_1, ... and serves them on addr until ctx is
// done.
func Display(ctx context.Context, addr string, logger logging.Logger, clouds ...pointcloud.PointCloud) error {
	srv := NewServer(render.DefaultOptions(), logger)
	for i, cloud := range clouds {
		srv.AddCloud(fmt.Sprintf("cloud_%d", i), cloud)
	}
	return srv.Serve(ctx, addr, nil)
}

// ServeFiles publishes each file under its base name without extension and serves them on
// addr until ctx is done, reloading files as they change.
func ServeFiles(
	ctx context.Context,
	addr string,
	files []string,
	options render.Options,
	logger logging.Logger,
	ready func(addr net.Addr),
) error {
	srv := NewServer(options, logger)
	for _, fn := range files {
		if err := srv.AddFile(CloudName(fn), fn); err != nil {
			return err
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchDone := make(chan struct{})
	utils.ManagedGo(func() {
		if err := srv.Watch(watchCtx); err != nil {
			logger.Warnw("not watching point cloud files", "error", err)
		}
	}, func() {
		close(watchDone)
	})
	defer func() {
		cancel()
		<-watchDone
	}()
	return srv.Serve(ctx, addr, ready)
}

// CloudName returns the name a file is published under.
func CloudName(fn string) string {
	base := filepath.Base(fn)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
