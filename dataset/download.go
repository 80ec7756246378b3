package dataset

import (
	"context"
	//nolint:gosec
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/pccrop/logging"
	rutils "go.viam.com/pccrop/utils"
)

// SingleDownload is a dataset fetched from one file, available from any of its mirrors.
type SingleDownload struct {
	*Dataset

	// URLs are tried in order until one downloads with the expected checksum.
	URLs []string
	// MD5 is the hex encoded checksum of the downloaded file.
	MD5 string
	// NoExtract copies the downloaded file into the extract directory instead of unzipping it.
	NoExtract bool
	// Progress, if set, observes download progress.
	Progress getter.ProgressTracker
}

// NewSingleDownload returns a single file dataset. Nothing is fetched until Fetch is called.
func NewSingleDownload(prefix, dataRoot string, urls []string, md5sum string, noExtract bool) (*SingleDownload, error) {
	ds, err := NewDataset(prefix, dataRoot)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, errors.Errorf("dataset %q has no download urls", prefix)
	}
	return &SingleDownload{Dataset: ds, URLs: urls, MD5: strings.ToLower(md5sum), NoExtract: noExtract}, nil
}

// FileName returns the name of the downloaded file, taken from the first mirror.
func (sd *SingleDownload) FileName() string {
	u, err := url.Parse(sd.URLs[0])
	if err != nil {
		return path.Base(sd.URLs[0])
	}
	return path.Base(u.Path)
}

// Present reports whether the dataset is already extracted.
func (sd *SingleDownload) Present() bool {
	return rutils.DirExists(sd.ExtractDir())
}

// Fetch makes the dataset available in its extract directory. An existing extract directory is
// used as is. Otherwise the file is downloaded (unless a copy with the right checksum is
// already in the download directory) and then extracted or copied.
func (sd *SingleDownload) Fetch(ctx context.Context, logger logging.Logger) error {
	if sd.Present() {
		logger.Debugw("dataset already extracted", "dataset", sd.Prefix(), "dir", sd.ExtractDir())
		return nil
	}

	downloaded, err := sd.download(ctx, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(sd.ExtractDir()), 0o750); err != nil {
		return err
	}
	// stage next to the final directory so a failed extraction never looks complete
	staging, err := os.MkdirTemp(filepath.Dir(sd.ExtractDir()), "."+sd.Prefix()+"-")
	if err != nil {
		return err
	}
	defer func() {
		utils.UncheckedError(os.RemoveAll(staging))
	}()

	if sd.NoExtract {
		if err := rutils.CopyFile(downloaded, filepath.Join(staging, sd.FileName())); err != nil {
			return errors.Wrapf(err, "failed to copy %q", downloaded)
		}
	} else {
		if err := extractZip(downloaded, staging); err != nil {
			return errors.Wrapf(err, "failed to extract %q", downloaded)
		}
	}
	if err := os.Rename(staging, sd.ExtractDir()); err != nil {
		return err
	}
	logger.Infow("dataset ready", "dataset", sd.Prefix(), "dir", sd.ExtractDir())
	return nil
}

// download returns the path of a verified download, trying each mirror in turn.
func (sd *SingleDownload) download(ctx context.Context, logger logging.Logger) (string, error) {
	if err := os.MkdirAll(sd.DownloadDir(), 0o750); err != nil {
		return "", err
	}
	dst := filepath.Join(sd.DownloadDir(), sd.FileName())

	if sum, err := md5File(dst); err == nil && sum == sd.MD5 {
		logger.Debugw("using previously downloaded file", "file", dst)
		return dst, nil
	}

	var errs error
	for _, mirror := range sd.URLs {
		if err := ctx.Err(); err != nil {
			return "", multierr.Combine(errs, err)
		}
		logger.Infow("downloading dataset", "dataset", sd.Prefix(), "url", mirror)
		err := sd.getFile(ctx, mirror, dst)
		if err == nil {
			return dst, nil
		}
		logger.Warnw("download failed", "url", mirror, "error", err)
		errs = multierr.Combine(errs, errors.Wrapf(err, "mirror %q", mirror))
		utils.UncheckedError(removeIfExists(dst))
	}
	return "", errors.Wrapf(errs, "failed to download dataset %q", sd.Prefix())
}

func (sd *SingleDownload) getFile(ctx context.Context, mirror, dst string) error {
	src, err := withGetterParams(mirror, sd.MD5)
	if err != nil {
		return err
	}
	client := &getter.Client{
		Ctx:              ctx,
		Src:              src,
		Dst:              dst,
		Mode:             getter.ClientModeFile,
		ProgressListener: sd.Progress,
	}
	return client.Get()
}

// withGetterParams disables go-getter's own unpacking and asks it to verify the checksum.
func withGetterParams(raw, md5sum string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrapf(err, "invalid url %q", raw)
	}
	q := u.Query()
	q.Set("archive", "false")
	if md5sum != "" {
		q.Set("checksum", "md5:"+md5sum)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func extractZip(archive, dst string) error {
	return new(getter.ZipDecompressor).Decompress(dst, archive, true, 0)
}

func md5File(fn string) (string, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return "", err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	//nolint:gosec
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func removeIfExists(fn string) error {
	if err := os.Remove(fn); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
