package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/spotify/medusa-go/internal/merrors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSDriver implements Driver against a single Google Cloud Storage bucket.
// Every worker created by UploadMany's pool calls through the same client;
// the gcs.Client already multiplexes HTTP/2 connections internally, so
// unlike an SSH fan-out there is no separate per-worker connection to own.
type GCSDriver struct {
	client      *gcs.Client
	bucket      string
	prefix      string
	parallelism int
	retry       RetryPolicy
}

// GCSConfig configures a GCSDriver.
type GCSConfig struct {
	Bucket      string
	Prefix      string
	KeyFile     string // path to a service-account JSON key; empty uses ambient credentials
	Parallelism int
}

// NewGCSDriver dials Google Cloud Storage and returns a ready Driver.
func NewGCSDriver(ctx context.Context, cfg GCSConfig) (*GCSDriver, error) {
	opts := []option.ClientOption{}
	if cfg.KeyFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.KeyFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, merrors.New("gcs.NewDriver", merrors.AuthError, err)
	}
	return &GCSDriver{
		client:      client,
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
		parallelism: cfg.Parallelism,
		retry:       DefaultRetryPolicy(),
	}, nil
}

func (d *GCSDriver) fullPath(path string) string {
	if d.prefix == "" {
		return path
	}
	return filepath.ToSlash(filepath.Join(d.prefix, path))
}

func toGCSError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return merrors.New(op, merrors.NotFound, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return merrors.New(op, merrors.AuthError, err)
		case 404:
			return merrors.New(op, merrors.NotFound, err)
		case 408, 429, 500, 502, 503, 504:
			return merrors.New(op, merrors.TransientIO, err)
		}
	}
	return merrors.New(op, merrors.TransientIO, err)
}

func attrsToObject(attrs *gcs.ObjectAttrs) Object {
	return Object{
		Name: attrs.Name,
		Size: attrs.Size,
		Hash: hex.EncodeToString(attrs.MD5),
		Extra: ObjectExtra{
			Created:  attrs.Created,
			Modified: attrs.Updated,
		},
	}
}

func (d *GCSDriver) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	it := d.client.Bucket(d.bucket).Objects(ctx, &gcs.Query{Prefix: d.fullPath(prefix)})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, toGCSError("gcs.List", err)
		}
		objects = append(objects, attrsToObject(attrs))
	}
	return objects, nil
}

func (d *GCSDriver) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	r, err := d.client.Bucket(d.bucket).Object(d.fullPath(path)).NewReader(ctx)
	if err != nil {
		return nil, toGCSError("gcs.Get", err)
	}
	return r, nil
}

func (d *GCSDriver) GetAsBytes(ctx context.Context, path string) ([]byte, error) {
	r, err := d.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (d *GCSDriver) GetAsString(ctx context.Context, path string) (string, error) {
	b, err := d.GetAsBytes(ctx, path)
	return string(b), err
}

func (d *GCSDriver) UploadFromString(ctx context.Context, path string, content string) (Object, error) {
	var obj Object
	err := WithRetry(ctx, d.retry, "gcs.UploadFromString", func(ctx context.Context) error {
		w := d.client.Bucket(d.bucket).Object(d.fullPath(path)).NewWriter(ctx)
		if _, err := io.WriteString(w, content); err != nil {
			_ = w.Close()
			return toGCSError("gcs.UploadFromString", err)
		}
		if err := w.Close(); err != nil {
			return toGCSError("gcs.UploadFromString", err)
		}
		obj = attrsToObject(w.Attrs())
		return nil
	})
	return obj, err
}

func (d *GCSDriver) UploadFile(ctx context.Context, localPath, destPath string) (Object, error) {
	var obj Object
	err := WithRetry(ctx, d.retry, "gcs.UploadFile", func(ctx context.Context) error {
		f, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()

		w := d.client.Bucket(d.bucket).Object(d.fullPath(destPath)).NewWriter(ctx)
		if _, err := io.Copy(w, f); err != nil {
			_ = w.Close()
			return toGCSError("gcs.UploadFile", err)
		}
		if err := w.Close(); err != nil {
			return toGCSError("gcs.UploadFile", err)
		}
		obj = attrsToObject(w.Attrs())
		return nil
	})
	return obj, err
}

func (d *GCSDriver) UploadMany(ctx context.Context, srcs []string, destPrefix string) ([]Object, error) {
	return uploadManyWith(ctx, srcs, d.parallelism, func(ctx context.Context, localPath string) (Object, error) {
		return d.UploadFile(ctx, localPath, destPath(destPrefix, localPath))
	})
}

func (d *GCSDriver) DownloadMany(ctx context.Context, paths []string, destDir string) error {
	_, err := uploadManyWith(ctx, paths, d.parallelism, func(ctx context.Context, path string) (Object, error) {
		r, err := d.Get(ctx, path)
		if err != nil {
			return Object{}, err
		}
		defer r.Close()

		localPath := filepath.Join(destDir, filepath.Base(path))
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return Object{}, err
		}
		f, err := os.Create(localPath)
		if err != nil {
			return Object{}, err
		}
		defer f.Close()

		if _, err := io.Copy(f, r); err != nil {
			return Object{}, toGCSError("gcs.DownloadMany", err)
		}
		return Object{Name: localPath}, nil
	})
	return err
}

func (d *GCSDriver) Delete(ctx context.Context, path string) error {
	err := d.client.Bucket(d.bucket).Object(d.fullPath(path)).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return toGCSError("gcs.Delete", err)
	}
	return nil
}

func (d *GCSDriver) ObjectTime(ctx context.Context, path string) (time.Time, error) {
	attrs, err := d.client.Bucket(d.bucket).Object(d.fullPath(path)).Attrs(ctx)
	if err != nil {
		return time.Time{}, toGCSError("gcs.ObjectTime", err)
	}
	return attrs.Created, nil
}

// PathPrefix is empty for cloud backends: manifest-relative paths are
// already the full object name once the bucket/prefix is applied.
func (d *GCSDriver) PathPrefix(dataPath string) string { return "" }

// Close releases the underlying HTTP client resources.
func (d *GCSDriver) Close() error { return d.client.Close() }
