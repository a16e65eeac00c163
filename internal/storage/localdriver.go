package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spotify/medusa-go/internal/merrors"
)

// LocalDriver implements Driver against a directory on the local
// filesystem. It exists for single-box testing and for on-prem deployments
// that mount a shared volume in place of a cloud bucket.
type LocalDriver struct {
	root        string
	parallelism int
}

// NewLocalDriver returns a Driver rooted at root, creating it if absent.
func NewLocalDriver(root string, parallelism int) (*LocalDriver, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, merrors.New("local.NewDriver", merrors.ConfigError, err)
	}
	return &LocalDriver{root: root, parallelism: parallelism}, nil
}

func (d *LocalDriver) abs(path string) string {
	return filepath.Join(d.root, filepath.FromSlash(path))
}

func toLocalError(op string, err error) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return merrors.New(op, merrors.NotFound, err)
	}
	if os.IsPermission(err) {
		return merrors.New(op, merrors.AuthError, err)
	}
	return merrors.New(op, merrors.TransientIO, err)
}

func (d *LocalDriver) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	absPrefix := d.abs(prefix)
	walkRoot := absPrefix
	if fi, err := os.Stat(walkRoot); err != nil || !fi.IsDir() {
		// prefix is not itself a directory; walk its parent and filter by
		// name prefix, matching the "starts with" contract.
		walkRoot = filepath.Dir(walkRoot)
	}

	err := filepath.Walk(walkRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasPrefix(p, absPrefix) {
			return nil
		}
		rel, relErr := filepath.Rel(d.root, p)
		if relErr != nil {
			return relErr
		}
		relSlash := filepath.ToSlash(rel)
		h, hashErr := d.hashOf(p)
		if hashErr != nil {
			return hashErr
		}
		objects = append(objects, Object{
			Name: relSlash,
			Size: info.Size(),
			Hash: h,
			Extra: ObjectExtra{
				Created:  info.ModTime(),
				Modified: info.ModTime(),
			},
		})
		return nil
	})
	if err != nil {
		return nil, toLocalError("local.List", err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

func (d *LocalDriver) hashOf(absPath string) (string, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return MD5Base64(f)
}

func (d *LocalDriver) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(d.abs(path))
	if err != nil {
		return nil, toLocalError("local.Get", err)
	}
	return f, nil
}

func (d *LocalDriver) GetAsBytes(ctx context.Context, path string) ([]byte, error) {
	b, err := os.ReadFile(d.abs(path))
	if err != nil {
		return nil, toLocalError("local.GetAsBytes", err)
	}
	return b, nil
}

func (d *LocalDriver) GetAsString(ctx context.Context, path string) (string, error) {
	b, err := d.GetAsBytes(ctx, path)
	return string(b), err
}

func (d *LocalDriver) UploadFromString(ctx context.Context, path string, content string) (Object, error) {
	abs := d.abs(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Object{}, toLocalError("local.UploadFromString", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return Object{}, toLocalError("local.UploadFromString", err)
	}
	return d.statObject(path)
}

func (d *LocalDriver) UploadFile(ctx context.Context, localPath, destPath string) (Object, error) {
	abs := d.abs(destPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Object{}, toLocalError("local.UploadFile", err)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return Object{}, toLocalError("local.UploadFile", err)
	}
	defer src.Close()

	dst, err := os.Create(abs)
	if err != nil {
		return Object{}, toLocalError("local.UploadFile", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return Object{}, toLocalError("local.UploadFile", err)
	}
	return d.statObject(destPath)
}

func (d *LocalDriver) statObject(path string) (Object, error) {
	abs := d.abs(path)
	info, err := os.Stat(abs)
	if err != nil {
		return Object{}, toLocalError("local.stat", err)
	}
	h, err := d.hashOf(abs)
	if err != nil {
		return Object{}, toLocalError("local.stat", err)
	}
	return Object{
		Name: filepath.ToSlash(path),
		Size: info.Size(),
		Hash: h,
		Extra: ObjectExtra{
			Created:  info.ModTime(),
			Modified: info.ModTime(),
		},
	}, nil
}

func (d *LocalDriver) UploadMany(ctx context.Context, srcs []string, destPrefix string) ([]Object, error) {
	return uploadManyWith(ctx, srcs, d.parallelism, func(ctx context.Context, localPath string) (Object, error) {
		return d.UploadFile(ctx, localPath, destPath(destPrefix, localPath))
	})
}

func (d *LocalDriver) DownloadMany(ctx context.Context, paths []string, destDir string) error {
	_, err := uploadManyWith(ctx, paths, d.parallelism, func(ctx context.Context, path string) (Object, error) {
		dest := filepath.Join(destDir, filepath.Base(path))
		return Object{}, copyFile(d.abs(path), dest)
	})
	return err
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return toLocalError("local.DownloadMany", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return toLocalError("local.DownloadMany", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return toLocalError("local.DownloadMany", err)
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return toLocalError("local.DownloadMany", err)
}

func (d *LocalDriver) Delete(ctx context.Context, path string) error {
	err := os.Remove(d.abs(path))
	if err != nil && !os.IsNotExist(err) {
		return toLocalError("local.Delete", err)
	}
	return nil
}

func (d *LocalDriver) ObjectTime(ctx context.Context, path string) (time.Time, error) {
	info, err := os.Stat(d.abs(path))
	if err != nil {
		return time.Time{}, toLocalError("local.ObjectTime", err)
	}
	return info.ModTime(), nil
}

// PathPrefix returns the filesystem root backing this driver, the local
// analogue of a cloud backend's (empty) bucket-relative prefix.
func (d *LocalDriver) PathPrefix(dataPath string) string { return d.root }
