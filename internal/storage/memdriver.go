package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spotify/medusa-go/internal/merrors"
)

// MemDriver is an in-memory Driver used by unit tests across the cache,
// backup engine, verifier and purge packages so they don't need a real
// bucket or filesystem mount. It implements the same contract as GCSDriver
// and LocalDriver, including HashesMatch-compatible MD5 reporting.
type MemDriver struct {
	mu      sync.Mutex
	objects map[string][]byte
	created map[string]time.Time
}

// NewMemDriver returns an empty in-memory Driver.
func NewMemDriver() *MemDriver {
	return &MemDriver{
		objects: make(map[string][]byte),
		created: make(map[string]time.Time),
	}
}

func (d *MemDriver) List(ctx context.Context, prefix string) ([]Object, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var objects []Object
	for name, data := range d.objects {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		hash, _ := MD5Base64(strings.NewReader(string(data)))
		objects = append(objects, Object{
			Name: name,
			Size: int64(len(data)),
			Hash: hash,
			Extra: ObjectExtra{
				Created:  d.created[name],
				Modified: d.created[name],
			},
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

func (d *MemDriver) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	b, err := d.GetAsBytes(ctx, path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(b))), nil
}

func (d *MemDriver) GetAsBytes(ctx context.Context, path string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.objects[path]
	if !ok {
		return nil, merrors.New("mem.Get", merrors.NotFound, nil)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (d *MemDriver) GetAsString(ctx context.Context, path string) (string, error) {
	b, err := d.GetAsBytes(ctx, path)
	return string(b), err
}

func (d *MemDriver) put(path string, data []byte) Object {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects[path] = data
	if _, ok := d.created[path]; !ok {
		d.created[path] = time.Now()
	}
	hash, _ := MD5Base64(strings.NewReader(string(data)))
	return Object{
		Name: path,
		Size: int64(len(data)),
		Hash: hash,
		Extra: ObjectExtra{
			Created:  d.created[path],
			Modified: time.Now(),
		},
	}
}

func (d *MemDriver) UploadFromString(ctx context.Context, path string, content string) (Object, error) {
	return d.put(path, []byte(content)), nil
}

func (d *MemDriver) UploadFile(ctx context.Context, localPath, destPath string) (Object, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return Object{}, merrors.New("mem.UploadFile", merrors.NotFound, err)
	}
	return d.put(destPath, data), nil
}

func (d *MemDriver) UploadMany(ctx context.Context, srcs []string, destPrefix string) ([]Object, error) {
	return uploadManyWith(ctx, srcs, 0, func(ctx context.Context, localPath string) (Object, error) {
		return d.UploadFile(ctx, localPath, destPath(destPrefix, localPath))
	})
}

func (d *MemDriver) DownloadMany(ctx context.Context, paths []string, destDir string) error {
	for _, p := range paths {
		data, err := d.GetAsBytes(ctx, p)
		if err != nil {
			return err
		}
		local := filepath.Join(destDir, filepath.Base(p))
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(local, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (d *MemDriver) Delete(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objects, path)
	delete(d.created, path)
	return nil
}

func (d *MemDriver) ObjectTime(ctx context.Context, path string) (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.created[path]
	if !ok {
		return time.Time{}, merrors.New("mem.ObjectTime", merrors.NotFound, nil)
	}
	return t, nil
}

func (d *MemDriver) PathPrefix(dataPath string) string { return "" }

// Corrupt truncates the stored object at path by n bytes, for fault-injection tests.
func (d *MemDriver) Corrupt(path string, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data := d.objects[path]
	if len(data) > n {
		d.objects[path] = data[:len(data)-n]
	}
}
