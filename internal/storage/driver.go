// Package storage abstracts the object store backing the backup catalog: a
// narrow interface with one implementation per backend (Google Cloud
// Storage, local filesystem), plus the MD5 convention and bounded-parallel
// upload helper shared by every backend.
package storage

import (
	"context"
	"io"
	"time"
)

// Object describes a single stored object as reported by the backend.
type Object struct {
	Name string
	Size int64
	// Hash is the backend-native content digest. GCS backends report hex
	// MD5; the local backend reports base64 to match the manifest convention.
	Hash  string
	Extra ObjectExtra
}

// ObjectExtra carries the backend's object timestamps.
type ObjectExtra struct {
	Created  time.Time
	Modified time.Time
}

// ManifestObject is the subset of Object recorded in manifest.json. It is
// declared here so this package does not import internal/types; callers
// convert at the boundary (see internal/nodebackup for the helper).
type ManifestObject struct {
	Path string
	Size int64
	MD5  string
}

// Driver is the capability set every storage backend exposes. Implementations
// must be safe for concurrent use by multiple goroutines.
type Driver interface {
	// List returns every object whose name starts with prefix. Order is
	// unspecified; callers sort if order matters.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Get opens a reader for the object at path.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// GetAsString reads the whole object at path as a UTF-8 string.
	GetAsString(ctx context.Context, path string) (string, error)

	// GetAsBytes reads the whole object at path.
	GetAsBytes(ctx context.Context, path string) ([]byte, error)

	// UploadFromString writes content to path, returning the resulting object.
	UploadFromString(ctx context.Context, path string, content string) (Object, error)

	// UploadFile uploads the local file at localPath to destPath.
	UploadFile(ctx context.Context, localPath, destPath string) (Object, error)

	// UploadMany uploads every local path in srcs into destPrefix (keeping
	// each file's basename), with a bounded worker pool. The returned slice
	// is unordered relative to srcs; treat it as a set.
	UploadMany(ctx context.Context, srcs []string, destPrefix string) ([]Object, error)

	// DownloadMany downloads every object path in paths into destDir,
	// preserving each object's basename.
	DownloadMany(ctx context.Context, paths []string, destDir string) error

	// Delete removes the object at path.
	Delete(ctx context.Context, path string) error

	// ObjectTime returns the object's creation time, used to anchor a
	// NodeBackup's started/finished timestamps.
	ObjectTime(ctx context.Context, path string) (time.Time, error)

	// PathPrefix returns the backend-specific prefix (empty for cloud
	// backends, a filesystem mount root for the local backend) used to turn
	// a manifest-relative path into an absolute one.
	PathPrefix(dataPath string) string
}

// DefaultUploadParallelism is the default bounded worker-pool size for UploadMany.
const DefaultUploadParallelism = 5

// DefaultRetryAttempts is the default number of local retries for TransientIO failures.
const DefaultRetryAttempts = 5
