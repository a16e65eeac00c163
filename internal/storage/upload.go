package storage

import (
	"context"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// uploadManyWith runs putOne over every src concurrently, bounded by
// parallelism, and collects the resulting Objects. Every backend's
// UploadMany delegates here so the bounded-pool behavior (spec: default
// parallelism 5, caller blocks on drain, one failure fails the whole call)
// is implemented exactly once.
func uploadManyWith(ctx context.Context, srcs []string, parallelism int, putOne func(ctx context.Context, localPath string) (Object, error)) ([]Object, error) {
	if parallelism <= 0 {
		parallelism = DefaultUploadParallelism
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	results := make([]Object, len(srcs))
	for i, src := range srcs {
		i, src := i, src
		g.Go(func() error {
			obj, err := putOne(gctx, src)
			if err != nil {
				return err
			}
			results[i] = obj
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// destPath joins a destination prefix with a local file's basename, the way
// every backend lays out uploaded SSTables under <fqdn>/<name>/data/<ks>/<table>/.
func destPath(destPrefix, localPath string) string {
	return filepath.ToSlash(filepath.Join(destPrefix, filepath.Base(localPath)))
}
