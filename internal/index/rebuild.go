package index

import (
	"context"
	"fmt"

	"github.com/spotify/medusa-go/internal/index/localcache"
	"github.com/spotify/medusa-go/internal/storage"
)

// Rebuild repopulates a local Cache from the authoritative index entries in
// storage. It is the only supported way to refresh the cache; the
// build-index operation runs it. The resulting cache must
// be equivalent to one built by replaying every RecordStart/RecordFinish
// call in order, since both read the same backup_index/ objects.
func Rebuild(ctx context.Context, driver storage.Driver, cache *localcache.Cache) error {
	if err := cache.Clear(); err != nil {
		return fmt.Errorf("rebuild index cache: clear: %w", err)
	}

	names, err := ListNames(ctx, driver)
	if err != nil {
		return fmt.Errorf("rebuild index cache: list names: %w", err)
	}

	for _, name := range names {
		entries, err := ListEntries(ctx, driver, name)
		if err != nil {
			return fmt.Errorf("rebuild index cache: list entries for %s: %w", name, err)
		}
		for _, e := range entries {
			if err := cache.Put(localcache.Entry{
				Name:     e.Name,
				FQDN:     e.FQDN,
				Started:  e.Started,
				Finished: e.Finished,
			}); err != nil {
				return fmt.Errorf("rebuild index cache: put %s/%s: %w", name, e.FQDN, err)
			}
		}
	}

	return nil
}
