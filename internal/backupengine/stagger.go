package backupengine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spotify/medusa-go/internal/index"
	"github.com/spotify/medusa-go/internal/merrors"
	"github.com/spotify/medusa-go/internal/storage"
	"github.com/spotify/medusa-go/internal/types"
)

// DefaultStaggerPollInterval is how often the staggering predicate is
// re-evaluated while waiting for a budget to expire or the predicate to
// become true.
const DefaultStaggerPollInterval = 60 * time.Second

// tokenOrderKey canonicalizes a node's vnode tokens into the sort key used
// for "token order": the string concatenation of its sorted tokens. This
// resolves the source ambiguity between "token" and "tokens" noted in the
// design notes by always sorting the full token list lexicographically
// before joining, regardless of how many vnodes a node owns.
func tokenOrderKey(entry types.TokenMapEntry) string {
	sorted := append([]string(nil), entry.Tokens...)
	sort.Strings(sorted)
	return strings.Join(sorted, "")
}

// orderedFQDNs returns every fqdn in tm sorted by token order.
func orderedFQDNs(tm types.TokenMap) []string {
	fqdns := tm.Fqdns()
	sort.Slice(fqdns, func(i, j int) bool {
		return tokenOrderKey(tm[fqdns[i]]) < tokenOrderKey(tm[fqdns[j]])
	})
	return fqdns
}

// hasAnyFinishedBackup reports whether fqdn has ever completed a backup,
// using the index's last-writer-wins "latest backup" pointer: it is only
// ever written by RecordFinish, so its presence is sufficient.
func hasAnyFinishedBackup(ctx context.Context, driver storage.Driver, fqdn string) (bool, error) {
	_, ok, err := index.LatestBackupName(ctx, driver, fqdn)
	return ok, err
}

// staggerPredicate reports true when
// this node already has a finished backup, is the lowest-token node, or
// its token-order predecessor has a finished backup.
func staggerPredicate(ctx context.Context, driver storage.Driver, tm types.TokenMap, fqdn string) (bool, error) {
	done, err := hasAnyFinishedBackup(ctx, driver, fqdn)
	if err != nil {
		return false, err
	}
	if done {
		return true, nil
	}

	ordered := orderedFQDNs(tm)
	if len(ordered) == 0 {
		return false, fmt.Errorf("empty tokenmap")
	}
	if ordered[0] == fqdn {
		return true, nil
	}

	idx := -1
	for i, f := range ordered {
		if f == fqdn {
			idx = i
			break
		}
	}
	if idx <= 0 {
		// fqdn absent from its own tokenmap, or already the first entry
		// (handled above): neither satisfies the predicate on its own.
		return false, nil
	}

	predecessor := ordered[idx-1]
	return hasAnyFinishedBackup(ctx, driver, predecessor)
}

// waitForStagger polls staggerPredicate every pollInterval until it
// returns true or budget elapses, in which case it fails with
// StaggerTimeout. budget <= 0 skips waiting entirely.
func waitForStagger(ctx context.Context, driver storage.Driver, tm types.TokenMap, fqdn string, budget, pollInterval time.Duration) error {
	if budget <= 0 {
		return nil
	}
	if pollInterval <= 0 {
		pollInterval = DefaultStaggerPollInterval
	}

	deadline := time.Now().Add(budget)
	for {
		ok, err := staggerPredicate(ctx, driver, tm, fqdn)
		if err != nil {
			return fmt.Errorf("evaluate stagger predicate: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return merrors.New("backupengine.waitForStagger", merrors.StaggerTimeout,
				fmt.Errorf("stagger budget of %s exceeded waiting for %s", budget, fqdn))
		}

		select {
		case <-ctx.Done():
			return merrors.New("backupengine.waitForStagger", merrors.Cancelled, ctx.Err())
		case <-time.After(minDuration(pollInterval, time.Until(deadline))):
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
