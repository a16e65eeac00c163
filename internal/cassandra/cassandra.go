// Package cassandra declares the narrow interfaces the backup and restore
// engines use to talk to a local Cassandra node and its cluster-wide
// state. Per the design notes, invocation of the control binary and CQL
// session acquisition are external collaborators: the core only ever
// consumes a TokenMap and a schema string, never a driver connection.
package cassandra

import (
	"context"

	"github.com/spotify/medusa-go/internal/types"
)

// Snapshotter takes and releases nodetool-style snapshots by tag.
type Snapshotter interface {
	TakeSnapshot(ctx context.Context, tag string) error
	ClearSnapshot(ctx context.Context, tag string) error
}

// StartOptions parametrizes Controller.Start. ExtraArgs carries any JVM
// system property flags the caller has already computed (e.g.
// "-Dcassandra.initial_token=..."); Controller does not interpret them.
type StartOptions struct {
	ExtraArgs []string
}

// Controller starts and stops the local Cassandra process.
type Controller interface {
	Stop(ctx context.Context) error
	Start(ctx context.Context, opts StartOptions) error
}

// Session exposes the two cluster-wide facts the engine needs: the schema
// of every user keyspace, and the current token ownership map.
type Session interface {
	Schema(ctx context.Context) (string, error)
	TokenMap(ctx context.Context) (types.TokenMap, error)
	Close() error
}

// SessionProvider opens a Session against the local node. Implementations
// typically shell out to nodetool/cqlsh or hold a CQL driver connection.
type SessionProvider interface {
	Open(ctx context.Context) (Session, error)
}

// SSTableLoader streams a directory of SSTables for one table into a live
// cluster, as an alternative to restoring by direct directory swap.
type SSTableLoader interface {
	Load(ctx context.Context, keyspace, table, dir string) error
}

// SeedProbe reports whether a CQL session can be opened against host. The
// restore orchestrator polls a set of seeds with this before starting a
// node joining the ring.
type SeedProbe interface {
	Probe(ctx context.Context, host string) error
}
