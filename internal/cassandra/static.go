package cassandra

import (
	"context"
	"fmt"

	"github.com/spotify/medusa-go/internal/merrors"
	"github.com/spotify/medusa-go/internal/types"
)

// StaticSession is a test double returning fixed schema/tokenmap values,
// so backup-engine tests never shell out to nodetool or cqlsh.
type StaticSession struct {
	SchemaText string
	Tokens     types.TokenMap
}

// Open returns the receiver itself.
func (s *StaticSession) Open(ctx context.Context) (Session, error) { return s, nil }

// Schema returns SchemaText.
func (s *StaticSession) Schema(ctx context.Context) (string, error) { return s.SchemaText, nil }

// TokenMap returns Tokens.
func (s *StaticSession) TokenMap(ctx context.Context) (types.TokenMap, error) { return s.Tokens, nil }

// Close is a no-op.
func (s *StaticSession) Close() error { return nil }

// NoopSnapshotter is a test double that records calls without shelling out.
type NoopSnapshotter struct {
	Taken   []string
	Cleared []string
}

// TakeSnapshot records tag in Taken.
func (n *NoopSnapshotter) TakeSnapshot(ctx context.Context, tag string) error {
	n.Taken = append(n.Taken, tag)
	return nil
}

// ClearSnapshot records tag in Cleared.
func (n *NoopSnapshotter) ClearSnapshot(ctx context.Context, tag string) error {
	n.Cleared = append(n.Cleared, tag)
	return nil
}

// NoopController is a test double that records Start/Stop calls.
type NoopController struct {
	Stopped    int
	StartCalls []StartOptions
}

// Stop increments Stopped.
func (n *NoopController) Stop(ctx context.Context) error {
	n.Stopped++
	return nil
}

// Start records opts in StartCalls.
func (n *NoopController) Start(ctx context.Context, opts StartOptions) error {
	n.StartCalls = append(n.StartCalls, opts)
	return nil
}

// StaticSeedProbe reports Reachable hosts as successfully probed and
// everything else as refused, without opening a real connection.
type StaticSeedProbe struct {
	Reachable map[string]bool
	Probed    []string
}

// Probe records host in Probed and succeeds iff Reachable[host].
func (s *StaticSeedProbe) Probe(ctx context.Context, host string) error {
	s.Probed = append(s.Probed, host)
	if s.Reachable[host] {
		return nil
	}
	return merrors.New("cassandra.StaticSeedProbe.Probe", merrors.TransientIO, fmt.Errorf("seed %s refused", host))
}

// RecordingSSTableLoader records Load invocations without shelling out.
type RecordingSSTableLoader struct {
	Loaded []string // "<keyspace>/<table>" entries, in call order
}

// Load records keyspace/table and succeeds unconditionally.
func (r *RecordingSSTableLoader) Load(ctx context.Context, keyspace, table, dir string) error {
	r.Loaded = append(r.Loaded, keyspace+"/"+table)
	return nil
}
