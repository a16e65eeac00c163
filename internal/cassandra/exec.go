package cassandra

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/spotify/medusa-go/internal/merrors"
)

// DefaultTimeout bounds any single shelled-out Cassandra control command.
const DefaultTimeout = 5 * time.Minute

func run(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", merrors.New(fmt.Sprintf("exec %s", name), merrors.RemoteExecFailure,
			fmt.Errorf("%w: %s", err, stderr.String()))
	}
	return stdout.String(), nil
}

// NodetoolSnapshotter takes and clears snapshots through the nodetool CLI.
type NodetoolSnapshotter struct {
	Bin     string // defaults to "nodetool"
	Timeout time.Duration
}

// NewNodetoolSnapshotter builds a NodetoolSnapshotter with sane defaults.
func NewNodetoolSnapshotter() *NodetoolSnapshotter {
	return &NodetoolSnapshotter{Bin: "nodetool", Timeout: DefaultTimeout}
}

func (n *NodetoolSnapshotter) bin() string {
	if n.Bin == "" {
		return "nodetool"
	}
	return n.Bin
}

func (n *NodetoolSnapshotter) timeout() time.Duration {
	if n.Timeout == 0 {
		return DefaultTimeout
	}
	return n.Timeout
}

// TakeSnapshot runs `nodetool snapshot -t <tag>`.
func (n *NodetoolSnapshotter) TakeSnapshot(ctx context.Context, tag string) error {
	_, err := run(ctx, n.timeout(), n.bin(), "snapshot", "-t", tag)
	return err
}

// ClearSnapshot runs `nodetool clearsnapshot -t <tag>`.
func (n *NodetoolSnapshotter) ClearSnapshot(ctx context.Context, tag string) error {
	_, err := run(ctx, n.timeout(), n.bin(), "clearsnapshot", "-t", tag)
	return err
}

// ProcessController stops and starts Cassandra through operator-provided
// command lines (e.g. a systemd unit's ExecStart/ExecStop, or a direct
// invocation of the cassandra launcher script). StartOptions.ExtraArgs are
// appended verbatim to StartCommand.
type ProcessController struct {
	StopCommand  []string
	StartCommand []string
	Timeout      time.Duration
}

func (p *ProcessController) timeout() time.Duration {
	if p.Timeout == 0 {
		return DefaultTimeout
	}
	return p.Timeout
}

// Stop runs StopCommand.
func (p *ProcessController) Stop(ctx context.Context) error {
	if len(p.StopCommand) == 0 {
		return merrors.New("cassandra.Stop", merrors.ConfigError, fmt.Errorf("no stop command configured"))
	}
	_, err := run(ctx, p.timeout(), p.StopCommand[0], p.StopCommand[1:]...)
	return err
}

// Start runs StartCommand with opts.ExtraArgs appended.
func (p *ProcessController) Start(ctx context.Context, opts StartOptions) error {
	if len(p.StartCommand) == 0 {
		return merrors.New("cassandra.Start", merrors.ConfigError, fmt.Errorf("no start command configured"))
	}
	args := append(append([]string{}, p.StartCommand[1:]...), opts.ExtraArgs...)
	_, err := run(ctx, p.timeout(), p.StartCommand[0], args...)
	return err
}

// ProcessSSTableLoader streams a downloaded table directory into a live
// cluster through the sstableloader CLI, as an alternative to restoring by
// direct directory swap. sstableloader infers keyspace and table from dir's
// path, so it takes no arguments beyond the target host and the directory.
type ProcessSSTableLoader struct {
	Bin     string // defaults to "sstableloader"
	Host    string // a contact point sstableloader streams through
	Timeout time.Duration
}

// NewProcessSSTableLoader builds a ProcessSSTableLoader targeting host.
func NewProcessSSTableLoader(host string) *ProcessSSTableLoader {
	return &ProcessSSTableLoader{Bin: "sstableloader", Host: host, Timeout: DefaultTimeout}
}

func (p *ProcessSSTableLoader) bin() string {
	if p.Bin == "" {
		return "sstableloader"
	}
	return p.Bin
}

func (p *ProcessSSTableLoader) timeout() time.Duration {
	if p.Timeout == 0 {
		return DefaultTimeout
	}
	return p.Timeout
}

// Load runs `sstableloader -d <host> <dir>`. keyspace and table are unused;
// they are encoded in dir's own path as <keyspace>/<table>.
func (p *ProcessSSTableLoader) Load(ctx context.Context, keyspace, table, dir string) error {
	_, err := run(ctx, p.timeout(), p.bin(), "-d", p.Host, dir)
	return err
}

// CqlshSeedProbe reports a seed reachable when `cqlsh <host> -e "DESC CLUSTER"`
// exits zero, the same probe the restore wait loop uses to tell whether a
// seed has come up enough to accept a joining node.
type CqlshSeedProbe struct {
	Bin      string // defaults to "cqlsh"
	User     string
	Password string
	Timeout  time.Duration
}

func (c *CqlshSeedProbe) bin() string {
	if c.Bin == "" {
		return "cqlsh"
	}
	return c.Bin
}

func (c *CqlshSeedProbe) timeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Probe satisfies SeedProbe.
func (c *CqlshSeedProbe) Probe(ctx context.Context, host string) error {
	args := []string{host}
	if c.User != "" {
		args = append(args, "-u", c.User, "-p", c.Password)
	}
	args = append(args, "-e", "DESC CLUSTER")
	_, err := run(ctx, c.timeout(), c.bin(), args...)
	return err
}
