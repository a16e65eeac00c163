package cassandra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spotify/medusa-go/internal/types"
)

// NodetoolSession is the default SessionProvider: it derives the token map
// from `nodetool ring` and the schema from `cqlsh -e "DESC SCHEMA"`, since
// the core never needs a live CQL driver connection, only their output.
type NodetoolSession struct {
	NodetoolBin   string
	CqlshBin      string
	CqlshHost     string
	CqlshUser     string
	CqlshPassword string
	Timeout       time.Duration
}

// cqlshAuthArgs returns the -u/-p flags cqlsh needs when CqlshUser is set.
func (p *NodetoolSession) cqlshAuthArgs() []string {
	if p.CqlshUser == "" {
		return nil
	}
	return []string{"-u", p.CqlshUser, "-p", p.CqlshPassword}
}

// Open satisfies SessionProvider.
func (p *NodetoolSession) Open(ctx context.Context) (Session, error) {
	return p, nil
}

// Close is a no-op; there is no persistent connection to release.
func (p *NodetoolSession) Close() error { return nil }

func (p *NodetoolSession) nodetool() string {
	if p.NodetoolBin == "" {
		return "nodetool"
	}
	return p.NodetoolBin
}

func (p *NodetoolSession) cqlsh() string {
	if p.CqlshBin == "" {
		return "cqlsh"
	}
	return p.CqlshBin
}

func (p *NodetoolSession) timeout() time.Duration {
	if p.Timeout == 0 {
		return DefaultTimeout
	}
	return p.Timeout
}

// Schema runs `cqlsh -e "DESC SCHEMA"` and strips the reserved keyspace's
// statements, per types.ReservedKeyspaces.
func (p *NodetoolSession) Schema(ctx context.Context) (string, error) {
	args := append(p.cqlshAuthArgs(), "-e", "DESC SCHEMA")
	if p.CqlshHost != "" {
		args = append([]string{p.CqlshHost}, args...)
	}
	out, err := run(ctx, p.timeout(), p.cqlsh(), args...)
	if err != nil {
		return "", fmt.Errorf("fetch schema: %w", err)
	}
	return filterReservedKeyspaceStatements(out), nil
}

func filterReservedKeyspaceStatements(schema string) string {
	statements := strings.Split(schema, ";\n\n")
	var kept []string
	for _, stmt := range statements {
		trimmed := strings.TrimSpace(stmt)
		if trimmed == "" {
			continue
		}
		skip := false
		for reserved := range types.ReservedKeyspaces {
			if strings.Contains(trimmed, "KEYSPACE "+reserved) || strings.Contains(trimmed, "."+reserved+".") {
				skip = true
				break
			}
		}
		if !skip {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, ";\n\n")
}

// TokenMap runs `nodetool ring` and parses per-host token ownership.
func (p *NodetoolSession) TokenMap(ctx context.Context) (types.TokenMap, error) {
	out, err := run(ctx, p.timeout(), p.nodetool(), "ring")
	if err != nil {
		return nil, fmt.Errorf("fetch ring state: %w", err)
	}
	return ParseRing(out), nil
}

// ParseRing extracts {address -> tokens, is_up} from `nodetool ring`
// output. Each vnode owned by a host appears on its own line; lines are
// ordered Address, Rack, Status, State, Load, Owns, Token (whitespace
// separated, collapsed).
func ParseRing(out string) types.TokenMap {
	tm := types.TokenMap{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 7 {
			continue
		}
		token := fields[len(fields)-1]
		if _, err := strconv.ParseInt(token, 10, 64); err != nil {
			continue
		}
		addr, status := fields[0], fields[2]
		entry, ok := tm[addr]
		if !ok {
			entry = types.TokenMapEntry{IsUp: status == "Up"}
		}
		entry.Tokens = append(entry.Tokens, token)
		tm[addr] = entry
	}
	return tm
}
