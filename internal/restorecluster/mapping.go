// Package restorecluster plans and executes a cluster-wide restore: mapping
// backup hosts onto live targets, then driving a stop-all / restore-seeds /
// restore-others pipeline over one long-lived SSH session per target.
package restorecluster

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spotify/medusa-go/internal/merrors"
	"github.com/spotify/medusa-go/internal/types"
)

// HostMapping pairs one backed-up node with the live host it restores onto.
type HostMapping struct {
	SourceFQDN string
	TargetHost string
	Seed       bool
	// Tokens holds the tokens column of an out-of-place CSV plan; nil for an
	// in-place plan. It is not passed on to the node restore, which takes
	// its tokens from the backup's own tokenmap.
	Tokens []string
}

func tokenKey(tokens []string) string {
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// PlanInPlace maps each backup host onto the live host that owns the same
// set of tokens, verifying the live
// cluster's current topology still matches the one the backup was taken
// against: every live node must be up, both token maps must have the same
// cardinality, and the two key sets (by token ownership) must be identical.
func PlanInPlace(backupTM, liveTM types.TokenMap) ([]HostMapping, error) {
	for fqdn, entry := range liveTM {
		if !entry.IsUp {
			return nil, merrors.New("restorecluster.PlanInPlace", merrors.TopologyMismatch,
				fmt.Errorf("live node %s is not up", fqdn))
		}
	}
	if len(backupTM) != len(liveTM) {
		return nil, merrors.New("restorecluster.PlanInPlace", merrors.TopologyMismatch,
			fmt.Errorf("backup has %d nodes, live cluster has %d", len(backupTM), len(liveTM)))
	}

	byTokensBackup := make(map[string]string, len(backupTM))
	for fqdn, entry := range backupTM {
		byTokensBackup[tokenKey(entry.Tokens)] = fqdn
	}
	byTokensLive := make(map[string]string, len(liveTM))
	for fqdn, entry := range liveTM {
		byTokensLive[tokenKey(entry.Tokens)] = fqdn
	}

	if diff := symmetricDifference(byTokensBackup, byTokensLive); len(diff) > 0 {
		sort.Strings(diff)
		return nil, merrors.New("restorecluster.PlanInPlace", merrors.TopologyMismatch,
			fmt.Errorf("token ownership differs between backup and live cluster: %s", strings.Join(diff, ", ")))
	}

	mappings := make([]HostMapping, 0, len(byTokensBackup))
	for tokens, source := range byTokensBackup {
		mappings = append(mappings, HostMapping{SourceFQDN: source, TargetHost: byTokensLive[tokens]})
	}
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].SourceFQDN < mappings[j].SourceFQDN })
	return mappings, nil
}

func symmetricDifference(a, b map[string]string) []string {
	var diff []string
	for k := range a {
		if _, ok := b[k]; !ok {
			diff = append(diff, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			diff = append(diff, k)
		}
	}
	return diff
}

// ParseCSVPlan reads an out-of-place mapping file: one row per line,
// fields `<tokens>,<seed_bool>,<target_host>,<source_host>` joined by sep
// (tokens themselves are comma-separated, hence a configurable separator —
// default ';' — to avoid ambiguity with the tokens field). "True" (exact
// case) sets the seed flag; anything else leaves it false.
func ParseCSVPlan(r io.Reader, sep rune) ([]HostMapping, error) {
	if sep == 0 {
		sep = ';'
	}
	scanner := bufio.NewScanner(r)
	var mappings []HostMapping
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, string(sep))
		if len(fields) != 4 {
			return nil, merrors.New("restorecluster.ParseCSVPlan", merrors.ConfigError,
				fmt.Errorf("line %d: expected 4 fields, got %d", lineNo, len(fields)))
		}
		tokensField := strings.TrimSpace(fields[0])
		var tokens []string
		if tokensField != "" {
			tokens = strings.Split(tokensField, ",")
			for i := range tokens {
				tokens[i] = strings.TrimSpace(tokens[i])
			}
		}
		mappings = append(mappings, HostMapping{
			Tokens:     tokens,
			Seed:       strings.TrimSpace(fields[1]) == "True",
			TargetHost: strings.TrimSpace(fields[2]),
			SourceFQDN: strings.TrimSpace(fields[3]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mappings, nil
}

// ValidateCoversAllBackupHosts fails if mappings does not name every host in
// backupFQDNs exactly once.
func ValidateCoversAllBackupHosts(mappings []HostMapping, backupFQDNs []string) error {
	seen := make(map[string]int, len(mappings))
	for _, m := range mappings {
		seen[m.SourceFQDN]++
	}

	var missing, duplicate, unknown []string
	want := make(map[string]bool, len(backupFQDNs))
	for _, fqdn := range backupFQDNs {
		want[fqdn] = true
		switch seen[fqdn] {
		case 0:
			missing = append(missing, fqdn)
		case 1:
		default:
			duplicate = append(duplicate, fqdn)
		}
	}
	for fqdn := range seen {
		if !want[fqdn] {
			unknown = append(unknown, fqdn)
		}
	}

	if len(missing) == 0 && len(duplicate) == 0 && len(unknown) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(duplicate)
	sort.Strings(unknown)
	return merrors.New("restorecluster.ValidateCoversAllBackupHosts", merrors.TopologyMismatch,
		fmt.Errorf("missing=%v duplicate=%v unknown=%v", missing, duplicate, unknown))
}
