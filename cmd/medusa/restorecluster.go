package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/spotify/medusa-go/internal/cassandra"
	"github.com/spotify/medusa-go/internal/index"
	"github.com/spotify/medusa-go/internal/report"
	"github.com/spotify/medusa-go/internal/restorecluster"
	"github.com/spotify/medusa-go/internal/sshexec"
	"github.com/spotify/medusa-go/internal/types"
)

var restoreClusterCmd = &cobra.Command{
	Use:   "restore-cluster",
	Short: "Restore a backup across every node of a live cluster over SSH",
	RunE:  runRestoreCluster,
}

func init() {
	restoreClusterCmd.Flags().String("backup-name", "", "Backup name (required)")
	restoreClusterCmd.Flags().String("seed-target", "", "Restore onto the same hosts the backup was taken from")
	restoreClusterCmd.Flags().String("host-list", "", "Path to a CSV mapping file for an out-of-place restore")
	restoreClusterCmd.Flags().String("temp-dir", "", "Staging directory each target downloads into")
	restoreClusterCmd.Flags().Bool("keep-auth", false, "Leave system_auth untouched")
	restoreClusterCmd.Flags().Bool("use-sstableloader", false, "Stream restored SSTables with sstableloader instead of a directory swap")
	restoreClusterCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	_ = restoreClusterCmd.MarkFlagRequired("backup-name")
	restoreClusterCmd.MarkFlagsMutuallyExclusive("seed-target", "host-list")
}

func sshAuthFromKeyFile(path string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ssh key %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key %s: %w", path, err)
	}
	return ssh.PublicKeys(signer), nil
}

// fetchLiveTokenMap dials seedTarget and runs `nodetool ring` over SSH to
// learn the live cluster's current topology, the same check an in-place
// restore needs before it can trust the backup still matches the ring.
// nodetool's output is redirected to a remote file and fetched back, since
// a Session only captures stderr live.
func fetchLiveTokenMap(ctx context.Context, seedTarget string, cfg sshexec.Config) (types.TokenMap, error) {
	host, err := sshexec.Dial(seedTarget, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", seedTarget, err)
	}
	defer host.Close()

	const outPath = "/tmp/medusa-ring.out"
	sess, err := host.Run(ctx, fmt.Sprintf("nodetool ring >%s 2>&1", outPath))
	if err != nil {
		return nil, fmt.Errorf("run nodetool ring on %s: %w", seedTarget, err)
	}
	status := <-sess.Wait()
	out, ferr := host.FetchFile(ctx, outPath)
	if status.Err != nil {
		return nil, fmt.Errorf("nodetool ring on %s: %w", seedTarget, status.Err)
	}
	if status.Code != 0 {
		return nil, fmt.Errorf("nodetool ring on %s exited %d", seedTarget, status.Code)
	}
	if ferr != nil {
		return nil, fmt.Errorf("fetch nodetool ring output from %s: %w", seedTarget, ferr)
	}
	return cassandra.ParseRing(string(out)), nil
}

func confirmOnStdin(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

func runRestoreCluster(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	driver, err := buildDriver(ctx, cfg)
	if err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("backup-name")
	seedTarget, _ := cmd.Flags().GetString("seed-target")
	hostListPath, _ := cmd.Flags().GetString("host-list")
	tempDir, _ := cmd.Flags().GetString("temp-dir")
	keepAuth, _ := cmd.Flags().GetBool("keep-auth")
	useSstableloader, _ := cmd.Flags().GetBool("use-sstableloader")
	bypass, _ := cmd.Flags().GetBool("yes")

	entries, err := index.ListEntries(ctx, driver, name)
	if err != nil {
		return fmt.Errorf("list entries for %s: %w", name, err)
	}
	var backupFQDNs []string
	for _, e := range entries {
		backupFQDNs = append(backupFQDNs, e.FQDN)
	}

	auth, err := sshAuthFromKeyFile(cfg.SSH.KeyFile)
	if err != nil {
		return err
	}
	sshCfg := sshexec.Config{User: cfg.SSH.Username, Auth: []ssh.AuthMethod{auth}}

	var mappings []restorecluster.HostMapping
	switch {
	case hostListPath != "":
		f, err := os.Open(hostListPath)
		if err != nil {
			return fmt.Errorf("open host list %s: %w", hostListPath, err)
		}
		defer f.Close()
		mappings, err = restorecluster.ParseCSVPlan(f, 0)
		if err != nil {
			return fmt.Errorf("parse host list %s: %w", hostListPath, err)
		}
	case seedTarget != "":
		backupTM, err := report.FetchTokenMap(ctx, driver, backupFQDNs[0], name)
		if err != nil {
			return fmt.Errorf("fetch backup tokenmap: %w", err)
		}
		liveTM, err := fetchLiveTokenMap(ctx, seedTarget, sshCfg)
		if err != nil {
			return fmt.Errorf("fetch live tokenmap: %w", err)
		}
		mappings, err = restorecluster.PlanInPlace(backupTM, liveTM)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("restore-cluster requires exactly one of --seed-target or --host-list")
	}

	if err := restorecluster.ValidateCoversAllBackupHosts(mappings, backupFQDNs); err != nil {
		return err
	}

	orch := &restorecluster.Orchestrator{
		Dial:        sshexec.Dial,
		SSHConfig:   sshCfg,
		StopCommand: cfg.Cassandra.StopCmd,
		RestoreCommand: func(m restorecluster.HostMapping, seeds []string) string {
			restoreArgs := []string{"medusa", "restore-node", "--backup-name", name}
			if seedTarget != "" {
				restoreArgs = append(restoreArgs, "--in-place")
			}
			if tempDir != "" {
				restoreArgs = append(restoreArgs, "--temp-dir", tempDir)
			}
			if keepAuth {
				restoreArgs = append(restoreArgs, "--keep-auth")
			}
			if useSstableloader {
				restoreArgs = append(restoreArgs, "--use-sstableloader")
			}
			if len(seeds) > 0 {
				restoreArgs = append(restoreArgs, "--seeds", strings.Join(seeds, ","))
			}
			return strings.Join(restoreArgs, " ")
		},
		JobDir: func(m restorecluster.HostMapping) string {
			return "/tmp/medusa-restore-" + name
		},
		Confirm:      confirmOnStdin,
		BypassChecks: bypass,
		OnStageChange: func(s restorecluster.Stage) {
			fmt.Printf("restore-cluster %s: %s\n", name, s)
		},
	}

	if err := orch.Run(ctx, mappings); err != nil {
		return fmt.Errorf("restore-cluster %s: %w", name, err)
	}
	fmt.Printf("restore-cluster %s completed across %d host(s)\n", name, len(mappings))
	return nil
}
