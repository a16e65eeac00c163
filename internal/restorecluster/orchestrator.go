package restorecluster

import (
	"context"
	"fmt"
	"time"

	"github.com/spotify/medusa-go/internal/merrors"
	"github.com/spotify/medusa-go/internal/mlog"
	"github.com/spotify/medusa-go/internal/sshexec"
)

// Stage is a step of the cluster restore state machine.
type Stage string

const (
	StagePlan          Stage = "plan"
	StageStopAll       Stage = "stop-all"
	StageRestoreSeeds  Stage = "restore-seeds"
	StageRestoreOthers Stage = "restore-others"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)

// DefaultPollInterval is how often a stage's running jobs are re-checked.
const DefaultPollInterval = 5 * time.Second

// Dialer opens an SSH connection to addr, so tests can inject a fake
// transport without a real network.
type Dialer func(addr string, cfg sshexec.Config) (*sshexec.Host, error)

// Orchestrator drives a cluster restore across every host in a plan.
type Orchestrator struct {
	Dial      Dialer
	SSHConfig sshexec.Config

	// StopCommand is run on every target during stop-all.
	StopCommand string
	// RestoreCommand builds the node-restore invocation for m, run under an
	// idempotent, single-instance-per-job-directory supervisor wrapper.
	// seeds lists every seed target host, passed to non-seed restores.
	RestoreCommand func(m HostMapping, seeds []string) string
	// JobDir returns the remote working directory for m's restore job.
	JobDir func(m HostMapping) string

	PollInterval time.Duration
	// Confirm prompts the operator before any destructive stage. Required
	// unless BypassChecks is set.
	Confirm      func(prompt string) bool
	BypassChecks bool

	OnStageChange func(Stage)

	Sleep func(time.Duration)
}

func (o *Orchestrator) pollInterval() time.Duration {
	if o.PollInterval > 0 {
		return o.PollInterval
	}
	return DefaultPollInterval
}

func (o *Orchestrator) setStage(s Stage) {
	if o.OnStageChange != nil {
		o.OnStageChange(s)
	}
}

// Run executes plan → stop-all → restore-seeds → restore-others → done,
// dialing one Host per distinct target and reusing it across stages.
func (o *Orchestrator) Run(ctx context.Context, mappings []HostMapping) error {
	log := mlog.WithComponent("restorecluster")
	o.setStage(StagePlan)

	if !o.BypassChecks {
		if o.Confirm == nil {
			o.setStage(StageFailed)
			return merrors.New("restorecluster.Run", merrors.ConfigError,
				fmt.Errorf("no confirmation callback configured and BypassChecks is false"))
		}
		if !o.Confirm(fmt.Sprintf("stop cassandra and restore %d node(s) from backup?", len(mappings))) {
			o.setStage(StageFailed)
			return merrors.New("restorecluster.Run", merrors.Cancelled, fmt.Errorf("restore not confirmed"))
		}
	}

	hosts := make(map[string]*sshexec.Host, len(mappings))
	defer func() {
		for _, h := range hosts {
			_ = h.Close()
		}
	}()
	for _, m := range mappings {
		if _, ok := hosts[m.TargetHost]; ok {
			continue
		}
		h, err := o.Dial(m.TargetHost, o.SSHConfig)
		if err != nil {
			o.setStage(StageFailed)
			return merrors.New("restorecluster.Run", merrors.RemoteExecFailure, fmt.Errorf("dial %s: %w", m.TargetHost, err))
		}
		hosts[m.TargetHost] = h
	}

	o.setStage(StageStopAll)
	if err := o.runStage(ctx, mappings, hosts, func(m HostMapping) string { return o.StopCommand }); err != nil {
		o.setStage(StageFailed)
		return fmt.Errorf("stop-all: %w", err)
	}
	log.Info().Int("targets", len(hosts)).Msg("cassandra stopped on every target")

	var seeds, others []HostMapping
	var seedHosts []string
	for _, m := range mappings {
		if m.Seed {
			seeds = append(seeds, m)
			seedHosts = append(seedHosts, m.TargetHost)
		} else {
			others = append(others, m)
		}
	}

	o.setStage(StageRestoreSeeds)
	if err := o.runStage(ctx, seeds, hosts, func(m HostMapping) string { return o.RestoreCommand(m, seedHosts) }); err != nil {
		o.setStage(StageFailed)
		return fmt.Errorf("restore-seeds: %w", err)
	}

	o.setStage(StageRestoreOthers)
	if err := o.runStage(ctx, others, hosts, func(m HostMapping) string { return o.RestoreCommand(m, seedHosts) }); err != nil {
		o.setStage(StageFailed)
		return fmt.Errorf("restore-others: %w", err)
	}

	o.setStage(StageDone)
	return nil
}

// runStage launches cmdFor(m) on every mapping's target (skipping nothing;
// callers pass an empty slice to no-op a stage) and blocks until all of
// them report a terminal exit status, failing if any exit nonzero.
func (o *Orchestrator) runStage(ctx context.Context, mappings []HostMapping, hosts map[string]*sshexec.Host, cmdFor func(HostMapping) string) error {
	if len(mappings) == 0 {
		return nil
	}

	sessions := make(map[string]*sshexec.Session, len(mappings))
	jobDirs := make(map[string]string, len(mappings))
	for _, m := range mappings {
		jobDir := ""
		if o.JobDir != nil {
			jobDir = o.JobDir(m)
		}
		jobDirs[m.TargetHost] = jobDir

		sess, err := hosts[m.TargetHost].Run(ctx, cmdFor(m))
		if err != nil {
			return merrors.New("restorecluster.runStage", merrors.RemoteExecFailure,
				fmt.Errorf("start job on %s: %w", m.TargetHost, err))
		}
		sessions[m.TargetHost] = sess
	}

	results, err := o.pollUntilDone(ctx, hosts, sessions, jobDirs)
	if err != nil {
		return err
	}

	var failed []string
	for target, status := range results {
		if status.Code != 0 || status.Err != nil {
			stderr := ""
			if h, ok := hosts[target]; ok && jobDirs[target] != "" {
				if b, ferr := h.FetchFile(ctx, jobDirs[target]+"/stderr.log"); ferr == nil {
					stderr = string(b)
				}
			}
			failed = append(failed, fmt.Sprintf("%s (code=%d err=%v stderr=%q)", target, status.Code, status.Err, stderr))
		}
	}
	if len(failed) > 0 {
		return merrors.New("restorecluster.runStage", merrors.RemoteExecFailure,
			fmt.Errorf("job(s) failed: %v", failed))
	}
	return nil
}

// pollUntilDone implements the 5s-tick monitoring contract: a job that
// hasn't reported its exit status yet is kept alive with a keepalive if its
// transport answers, or reconnected and reattached to its supervisor
// wrapper if it doesn't.
func (o *Orchestrator) pollUntilDone(ctx context.Context, hosts map[string]*sshexec.Host, sessions map[string]*sshexec.Session, jobDirs map[string]string) (map[string]sshexec.ExitStatus, error) {
	results := make(map[string]sshexec.ExitStatus, len(sessions))
	pending := make(map[string]bool, len(sessions))
	for target := range sessions {
		pending[target] = true
	}

	for len(pending) > 0 {
		for target := range pending {
			select {
			case status := <-sessions[target].Wait():
				results[target] = status
				delete(pending, target)
			default:
				host := hosts[target]
				if host.Alive() {
					_ = host.Keepalive()
					continue
				}
				if err := host.Reconnect(); err != nil {
					continue
				}
				if sess, err := host.Reattach(ctx, jobDirs[target]); err == nil {
					sessions[target] = sess
				}
			}
		}
		if len(pending) == 0 {
			break
		}
		if err := o.wait(ctx, o.pollInterval()); err != nil {
			return results, merrors.New("restorecluster.pollUntilDone", merrors.Cancelled, err)
		}
	}
	return results, nil
}

func (o *Orchestrator) wait(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		o.Sleep(d)
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
