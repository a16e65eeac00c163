package restorecluster

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/spotify/medusa-go/internal/sshexec"
)

// newShellServer starts a loopback SSH server that runs every exec request
// through `sh -c`, reporting the real exit code, so orchestrator tests
// exercise genuine process success/failure without a live cluster.
func newShellServer(t *testing.T) string {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	config := &ssh.ServerConfig{NoClientAuth: true}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go serveShellConn(conn, config)
		}
	}()

	return listener.Addr().String()
}

type execPayload struct{ Command string }

func serveShellConn(conn net.Conn, config *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer channel.Close()
			for req := range requests {
				if req.Type != "exec" {
					req.Reply(false, nil)
					continue
				}
				var payload execPayload
				ssh.Unmarshal(req.Payload, &payload)
				req.Reply(true, nil)

				cmd := exec.Command("sh", "-c", payload.Command)
				cmd.Stdout = channel
				cmd.Stderr = channel.Stderr()
				code := 0
				if err := cmd.Run(); err != nil {
					if exitErr, ok := err.(*exec.ExitError); ok {
						code = exitErr.ExitCode()
					} else {
						code = 1
					}
				}
				channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(code)}))
				return
			}
		}()
	}
}

func testDial(addr string) Dialer {
	return func(a string, cfg sshexec.Config) (*sshexec.Host, error) {
		return sshexec.Dial(a, cfg)
	}
}

func TestOrchestratorRunSucceedsThroughAllStages(t *testing.T) {
	addr := newShellServer(t)

	var stages []Stage
	o := &Orchestrator{
		Dial:           testDial(addr),
		SSHConfig:      sshexec.Config{User: "medusa", Timeout: 2 * time.Second},
		StopCommand:    "true",
		RestoreCommand: func(m HostMapping, seeds []string) string { return "true" },
		BypassChecks:   true,
		PollInterval:   5 * time.Millisecond,
		OnStageChange:  func(s Stage) { stages = append(stages, s) },
	}

	mappings := []HostMapping{
		{SourceFQDN: "n1", TargetHost: addr, Seed: true},
	}

	require.NoError(t, o.Run(context.Background(), mappings))
	assert.Equal(t, []Stage{StagePlan, StageStopAll, StageRestoreSeeds, StageRestoreOthers, StageDone}, stages)
}

func TestOrchestratorRunFailsWhenStopCommandFails(t *testing.T) {
	addr := newShellServer(t)

	o := &Orchestrator{
		Dial:           testDial(addr),
		SSHConfig:      sshexec.Config{User: "medusa", Timeout: 2 * time.Second},
		StopCommand:    "false",
		RestoreCommand: func(m HostMapping, seeds []string) string { return "true" },
		BypassChecks:   true,
		PollInterval:   5 * time.Millisecond,
	}

	err := o.Run(context.Background(), []HostMapping{{SourceFQDN: "n1", TargetHost: addr}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop-all")
}

func TestOrchestratorRunFailsWhenRestoreCommandFails(t *testing.T) {
	addr := newShellServer(t)

	o := &Orchestrator{
		Dial:           testDial(addr),
		SSHConfig:      sshexec.Config{User: "medusa", Timeout: 2 * time.Second},
		StopCommand:    "true",
		RestoreCommand: func(m HostMapping, seeds []string) string { return "false" },
		JobDir:         func(m HostMapping) string { return "/tmp/medusa-job" },
		BypassChecks:   true,
		PollInterval:   5 * time.Millisecond,
	}

	err := o.Run(context.Background(), []HostMapping{{SourceFQDN: "n1", TargetHost: addr, Seed: true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore-seeds")
}

func TestOrchestratorRunAbortsWhenNotConfirmed(t *testing.T) {
	addr := newShellServer(t)

	o := &Orchestrator{
		Dial:    testDial(addr),
		Confirm: func(string) bool { return false },
	}

	err := o.Run(context.Background(), []HostMapping{{SourceFQDN: "n1", TargetHost: addr}})
	require.Error(t, err)
}

func TestOrchestratorRunFailsWithoutConfirmCallback(t *testing.T) {
	o := &Orchestrator{Dial: testDial("unused:22")}
	err := o.Run(context.Background(), []HostMapping{{SourceFQDN: "n1", TargetHost: "unused:22"}})
	require.Error(t, err)
}
