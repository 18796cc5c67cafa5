package dockerhost

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCapture struct {
	name   string
	result CaptureResult
	err    error
	calls  *[]string
}

func (s stubCapture) Name() string { return s.name }

func (s stubCapture) Capture(ctx context.Context, target SSHTarget, remote []string) (CaptureResult, error) {
	*s.calls = append(*s.calls, s.name)
	return s.result, s.err
}

func TestCaptureChainFirstInformativeWins(t *testing.T) {
	var calls []string
	chain := CaptureChain{
		stubCapture{name: "pty", err: errors.New("no pty"), calls: &calls},
		stubCapture{name: "script", result: CaptureResult{}, calls: &calls},
		stubCapture{name: "verbose", result: CaptureResult{Output: "Host key verification failed."}, calls: &calls},
		stubCapture{name: "pipe", result: CaptureResult{Success: true}, calls: &calls},
	}
	r, name := chain.Run(context.Background(), SSHTarget{Host: "h"}, []string{"docker", "version"})
	assert.Equal(t, "verbose", name)
	assert.Contains(t, r.Output, "Host key")
	assert.Equal(t, []string{"pty", "script", "verbose"}, calls)
}

func TestCaptureChainFallsBackToLast(t *testing.T) {
	var calls []string
	chain := CaptureChain{
		stubCapture{name: "a", calls: &calls},
		stubCapture{name: "b", result: CaptureResult{TimedOut: true}, calls: &calls},
	}
	r, name := chain.Run(context.Background(), SSHTarget{Host: "h"}, nil)
	assert.Equal(t, "b", name)
	assert.True(t, r.TimedOut)
}

func TestSSHTargetArgs(t *testing.T) {
	target := SSHTarget{User: "ops", Host: "h", Port: 2222, ConnectTimeout: 10}
	assert.Equal(t, "ops@h", target.Destination())
	assert.Equal(t, []string{"-o", "ConnectTimeout=10", "-p", "2222"}, target.baseArgs())
	assert.Equal(t, "ssh", target.binary())
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

// promptingSSH 打印主机密钥确认提示后等待输入
const promptingSSH = `#!/bin/sh
printf "The authenticity of host 'node1 (10.0.0.9)' can't be established.\n"
printf "ED25519 key fingerprint is SHA256:Qm9vZ2llV29vZ2llCg.\n"
printf "Are you sure you want to continue connecting (yes/no/[fingerprint])? "
sleep 5
`

// rejectingSSH 严格检查主机密钥时直接失败
const rejectingSSH = `#!/bin/sh
echo "ED25519 key fingerprint is SHA256:Qm9vZ2llV29vZ2llCg." >&2
echo "Host key verification failed." >&2
exit 255
`

func TestPTYCaptureSeesHostKeyPrompt(t *testing.T) {
	target := SSHTarget{Binary: writeScript(t, promptingSSH), User: "root", Host: "node1", Timeout: time.Second}

	start := time.Now()
	r, err := PTYCapture{}.Capture(context.Background(), target, []string{"docker", "version"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.True(t, r.TimedOut)
	assert.False(t, r.Success)
	assert.Contains(t, r.Output, "Are you sure you want to continue connecting")
	assert.NotContains(t, r.Output, "\r\n")

	ce := DiagnoseConnect("node1", r, 1)
	assert.Equal(t, ErrHostKey, ce.Kind)
	assert.Contains(t, ce.Message, "Key fingerprint: SHA256:Qm9vZ2llV29vZ2llCg")
	assert.Contains(t, ce.Message, "ssh-keyscan node1")
}

func TestScriptCaptureSeesHostKeyPrompt(t *testing.T) {
	if _, err := exec.LookPath("script"); err != nil {
		t.Skip("script not installed")
	}
	target := SSHTarget{Binary: writeScript(t, promptingSSH), User: "root", Host: "node1", Timeout: time.Second}

	r, err := ScriptCapture{}.Capture(context.Background(), target, []string{"docker", "version"})
	require.NoError(t, err)
	assert.True(t, r.TimedOut)
	assert.Contains(t, r.Output, "ED25519 key fingerprint is SHA256:Qm9vZ2llV29vZ2llCg")

	ce := DiagnoseConnect("node1", r, 1)
	assert.Equal(t, ErrHostKey, ce.Kind)
	assert.Contains(t, ce.Message, "Key fingerprint: SHA256:Qm9vZ2llV29vZ2llCg")
}

func TestVerboseCaptureCollectsStderr(t *testing.T) {
	target := SSHTarget{Binary: writeScript(t, rejectingSSH), User: "root", Host: "node1", Timeout: 5 * time.Second}

	r, err := VerboseCapture{}.Capture(context.Background(), target, []string{"docker", "version"})
	require.NoError(t, err)
	assert.False(t, r.TimedOut)
	assert.False(t, r.Success)
	assert.Contains(t, r.Output, "Host key verification failed.")

	ce := DiagnoseConnect("node1", r, 5)
	assert.Equal(t, ErrHostKey, ce.Kind)
	assert.Contains(t, ce.Message, "Key fingerprint: SHA256:Qm9vZ2llV29vZ2llCg")
}

func TestPipeCaptureSuccessAndMissingBinary(t *testing.T) {
	ok := writeScript(t, "#!/bin/sh\necho '{\"Client\":{\"Version\":\"25.0.0\"}}'\n")
	r, err := PipeCapture{}.Capture(context.Background(), SSHTarget{Binary: ok, Host: "node1", Timeout: 5 * time.Second}, []string{"docker", "version"})
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Contains(t, r.Output, "25.0.0")

	missing := filepath.Join(t.TempDir(), "no-ssh")
	r, err = PipeCapture{}.Capture(context.Background(), SSHTarget{Binary: missing, Host: "node1", Timeout: time.Second}, nil)
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.Contains(t, r.Output, "failed to run "+missing)
}

func TestCaptureChainRunsRealStrategies(t *testing.T) {
	target := SSHTarget{Binary: writeScript(t, rejectingSSH), User: "root", Host: "node1", Timeout: 5 * time.Second}
	r, name := CaptureChain{VerboseCapture{}, PipeCapture{}}.Run(context.Background(), target, []string{"docker", "version"})
	assert.Equal(t, "verbose", name)
	assert.Contains(t, r.Output, "Host key verification failed.")
}
