package dockerhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnoseConnect(t *testing.T) {
	hostKeyPrompt := "The authenticity of host 'node1 (10.0.0.5)' can't be established.\n" +
		"ED25519 key fingerprint is SHA256:abcdef.\n" +
		"Are you sure you want to continue connecting (yes/no/[fingerprint])?"

	cases := []struct {
		name     string
		result   CaptureResult
		kind     ErrorKind
		contains string
	}{
		{"host key prompt timeout", CaptureResult{Output: hostKeyPrompt, TimedOut: true}, ErrHostKey, "Key fingerprint: SHA256:abcdef"},
		{"password prompt timeout", CaptureResult{Output: "root@node1's password: ", TimedOut: true}, ErrPasswordPrompt, "password/passphrase"},
		{"silent timeout", CaptureResult{TimedOut: true}, ErrTimeout, "with no output"},
		{"noisy timeout", CaptureResult{Output: "debug1: Connecting", TimedOut: true}, ErrTimeout, "with output: debug1"},
		{"host key failed", CaptureResult{Output: "Host key verification failed."}, ErrHostKey, "ssh-keyscan node1"},
		{"auth", CaptureResult{Output: "root@node1: Permission denied (publickey)."}, ErrAuth, "authentication failed"},
		{"refused", CaptureResult{Output: "ssh: connect to host node1 port 22: Connection refused"}, ErrRefused, "SSH daemon"},
		{"no route", CaptureResult{Output: "ssh: connect to host node1 port 22: No route to host"}, ErrUnreachable, "Network connectivity"},
		{"docker missing", CaptureResult{Output: "bash: docker: command not found"}, ErrDockerMissing, "not installed"},
		{"daemon down", CaptureResult{Output: "Cannot connect to the Docker daemon at unix:///var/run/docker.sock."}, ErrDaemonDown, "daemon is not running"},
		{"other", CaptureResult{}, ErrUnknown, "No output captured"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ce := DiagnoseConnect("node1", tc.result, 15)
			assert.Equal(t, tc.kind, ce.Kind)
			assert.Contains(t, ce.Message, tc.contains)
			assert.Equal(t, "node1", ce.Host)
		})
	}
}

func TestDiagnoseCommand(t *testing.T) {
	ce := DiagnoseCommand("n", []string{"inspect", "abc"}, "Error: No such object: abc", "")
	assert.Equal(t, ErrNoSuchObject, ce.Kind)
	assert.False(t, ce.IsConnectionLoss())

	ce = DiagnoseCommand("n", []string{"ps"}, "permission denied while trying to connect to the Docker daemon socket", "")
	assert.Equal(t, ErrPermission, ce.Kind)
	assert.Contains(t, ce.Message, "docker group")

	ce = DiagnoseCommand("n", []string{"ps"}, "Connection closed by remote host", "")
	assert.Equal(t, ErrUnreachable, ce.Kind)
	assert.True(t, ce.IsConnectionLoss())

	ce = DiagnoseCommand("n", []string{"ps"}, "", "")
	assert.Equal(t, ErrUnknown, ce.Kind)
	assert.Contains(t, ce.Message, "Unknown error")
}

func TestExtractHostKeyInfo(t *testing.T) {
	assert.Equal(t, "Host key details not captured", ExtractHostKeyInfo("nothing here"))
	info := ExtractHostKeyInfo("RSA SHA256:zzz\nECDSA key fingerprint is SHA256:yyy.")
	assert.Contains(t, info, "Key type: RSA SHA256:zzz")
	assert.Contains(t, info, "Key fingerprint: SHA256:yyy")
}
