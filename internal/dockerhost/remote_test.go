package dockerhost

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"docker-monitor/internal/config"
	"docker-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSSH 模拟 "ssh ... user@host docker <args>" 的脚本
const fakeSSH = `#!/bin/sh
while [ $# -gt 0 ] && [ "$1" != "docker" ]; do shift; done
shift
case "$1" in
  version) echo '{"Client":{"Version":"25.0.0"}}' ;;
  ps)
    echo '{"ID":"0123456789ab","Names":"web","Image":"nginx","Status":"Up 2 hours"}'
    echo 'not-json'
    echo '{"ID":"gone","Names":"old","Image":"busybox","Status":"Exited (0)"}'
    ;;
  inspect)
    if [ "$2" = "0123456789ab" ]; then
      echo '[{"Id":"0123456789abcdef","Name":"/web","State":{"Status":"running"},"Config":{"Image":"nginx","Labels":{"snadboy.revp.port":"80"}}}]'
    else
      echo "Error: No such object: $2" >&2
      exit 1
    fi
    ;;
  events)
    echo '{"Type":"container","Action":"start","Actor":{"ID":"0123456789abcdef"}}'
    echo '{"Type":"container","Action":"die","Actor":{"ID":"0123456789abcdef"}}'
    echo "ssh: connect to host node1 port 22: Connection refused" >&2
    exit 255
    ;;
esac
`

const refusingSSH = `#!/bin/sh
echo "ssh: connect to host node1 port 22: Connection refused" >&2
exit 255
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ssh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	return path
}

func newTestRemote(t *testing.T, script string, onLost func(*ConnError)) *RemoteHost {
	h, err := NewHost(Options{
		Spec:              config.HostSpec{Name: "node1", Kind: config.KindRemote, User: "root", Address: "node1", Port: 22},
		SSHBinary:         writeScript(t, script),
		Capture:           CaptureChain{PipeCapture{}},
		DiagnoseTimeout:   5,
		CommandTimeout:    5,
		EventRestartDelay: 10 * time.Millisecond,
		OnConnectionLost:  onLost,
	})
	require.NoError(t, err)
	return h.(*RemoteHost)
}

func TestRemoteHostListAndDetail(t *testing.T) {
	ctx := context.Background()
	h := newTestRemote(t, fakeSSH, nil)

	_, err := h.ListContainers(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, h.Connect(ctx))
	assert.True(t, h.TestConnection(ctx))

	records, err := h.ListContainers(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "0123456789abcdef", records[0].ID)
	assert.Equal(t, "web", records[0].Name)
	assert.Equal(t, "ssh", records[0].Source)
	assert.Equal(t, "80", records[0].Labels["snadboy.revp.port"])

	rec, err := h.GetContainerDetail(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRemoteHostConnectDiagnosis(t *testing.T) {
	h := newTestRemote(t, refusingSSH, nil)
	err := h.Connect(context.Background())
	ce, ok := AsConnError(err)
	require.True(t, ok)
	assert.Equal(t, ErrRefused, ce.Kind)
	assert.Equal(t, "node1", ce.Host)
}

func TestRemoteHostEventStreamLosesConnection(t *testing.T) {
	var mu sync.Mutex
	var lost []*ConnError
	h := newTestRemote(t, fakeSSH, func(ce *ConnError) {
		mu.Lock()
		defer mu.Unlock()
		lost = append(lost, ce)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.Connect(ctx))

	var events []models.ContainerEvent
	err := h.StreamEvents(ctx, func(ev models.ContainerEvent) {
		events = append(events, ev)
	})
	ce, ok := AsConnError(err)
	require.True(t, ok)
	assert.True(t, ce.IsConnectionLoss())

	require.Len(t, events, 2)
	assert.Equal(t, "start", events[0].Action)
	assert.Equal(t, "die", events[1].Action)
	assert.Equal(t, "node1", events[1].HostName)

	mu.Lock()
	assert.Len(t, lost, 1)
	mu.Unlock()
	assert.False(t, h.isConnected())
}

func TestRemoteHostResolveLiteralIP(t *testing.T) {
	h := newRemoteHost(Options{Spec: config.HostSpec{Name: "n", Address: "10.1.2.3"}})
	assert.Equal(t, "10.1.2.3", h.ResolveIP(context.Background()))
}

func TestNewHostUnknownKind(t *testing.T) {
	_, err := NewHost(Options{Spec: config.HostSpec{Name: "x", Kind: "k8s"}})
	assert.ErrorIs(t, err, ErrUnknownHostKind)
}
