package services

import (
	"context"
	"testing"

	"docker-monitor/internal/config"
	"docker-monitor/internal/dockerhost"
	"docker-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// losingHost 和RemoteHost一样：命令失败时先通过回调报告断开，再返回同一个错误
type losingHost struct {
	*fakeHost
	onLost func(*dockerhost.ConnError)
}

func (h *losingHost) ListContainers(ctx context.Context) ([]models.ContainerRecord, error) {
	ce := &dockerhost.ConnError{Host: h.name, Kind: dockerhost.ErrRefused, Message: "Connection refused"}
	h.onLost(ce)
	return nil, ce
}

func TestScanHostCountsConnectionLossOnce(t *testing.T) {
	host := &losingHost{fakeHost: newFakeHost("h1")}
	factory := func(spec config.HostSpec, onLost func(*dockerhost.ConnError)) (dockerhost.HostConnection, error) {
		host.onLost = onLost
		return host, nil
	}
	m, err := NewMonitor(testConfig("h1"), factory)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.Hosts().AddHost(ctx, config.HostSpec{Name: "h1", Kind: config.KindRemote, Address: "h1"}))

	err = m.scanHost(ctx, "h1")
	require.Error(t, err)

	h, ok := m.Hosts().Host("h1")
	require.True(t, ok)
	assert.Equal(t, models.HostFailed, h.Status)
	assert.Equal(t, uint(1), h.ConsecutiveFailures)
	assert.Equal(t, "refused", h.LastError.Kind)

	// 首次失败后的退避是60秒
	details := m.Hosts().ErrorDetails()
	require.Len(t, details.Errors, 1)
	assert.Equal(t, 60, details.Errors[0].BackoffSeconds)
}

func TestRecordLossIgnoresHostsAlreadyFailed(t *testing.T) {
	a := newFakeHost("a")
	m, _ := newManager(a)
	require.NoError(t, m.AddHost(context.Background(), remoteSpec("a")))

	ce := &dockerhost.ConnError{Host: "a", Kind: dockerhost.ErrUnreachable, Message: "No route to host"}
	assert.True(t, m.RecordLoss("a", ce))
	assert.False(t, m.RecordLoss("a", ce))

	h, _ := m.Host("a")
	assert.Equal(t, uint(1), h.ConsecutiveFailures)
}
