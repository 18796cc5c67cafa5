package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"docker-monitor/internal/config"
	"docker-monitor/internal/dockerhost"
	"docker-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	want := []int{30, 60, 120, 240, 300, 300, 300, 300, 300, 300, 300}
	for f := uint(0); f <= 10; f++ {
		assert.Equal(t, time.Duration(want[f])*time.Second, Backoff(f), "failures=%d", f)
	}
	assert.Equal(t, 300*time.Second, Backoff(1<<31))
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newManager(hosts ...*fakeHost) (*HostManager, *clock) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewHostManager(fakeFactory(hosts...))
	m.now = clk.Now
	return m, clk
}

func remoteSpec(name string) config.HostSpec {
	return config.HostSpec{Name: name, Kind: config.KindRemote, Address: name}
}

func TestHostManagerConnectAndFail(t *testing.T) {
	good := newFakeHost("good")
	bad := newFakeHost("bad")
	bad.connectErr = &dockerhost.ConnError{Host: "bad", Kind: dockerhost.ErrRefused, Message: "Connection refused"}
	m, _ := newManager(good, bad)
	ctx := context.Background()

	require.NoError(t, m.AddHost(ctx, remoteSpec("good")))
	assert.Error(t, m.AddHost(ctx, remoteSpec("bad")))

	h, ok := m.Host("good")
	require.True(t, ok)
	assert.Equal(t, models.HostConnected, h.Status)
	assert.Equal(t, "192.168.1.10", h.IPAddress)
	assert.Nil(t, h.LastError)

	h, _ = m.Host("bad")
	assert.Equal(t, models.HostFailed, h.Status)
	require.NotNil(t, h.LastError)
	assert.Equal(t, "refused", h.LastError.Kind)
	assert.Equal(t, uint(1), h.ConsecutiveFailures)

	assert.Equal(t, []string{"good"}, m.Connected())
	assert.ErrorIs(t, m.Recover(ctx, "missing"), config.ErrHostNotFound)
}

func TestRecoveryCandidatesFollowBackoff(t *testing.T) {
	bad := newFakeHost("bad")
	bad.connectErr = errors.New("down")
	m, clk := newManager(bad)
	ctx := context.Background()

	_ = m.AddHost(ctx, remoteSpec("bad"))
	assert.Empty(t, m.RecoveryCandidates())

	clk.Advance(59 * time.Second)
	assert.Empty(t, m.RecoveryCandidates())
	clk.Advance(time.Second)
	assert.Equal(t, []string{"bad"}, m.RecoveryCandidates())

	// 第二次失败后需要等120秒
	assert.Error(t, m.Recover(ctx, "bad"))
	h, _ := m.Host("bad")
	assert.Equal(t, uint(2), h.ConsecutiveFailures)
	clk.Advance(119 * time.Second)
	assert.Empty(t, m.RecoveryCandidates())
	clk.Advance(time.Second)
	assert.Equal(t, []string{"bad"}, m.RecoveryCandidates())

	bad.setConnectErr(nil)
	require.NoError(t, m.Recover(ctx, "bad"))
	h, _ = m.Host("bad")
	assert.Equal(t, models.HostConnected, h.Status)
	assert.Equal(t, uint(0), h.ConsecutiveFailures)
	assert.Nil(t, h.LastError)
	assert.Empty(t, m.RecoveryCandidates())
}

func TestTestAllMarksFailedHosts(t *testing.T) {
	a := newFakeHost("a")
	b := newFakeHost("b")
	m, _ := newManager(a, b)
	ctx := context.Background()
	require.NoError(t, m.AddHost(ctx, remoteSpec("a")))
	require.NoError(t, m.AddHost(ctx, remoteSpec("b")))

	b.testOK = false
	assert.Equal(t, map[string]bool{"a": true, "b": false}, m.TestAll(ctx))

	h, _ := m.Host("b")
	assert.Equal(t, models.HostFailed, h.Status)
	require.NotNil(t, h.LastError)

	// failed主机不再测试
	assert.Equal(t, map[string]bool{"a": true, "b": false}, m.TestAll(ctx))
	h, _ = m.Host("b")
	assert.Equal(t, uint(1), h.ConsecutiveFailures)
}

func TestErrorDetails(t *testing.T) {
	bad := newFakeHost("bad")
	bad.connectErr = errors.New("no route to host")
	m, clk := newManager(bad)
	start := clk.now
	_ = m.AddHost(context.Background(), remoteSpec("bad"))

	details := m.ErrorDetails()
	require.Len(t, details.Errors, 1)
	d := details.Errors[0]
	assert.Equal(t, "bad", d.Host)
	assert.Equal(t, "no route to host", d.Error)
	assert.Equal(t, "unknown", d.Kind)
	assert.Equal(t, 60, d.BackoffSeconds)
	assert.Equal(t, start.Add(60*time.Second), d.NextRetryAfter)
	assert.Empty(t, details.RecoveryCandidates)
}

func TestOnConnectionLostMarksHostFailed(t *testing.T) {
	var lost func(*dockerhost.ConnError)
	host := newFakeHost("h")
	m := NewHostManager(func(spec config.HostSpec, onLost func(*dockerhost.ConnError)) (dockerhost.HostConnection, error) {
		lost = onLost
		return host, nil
	})
	require.NoError(t, m.AddHost(context.Background(), remoteSpec("h")))
	require.NotNil(t, lost)

	lost(&dockerhost.ConnError{Host: "h", Kind: dockerhost.ErrUnreachable, Message: "No route to host"})
	h, _ := m.Host("h")
	assert.Equal(t, models.HostFailed, h.Status)
	assert.Equal(t, "unreachable", h.LastError.Kind)
}

func TestShutdownClosesHosts(t *testing.T) {
	a := newFakeHost("a")
	m, _ := newManager(a)
	require.NoError(t, m.AddHost(context.Background(), remoteSpec("a")))
	require.NoError(t, m.Shutdown())
	assert.True(t, a.closed)
	h, _ := m.Host("a")
	assert.Equal(t, models.HostDisconnected, h.Status)
}

// streamingHost 带事件流进程状态的fakeHost
type streamingHost struct {
	*fakeHost
}

func (s streamingHost) EventProcess() (models.ProcessDetail, bool) {
	return models.ProcessDetail{Title: "events-" + s.name, Pid: 4242, Status: models.StatusRunning}, true
}

func TestHostSnapshotIncludesEventStream(t *testing.T) {
	plain := newFakeHost("plain")
	remote := streamingHost{newFakeHost("remote")}
	m := NewHostManager(func(spec config.HostSpec, onLost func(*dockerhost.ConnError)) (dockerhost.HostConnection, error) {
		if spec.Name == "remote" {
			return remote, nil
		}
		return plain, nil
	})
	require.NoError(t, m.AddHost(context.Background(), remoteSpec("plain")))
	require.NoError(t, m.AddHost(context.Background(), remoteSpec("remote")))

	hosts := m.Hosts()
	require.Len(t, hosts, 2)
	assert.Nil(t, hosts[0].EventStream)
	require.NotNil(t, hosts[1].EventStream)
	assert.Equal(t, 4242, hosts[1].EventStream.Pid)
}
