package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoveryRunOnce(t *testing.T) {
	bad := newFakeHost("bad")
	bad.connectErr = errors.New("down")
	m, clk := newManager(bad)
	ctx := context.Background()
	_ = m.AddHost(ctx, remoteSpec("bad"))

	var rescanned []string
	s := NewRecoverySupervisor(m, time.Millisecond, time.Millisecond, func(ctx context.Context, name string) error {
		rescanned = append(rescanned, name)
		return nil
	})

	// 退避未到，不会尝试
	recovered, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, recovered)
	assert.Equal(t, 1, bad.connects)

	clk.Advance(60 * time.Second)
	recovered, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, recovered)
	assert.Equal(t, 2, bad.connects)

	clk.Advance(120 * time.Second)
	bad.setConnectErr(nil)
	recovered, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bad"}, recovered)
	assert.Equal(t, []string{"bad"}, rescanned)
}

func TestRecoveryRunOncePanics(t *testing.T) {
	bad := newFakeHost("bad")
	bad.connectErr = errors.New("down")
	m, clk := newManager(bad)
	_ = m.AddHost(context.Background(), remoteSpec("bad"))
	clk.Advance(time.Hour)
	bad.setConnectErr(nil)

	s := NewRecoverySupervisor(m, time.Millisecond, time.Millisecond, func(ctx context.Context, name string) error {
		panic("rescan exploded")
	})
	_, err := s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "rescan exploded")
}

func TestRecoveryRunStopsOnCancel(t *testing.T) {
	m, _ := newManager()
	s := NewRecoverySupervisor(m, time.Millisecond, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("recovery loop did not stop")
	}
}
