package proc

import (
	"context"
	"sync"
	"testing"
	"time"

	"docker-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamProcessDeliversLinesAndRestarts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var mu sync.Mutex
	var lines []string
	exits := 0

	sp := NewStreamProcess("echo", "sh", []string{"-c", "echo first; echo; echo second; echo oops >&2"})
	sp.SetWatcher(10*time.Millisecond, func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	}, func(stderr string, err error) bool {
		mu.Lock()
		defer mu.Unlock()
		exits++
		assert.Equal(t, "oops", stderr)
		return exits < 2
	})

	err := sp.Run(ctx)
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "first", "second"}, lines)
	assert.Equal(t, 2, exits)

	detail := sp.GetDetail()
	assert.Equal(t, 1, detail.RestartCount)
	assert.Equal(t, models.StatusStopped, detail.Status)
}

func TestStreamProcessStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{}, 1)
	sp := NewStreamProcess("sleeper", "sh", []string{"-c", "echo ready; sleep 30"})
	sp.SetWatcher(time.Hour, func(string) {
		select {
		case started <- struct{}{}:
		default:
		}
	}, nil)

	done := make(chan error, 1)
	go func() { done <- sp.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not start")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTailBufferKeepsEnd(t *testing.T) {
	var tb tailBuffer
	big := make([]byte, stderrTail+10)
	for i := range big {
		big[i] = 'a'
	}
	tb.Write(big)
	tb.Write([]byte("end"))
	s := tb.String()
	assert.Len(t, s, stderrTail)
	assert.Equal(t, "end", s[len(s)-3:])
}
