package services

import (
	"context"
	"fmt"
	"time"

	"docker-monitor/internal/logger"
)

// RecoverySupervisor 按退避时间重连failed主机
type RecoverySupervisor struct {
	hosts         *HostManager
	interval      time.Duration
	errorInterval time.Duration
	onRecovered   func(ctx context.Context, name string) error
}

/**
 * Create the recovery supervisor
 * @param {*HostManager} hosts - Host registry
 * @param {time.Duration} interval - Poll interval between passes
 * @param {time.Duration} errorInterval - Wait after a pass that failed internally
 * @param {func} onRecovered - Rescans the host and restarts its event stream
 */
func NewRecoverySupervisor(hosts *HostManager, interval, errorInterval time.Duration, onRecovered func(ctx context.Context, name string) error) *RecoverySupervisor {
	return &RecoverySupervisor{
		hosts:         hosts,
		interval:      interval,
		errorInterval: errorInterval,
		onRecovered:   onRecovered,
	}
}

// RunOnce 一轮恢复，返回恢复成功的主机
func (s *RecoverySupervisor) RunOnce(ctx context.Context) (recovered []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovery pass panicked: %v", r)
		}
	}()

	for _, name := range s.hosts.RecoveryCandidates() {
		if ctx.Err() != nil {
			return recovered, nil
		}
		logger.Infof("Attempting recovery for host '%s'", name)
		if rerr := s.hosts.Recover(ctx, name); rerr != nil {
			recoveryAttempts.WithLabelValues(name, "failure").Inc()
			h, _ := s.hosts.Host(name)
			logger.Warnf("Recovery failed for host '%s' (attempt #%d)", name, h.ConsecutiveFailures)
			continue
		}
		recoveryAttempts.WithLabelValues(name, "success").Inc()
		logger.Infof("Host '%s' recovered, rescanning containers...", name)
		if s.onRecovered != nil {
			if rerr := s.onRecovered(ctx, name); rerr != nil {
				logger.Errorf("Error rescanning containers on recovered host '%s': %v", name, rerr)
			}
		}
		recovered = append(recovered, name)
	}
	return recovered, nil
}

// Run 阻塞运行直到ctx取消
func (s *RecoverySupervisor) Run(ctx context.Context) error {
	logger.Info("Starting connection recovery loop")
	for {
		wait := s.interval
		if _, err := s.RunOnce(ctx); err != nil {
			logger.Errorf("Error in connection recovery loop: %v", err)
			wait = s.errorInterval
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}
