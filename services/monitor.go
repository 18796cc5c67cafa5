package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"docker-monitor/internal/caddy"
	"docker-monitor/internal/config"
	"docker-monitor/internal/dockerhost"
	"docker-monitor/internal/labels"
	"docker-monitor/internal/logger"
	"docker-monitor/internal/models"

	"golang.org/x/sync/errgroup"
)

var ErrNoHostConnected = errors.New("no docker hosts could be connected")

type Intervals struct {
	Recovery      time.Duration
	RecoveryError time.Duration
	EventError    time.Duration
	SyncTick      time.Duration
	Sync          time.Duration
	HealthCheck   time.Duration
}

func IntervalsFromConfig(cfg *config.AppConfig) Intervals {
	return Intervals{
		Recovery:      config.Seconds(cfg.Interval.Recovery),
		RecoveryError: config.Seconds(cfg.Interval.RecoveryError),
		EventError:    config.Seconds(cfg.Interval.EventError),
		SyncTick:      config.Seconds(cfg.Interval.SyncTick),
		Sync:          config.Seconds(cfg.Caddy.SyncInterval),
		HealthCheck:   config.Seconds(cfg.Interval.HealthCheck),
	}
}

/**
 * Monitor 把主机事件、标签处理和caddy同步串起来
 * @property {*HostManager} hosts - 主机注册表
 * @property {*Inventory} inventory - 带服务标签的容器
 * @property {*caddy.Reconciler} reconciler - caddy未启用时为nil
 */
type Monitor struct {
	Version string

	specs      []config.HostSpec
	hosts      *HostManager
	inventory  *Inventory
	processor  *labels.Processor
	reconciler *caddy.Reconciler
	recovery   *RecoverySupervisor
	intervals  Intervals
	startTime  time.Time

	syncNow chan struct{}

	mu      sync.Mutex
	group   *errgroup.Group
	ctx     context.Context
	streams map[string]context.CancelFunc
}

/**
 * Create the monitor from the application configuration
 * @param {*config.AppConfig} cfg - Loaded configuration
 * @param {HostFactory} factory - Creates host connections, DefaultHostFactory in production
 * @returns {*Monitor} Monitor ready to Start
 */
func NewMonitor(cfg *config.AppConfig, factory HostFactory) (*Monitor, error) {
	m := &Monitor{
		specs:     cfg.Hosts(),
		hosts:     NewHostManager(factory),
		inventory: NewInventory(),
		processor: labels.NewProcessor(cfg.Docker.LabelPrefix, nil),
		intervals: IntervalsFromConfig(cfg),
		startTime: time.Now(),
		syncNow:   make(chan struct{}, 1),
		streams:   make(map[string]context.CancelFunc),
	}
	if cfg.Caddy.Enabled {
		rec, err := caddy.NewReconciler(caddy.OptionsFromConfig(&cfg.Caddy), m.processor)
		if err != nil {
			return nil, err
		}
		rec.OnAPICall = observeAdminCall
		m.reconciler = rec
		managedRoutes.Set(float64(len(rec.ManagedRoutes())))
	}
	m.recovery = NewRecoverySupervisor(m.hosts, m.intervals.Recovery, m.intervals.RecoveryError, m.onRecovered)
	return m, nil
}

func (m *Monitor) Hosts() *HostManager           { return m.hosts }
func (m *Monitor) Inventory() *Inventory         { return m.inventory }
func (m *Monitor) Processor() *labels.Processor  { return m.processor }
func (m *Monitor) Reconciler() *caddy.Reconciler { return m.reconciler }
func (m *Monitor) StartTime() time.Time          { return m.startTime }

/**
 * Connect hosts, scan them and start background loops
 * @param {context.Context} ctx - Cancelling it stops every loop and event stream
 * @returns {error} ErrNoHostConnected when no host could be connected
 * @description
 * - Caddy startup recovery runs after the initial scan, its failure is not fatal
 * - Loops: recovery supervisor, caddy sync, connection health check, one event stream per host
 */
func (m *Monitor) Start(ctx context.Context) error {
	logger.Info("Starting Docker Monitor...")
	for _, spec := range m.specs {
		if err := m.hosts.AddHost(ctx, spec); err != nil {
			logger.Warnf("Initial connection to host '%s' failed: %v", spec.Name, err)
		}
	}
	connected := m.hosts.Connected()
	if len(connected) == 0 {
		return ErrNoHostConnected
	}
	logger.Infof("Connected to %d/%d Docker hosts", len(connected), len(m.specs))

	for _, name := range connected {
		if err := m.scanHost(ctx, name); err != nil {
			logger.Errorf("Error scanning containers on host '%s': %v", name, err)
		}
	}
	logger.Infof("Initial scan complete. Monitoring %d containers across %d hosts", m.inventory.Count(), len(m.specs))

	if m.reconciler != nil {
		if err := m.reconciler.StartupRecovery(ctx, m.inventory.Snapshot()); err != nil {
			syncRuns.WithLabelValues("failure").Inc()
		} else {
			syncRuns.WithLabelValues("success").Inc()
		}
		managedRoutes.Set(float64(len(m.reconciler.ManagedRoutes())))
	}

	group, gctx := errgroup.WithContext(ctx)
	m.mu.Lock()
	m.group = group
	m.ctx = gctx
	m.mu.Unlock()

	group.Go(func() error { return m.recovery.Run(gctx) })
	group.Go(func() error { return m.healthLoop(gctx) })
	if m.reconciler != nil {
		group.Go(func() error { return m.syncLoop(gctx) })
	}
	for _, name := range connected {
		m.startStream(name)
	}

	logger.Infof("Docker Monitor started: %d hosts connected, %d hosts failed, %d containers monitored",
		len(connected), len(m.specs)-len(connected), m.inventory.Count())
	return nil
}

// Wait 等待所有后台循环退出，然后断开主机
func (m *Monitor) Wait() error {
	m.mu.Lock()
	group := m.group
	m.mu.Unlock()
	var err error
	if group != nil {
		err = group.Wait()
	}
	if serr := m.hosts.Shutdown(); serr != nil {
		logger.Warnf("Error closing docker hosts: %v", serr)
	}
	logger.Info("Docker Monitor stopped")
	return err
}

// scanHost 重新列出主机上的容器并替换库存中该主机的条目
func (m *Monitor) scanHost(ctx context.Context, name string) error {
	conn, ok := m.hosts.Connection(name)
	if !ok {
		return config.ErrHostNotFound
	}
	records, err := conn.ListContainers(ctx)
	if err != nil {
		// 连接层回调已经记录过的断开不会重复计数
		if ce, ok := dockerhost.AsConnError(err); ok && ce.IsConnectionLoss() {
			m.hosts.RecordLoss(name, err)
		}
		return err
	}
	hostIP := m.hosts.HostIP(name)
	logger.Infof("Host '%s': Found %d total containers", name, len(records))

	var found []*models.MonitoredContainer
	for _, rec := range records {
		mc, err := m.processor.ProcessContainer(rec, hostIP)
		if err != nil {
			logger.Warnf("Container '%s' on '%s': %v", rec.Name, name, err)
		}
		if mc != nil {
			found = append(found, mc)
			logger.Debugf("Found container on '%s': %s with service labels", name, mc.Name)
		}
	}
	if dropped := m.inventory.ReplaceHost(name, found); dropped > 0 {
		logger.Infof("Host '%s': dropped %d containers that no longer exist", name, dropped)
	}
	logger.Infof("Host '%s': Found %d containers with service labels", name, len(found))
	return nil
}

func (m *Monitor) onRecovered(ctx context.Context, name string) error {
	err := m.scanHost(ctx, name)
	m.startStream(name)
	m.RequestSync()
	return err
}

/**
 * (Re)start the event stream of a host
 * @param {string} name - Host name
 * @description
 * - A running stream of the same host is cancelled first
 * - A connection loss records the error so the recovery supervisor takes over
 * - Other stream failures restart the stream after EventError
 */
func (m *Monitor) startStream(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.group == nil {
		return
	}
	if cancel, ok := m.streams[name]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.streams[name] = cancel

	m.group.Go(func() error {
		defer cancel()
		conn, ok := m.hosts.Connection(name)
		if !ok {
			return nil
		}
		for {
			err := conn.StreamEvents(ctx, func(ev models.ContainerEvent) {
				m.HandleEvent(ctx, ev)
			})
			if ctx.Err() != nil {
				return nil
			}
			// 连接层回调可能已经把主机标记为failed
			if h, _ := m.hosts.Host(name); h.Status != models.HostConnected {
				return nil
			}
			if err != nil && !conn.TestConnection(ctx) {
				m.hosts.RecordLoss(name, err)
				return nil
			}
			logger.Warnf("Event stream for host '%s' ended (%v), restarting in %s", name, err, m.intervals.EventError)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(m.intervals.EventError):
			}
		}
	})
}

/**
 * Apply one container event to the inventory
 * @param {context.Context} ctx - Bounds the detail lookup
 * @param {models.ContainerEvent} ev - Event from a host stream
 * @description
 * - create/start/restart refetch the container and upsert it
 * - stop/kill/die only update the status, destroy removes the entry
 * - stop-family and destroy events request an immediate sync
 */
func (m *Monitor) HandleEvent(ctx context.Context, ev models.ContainerEvent) {
	if ev.ContainerID == "" {
		return
	}
	containerEvents.WithLabelValues(ev.HostName, ev.Action).Inc()
	key := models.ContainerKey(ev.HostName, ev.ContainerID)
	logger.Debugf("Container event from '%s': %s for %.12s", ev.HostName, ev.Action, ev.ContainerID)

	switch ev.Action {
	case "create", "start", "restart":
		m.refreshContainer(ctx, ev.HostName, ev.ContainerID)
	case "stop", "kill", "die":
		if name, ok := m.inventory.UpdateStatus(key, ev.Action); ok {
			logger.Infof("Updated container on '%s': %s -> %s", ev.HostName, name, ev.Action)
		}
		m.RequestSync()
	case "destroy":
		if mc, ok := m.inventory.Remove(key); ok {
			logger.Infof("Removed container from '%s': %s (%s)", ev.HostName, mc.Name, ev.Action)
		}
		m.RequestSync()
	}
}

func (m *Monitor) refreshContainer(ctx context.Context, host, id string) {
	conn, ok := m.hosts.Connection(host)
	if !ok {
		return
	}
	rec, err := conn.GetContainerDetail(ctx, id)
	if err != nil {
		logger.Errorf("Error processing container %.12s on '%s': %v", id, host, err)
		return
	}
	key := models.ContainerKey(host, id)
	if rec == nil {
		logger.Warnf("Could not get details for container %.12s on '%s'", id, host)
		return
	}
	mc, err := m.processor.ProcessContainer(*rec, m.hosts.HostIP(host))
	if err != nil {
		logger.Warnf("Container '%s' on '%s': %v", rec.Name, host, err)
	}
	if mc == nil {
		if _, ok := m.inventory.Remove(key); ok {
			logger.Infof("Container %.12s on '%s' no longer has service labels", id, host)
		}
		return
	}
	m.inventory.Upsert(mc)
	logger.Infof("Added/Updated container on '%s': %s", host, mc.Name)
}

// RequestSync 让同步循环在下一个tick立即同步
func (m *Monitor) RequestSync() {
	select {
	case m.syncNow <- struct{}{}:
	default:
	}
}

// SyncOnce 立即同步一次caddy
func (m *Monitor) SyncOnce(ctx context.Context) error {
	if m.reconciler == nil {
		return nil
	}
	_, err := m.reconciler.Sync(ctx, m.inventory.Snapshot())
	syncRuns.WithLabelValues(resultLabel(err)).Inc()
	managedRoutes.Set(float64(len(m.reconciler.ManagedRoutes())))
	return err
}

// syncLoop 每个tick检查一次，距上次同步超过间隔或收到请求时同步
func (m *Monitor) syncLoop(ctx context.Context) error {
	logger.Infof("Starting Caddy sync loop (interval: %s)", m.intervals.Sync)
	tick := m.intervals.SyncTick
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	last := time.Now()
	pending := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.syncNow:
			pending = true
		case <-ticker.C:
			if !pending && time.Since(last) < m.intervals.Sync {
				continue
			}
			if err := m.SyncOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Errorf("Error syncing with Caddy: %v", err)
			}
			last = time.Now()
			pending = false
		}
	}
}

// healthLoop 定期测试已连接的主机
func (m *Monitor) healthLoop(ctx context.Context) error {
	if m.intervals.HealthCheck <= 0 {
		return nil
	}
	ticker := time.NewTicker(m.intervals.HealthCheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for name, ok := range m.hosts.TestAll(ctx) {
				if !ok {
					logger.Debugf("Host '%s' is not connected", name)
				}
			}
		}
	}
}

/**
 * Health summary for the API
 * @returns {models.HealthResponse} Status is unhealthy when no host is connected,
 * degraded when some host failed
 */
func (m *Monitor) Health() models.HealthResponse {
	hosts := m.hosts.Hosts()
	counts := models.HostCounts{Total: len(hosts)}
	for _, h := range hosts {
		switch h.Status {
		case models.HostConnected:
			counts.Connected++
		case models.HostFailed:
			counts.Failed++
		}
	}
	status := "healthy"
	if counts.Connected == 0 {
		status = "unhealthy"
	} else if counts.Failed > 0 {
		status = "degraded"
	}

	resp := models.HealthResponse{
		Version:          m.Version,
		StartTime:        m.startTime.Format(time.RFC3339),
		Status:           status,
		Uptime:           time.Since(m.startTime).Truncate(time.Second).String(),
		Hosts:            counts,
		Containers:       m.inventory.Count(),
		PersistentErrors: len(m.hosts.ErrorDetails().Errors),
		Metrics: models.Metrics{
			TotalRequests: GetTotalRequestCount(),
			ErrorRequests: GetTotalErrorCount(),
		},
	}
	if m.reconciler != nil {
		st := m.reconciler.Status()
		resp.Caddy = &models.CaddyHealth{Available: st.Available, ManagedRoutes: len(st.ManagedRoutes)}
	}
	return resp
}

// Ready 至少一个主机已连接
func (m *Monitor) Ready() error {
	if len(m.hosts.Connected()) == 0 {
		return ErrNoHostConnected
	}
	return nil
}
