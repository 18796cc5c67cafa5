package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"docker-monitor/internal/config"
	"docker-monitor/internal/dockerhost"
	"docker-monitor/internal/logger"
	"docker-monitor/internal/models"
)

const (
	backoffBase = 30 * time.Second
	backoffMax  = 300 * time.Second
	// 连续失败超过该次数视为严重错误
	criticalFailures = 3
)

// HostFactory 根据配置创建主机连接，onLost在运行中发现连接断开时调用
type HostFactory func(spec config.HostSpec, onLost func(*dockerhost.ConnError)) (dockerhost.HostConnection, error)

// DefaultHostFactory 使用全局配置中的ssh参数
func DefaultHostFactory(cfg *config.AppConfig) HostFactory {
	return func(spec config.HostSpec, onLost func(*dockerhost.ConnError)) (dockerhost.HostConnection, error) {
		opts := dockerhost.OptionsFromConfig(cfg, spec)
		opts.OnConnectionLost = onLost
		return dockerhost.NewHost(opts)
	}
}

/**
 * Backoff delay before the next reconnection attempt
 * @param {uint} failures - Consecutive failures of the host
 * @returns {time.Duration} min(30 * 2^failures, 300) seconds
 */
func Backoff(failures uint) time.Duration {
	delay := backoffBase
	for i := uint(0); i < failures; i++ {
		delay *= 2
		if delay >= backoffMax {
			return backoffMax
		}
	}
	return delay
}

type hostEntry struct {
	conn        dockerhost.HostConnection
	state       models.Host
	lastFailure time.Time
}

// HostManager 主机注册表，维护每个主机的连接状态机
type HostManager struct {
	mu      sync.RWMutex
	hosts   map[string]*hostEntry
	order   []string
	factory HostFactory
	now     func() time.Time
}

func NewHostManager(factory HostFactory) *HostManager {
	return &HostManager{
		hosts:   make(map[string]*hostEntry),
		factory: factory,
		now:     time.Now,
	}
}

/**
 * Register a host and connect to it right away
 * @param {context.Context} ctx - Bounds the connection attempt
 * @param {config.HostSpec} spec - Host from the configuration
 * @returns {error} Connection error; the host stays registered as failed
 */
func (m *HostManager) AddHost(ctx context.Context, spec config.HostSpec) error {
	m.mu.Lock()
	if _, ok := m.hosts[spec.Name]; ok {
		m.mu.Unlock()
		logger.Warnf("Host '%s' already registered", spec.Name)
		return nil
	}
	conn, err := m.factory(spec, func(ce *dockerhost.ConnError) {
		m.RecordLoss(spec.Name, ce)
	})
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.hosts[spec.Name] = &hostEntry{
		conn:  conn,
		state: models.Host{Name: spec.Name, Kind: conn.Kind(), Status: models.HostDisconnected},
	}
	m.order = append(m.order, spec.Name)
	m.mu.Unlock()

	return m.connect(ctx, spec.Name)
}

func (m *HostManager) entry(name string) (*hostEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.hosts[name]
	if !ok {
		return nil, config.ErrHostNotFound
	}
	return e, nil
}

func (m *HostManager) connect(ctx context.Context, name string) error {
	e, err := m.entry(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	e.state.Status = models.HostConnecting
	m.mu.Unlock()

	if err := e.conn.Connect(ctx); err != nil {
		m.RecordError(name, err)
		return err
	}
	ip := e.conn.ResolveIP(ctx)

	m.mu.Lock()
	e.state.Status = models.HostConnected
	e.state.ConsecutiveFailures = 0
	e.state.LastError = nil
	e.state.IPAddress = ip
	e.state.ConnectedAt = m.now()
	e.lastFailure = time.Time{}
	m.mu.Unlock()
	m.updateGauge()
	logger.Infof("Host '%s' connected (ip: %s)", name, ip)
	return nil
}

// Recover 对failed主机重新连接
func (m *HostManager) Recover(ctx context.Context, name string) error {
	return m.connect(ctx, name)
}

/**
 * Record a failure for a host
 * @param {string} name - Host name
 * @param {error} err - Failure, a *dockerhost.ConnError carries its kind
 * @description
 * - Moves the host to failed, increments consecutive failures and stamps the time
 */
func (m *HostManager) RecordError(name string, err error) {
	m.record(name, err, false)
}

/**
 * Record a connection loss noticed while the host was in use
 * @param {string} name - Host name
 * @param {error} err - Failure
 * @returns {bool} False when the host was no longer connected and nothing was recorded
 * @description
 * - The same loss can be reported by the connection callback and by the caller,
 *   only the first report counts
 */
func (m *HostManager) RecordLoss(name string, err error) bool {
	return m.record(name, err, true)
}

func (m *HostManager) record(name string, err error, onlyConnected bool) bool {
	if err == nil {
		return false
	}
	kind := string(dockerhost.ErrUnknown)
	if ce, ok := dockerhost.AsConnError(err); ok {
		kind = string(ce.Kind)
	}

	m.mu.Lock()
	e, ok := m.hosts[name]
	if !ok || (onlyConnected && e.state.Status != models.HostConnected) {
		m.mu.Unlock()
		return false
	}
	now := m.now()
	e.state.Status = models.HostFailed
	e.state.ConsecutiveFailures++
	e.state.LastError = &models.HostError{Message: err.Error(), Kind: kind, Timestamp: now}
	e.lastFailure = now
	failures := e.state.ConsecutiveFailures
	m.mu.Unlock()

	hostConnectFailures.WithLabelValues(name, kind).Inc()
	m.updateGauge()
	logger.Errorf("Host '%s' failed (#%d, next retry in %s): %v", name, failures, Backoff(failures), err)
	return true
}

/**
 * Test every connected host
 * @param {context.Context} ctx - Bounds the tests
 * @returns {map[string]bool} Host name to connectivity
 * @description
 * - A connected host that fails the test is moved to failed
 * - Hosts that are not connected report false without being tested
 */
func (m *HostManager) TestAll(ctx context.Context) map[string]bool {
	result := make(map[string]bool)
	for _, name := range m.names() {
		e, err := m.entry(name)
		if err != nil {
			continue
		}
		m.mu.RLock()
		connected := e.state.Status == models.HostConnected
		m.mu.RUnlock()
		if !connected {
			result[name] = false
			continue
		}
		ok := e.conn.TestConnection(ctx)
		result[name] = ok
		if !ok {
			// 连接测试失败时连接层可能已经通过回调记录了错误
			m.RecordLoss(name, &dockerhost.ConnError{Host: name, Kind: dockerhost.ErrUnknown, Message: "connection test failed"})
		}
	}
	return result
}

// RecoveryCandidates 退避时间已到的failed主机
func (m *HostManager) RecoveryCandidates() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	var names []string
	for _, name := range m.order {
		e := m.hosts[name]
		if e.state.Status != models.HostFailed {
			continue
		}
		if now.Sub(e.lastFailure) >= Backoff(e.state.ConsecutiveFailures) {
			names = append(names, name)
		}
	}
	return names
}

func (m *HostManager) names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Hosts 所有主机的状态快照，按注册顺序
func (m *HostManager) Hosts() []models.Host {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hosts := make([]models.Host, 0, len(m.order))
	for _, name := range m.order {
		hosts = append(hosts, m.hosts[name].snapshot())
	}
	return hosts
}

// eventProcessor 通过外部进程读取事件流的连接(远程主机)
type eventProcessor interface {
	EventProcess() (models.ProcessDetail, bool)
}

func (e *hostEntry) snapshot() models.Host {
	h := e.state
	if e.state.LastError != nil {
		le := *e.state.LastError
		h.LastError = &le
	}
	if ep, ok := e.conn.(eventProcessor); ok {
		if detail, running := ep.EventProcess(); running {
			h.EventStream = &detail
		}
	}
	return h
}

func (m *HostManager) Host(name string) (models.Host, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.hosts[name]
	if !ok {
		return models.Host{}, false
	}
	return e.snapshot(), true
}

func (m *HostManager) Connection(name string) (dockerhost.HostConnection, bool) {
	e, err := m.entry(name)
	if err != nil {
		return nil, false
	}
	return e.conn, true
}

// HostIP 主机的可路由地址，未解析时为空
func (m *HostManager) HostIP(name string) string {
	h, _ := m.Host(name)
	return h.IPAddress
}

// Connected 当前处于connected状态的主机
func (m *HostManager) Connected() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for _, name := range m.order {
		if m.hosts[name].state.Status == models.HostConnected {
			names = append(names, name)
		}
	}
	return names
}

// CriticalHosts 连续失败超过阈值的主机
func (m *HostManager) CriticalHosts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for _, name := range m.order {
		if m.hosts[name].state.ConsecutiveFailures > criticalFailures {
			names = append(names, name)
		}
	}
	return names
}

/**
 * Error details of every host that has a recorded failure
 * @returns {models.HostErrorsResponse} Errors with backoff and next retry time
 */
func (m *HostManager) ErrorDetails() models.HostErrorsResponse {
	resp := models.HostErrorsResponse{
		Errors:             []models.HostErrorDetail{},
		RecoveryCandidates: m.RecoveryCandidates(),
		Timestamp:          m.now(),
	}
	m.mu.RLock()
	for _, name := range m.order {
		e := m.hosts[name]
		if e.state.LastError == nil {
			continue
		}
		delay := Backoff(e.state.ConsecutiveFailures)
		resp.Errors = append(resp.Errors, models.HostErrorDetail{
			Host:                name,
			Status:              e.state.Status,
			Error:               e.state.LastError.Message,
			Kind:                e.state.LastError.Kind,
			Timestamp:           e.state.LastError.Timestamp,
			ConsecutiveFailures: e.state.ConsecutiveFailures,
			BackoffSeconds:      int(delay / time.Second),
			NextRetryAfter:      e.lastFailure.Add(delay),
		})
	}
	m.mu.RUnlock()
	sort.SliceStable(resp.Errors, func(i, j int) bool { return resp.Errors[i].Host < resp.Errors[j].Host })
	if resp.RecoveryCandidates == nil {
		resp.RecoveryCandidates = []string{}
	}
	return resp
}

func (m *HostManager) updateGauge() {
	connectedHosts.Set(float64(len(m.Connected())))
}

// Shutdown 关闭所有主机连接
func (m *HostManager) Shutdown() error {
	var errs []error
	for _, name := range m.names() {
		e, err := m.entry(name)
		if err != nil {
			continue
		}
		if err := e.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		m.mu.Lock()
		if e.state.Status == models.HostConnected {
			e.state.Status = models.HostDisconnected
		}
		m.mu.Unlock()
	}
	m.updateGauge()
	return errors.Join(errs...)
}
