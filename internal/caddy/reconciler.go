package caddy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"docker-monitor/internal/config"
	"docker-monitor/internal/env"
	"docker-monitor/internal/labels"
	"docker-monitor/internal/logger"
	"docker-monitor/internal/models"
	"docker-monitor/internal/utils"

	"github.com/cenkalti/backoff/v5"
)

var ErrUnavailable = errors.New("caddy admin API unavailable")

// SyncError 重试次数用尽后仍未完成同步
type SyncError struct {
	Attempts int
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

type Options struct {
	AdminURL       string
	ServerName     string
	StateFile      string
	RetryAttempts  int
	RetryDelay     time.Duration
	HealthCacheTTL time.Duration
	HealthTimeout  time.Duration
	RequestTimeout time.Duration
}

func OptionsFromConfig(cfg *config.CaddyConfig) Options {
	return Options{
		AdminURL:       cfg.AdminURL,
		ServerName:     cfg.ServerName,
		StateFile:      cfg.StateFile,
		RetryAttempts:  cfg.RetryAttempts,
		RetryDelay:     config.Seconds(cfg.RetryDelay),
		HealthCacheTTL: config.Seconds(cfg.HealthCacheTTL),
		HealthTimeout:  config.Seconds(cfg.HealthTimeout),
		RequestTimeout: config.Seconds(cfg.RequestTimeout),
	}
}

// Diff 路由差异，每个列表按routeId排序
type Diff struct {
	ToAdd    []string
	ToRemove []string
	ToModify []string
}

func (d Diff) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 && len(d.ToModify) == 0
}

/**
 * Compare managed routes against the desired set
 * @param {map[string]models.ManagedRoute} managed - Routes currently applied
 * @param {map[string]models.ManagedRoute} desired - Routes the inventory asks for
 * @returns {Diff} Added, removed and modified route ids
 * @description
 * - A route is modified when its upstream or domain changed
 */
func ComputeDiff(managed, desired map[string]models.ManagedRoute) Diff {
	var d Diff
	for id, want := range desired {
		have, ok := managed[id]
		if !ok {
			d.ToAdd = append(d.ToAdd, id)
			continue
		}
		if have.Upstream != want.Upstream || have.Domain != want.Domain {
			d.ToModify = append(d.ToModify, id)
		}
	}
	for id := range managed {
		if _, ok := desired[id]; !ok {
			d.ToRemove = append(d.ToRemove, id)
		}
	}
	sort.Strings(d.ToAdd)
	sort.Strings(d.ToRemove)
	sort.Strings(d.ToModify)
	return d
}

// RouteID 路由在状态文件和diff中的主键
func RouteID(containerKey, service string) string {
	return "monitor-" + containerKey + "-" + service
}

// Reconciler 把库存中的服务声明同步成caddy路由
type Reconciler struct {
	opts      Options
	client    *AdminClient
	store     *StateStore
	processor *labels.Processor

	// OnAPICall 每次admin API调用后回调，用于统计
	OnAPICall func(op string, err error)

	syncMu sync.Mutex // 串行化Sync/StartupRecovery

	mu              sync.RWMutex
	managed         map[string]models.ManagedRoute
	available       bool
	lastHealthCheck time.Time
	lastSync        *models.SyncResult
	lastSyncErr     string
	now             func() time.Time
}

/**
 * Create the reconciler and load persisted routes
 * @param {Options} opts - Admin API, state file and retry settings
 * @param {*labels.Processor} processor - Groups and validates service labels
 * @returns {*Reconciler} Reconciler holding the routes from the state file
 */
func NewReconciler(opts Options, processor *labels.Processor) (*Reconciler, error) {
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.ServerName == "" {
		opts.ServerName = "srv0"
	}
	store := NewStateStore(opts.StateFile, opts.AdminURL)
	managed, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load state file %s: %w", opts.StateFile, err)
	}
	logger.Infof("Caddy state file: %s", opts.StateFile)
	return &Reconciler{
		opts:      opts,
		client:    NewAdminClient(opts.AdminURL, opts.ServerName, opts.RequestTimeout, opts.HealthTimeout),
		store:     store,
		processor: processor,
		managed:   managed,
		now:       time.Now,
	}, nil
}

// WarnLoopbackAdminURL 容器内使用localhost地址访问caddy时给出提示
func WarnLoopbackAdminURL(ctx context.Context, adminURL string) {
	if !env.InDocker || !config.IsLoopbackURL(adminURL) {
		logger.Infof("Caddy Admin API URL: %s", adminURL)
		return
	}
	logger.Errorf("Caddy Admin API URL is set to %s, this will not work inside a container", adminURL)
	gateway, err := utils.DefaultGateway(ctx)
	if err != nil {
		gateway = "172.17.0.1"
	}
	logger.Errorf("Use the host IP, a compose service name (http://caddy:2019) or the bridge gateway: DOCKER_MONITOR_CADDY_ADMIN_URL=http://%s:2019", gateway)
}

func (r *Reconciler) observe(op string, err error) {
	if r.OnAPICall != nil {
		r.OnAPICall(op, err)
	}
}

// CheckHealth 健康结果在HealthCacheTTL内复用，只缓存成功的结果
func (r *Reconciler) CheckHealth(ctx context.Context) bool {
	r.mu.RLock()
	cached := r.available && r.now().Sub(r.lastHealthCheck) < r.opts.HealthCacheTTL
	r.mu.RUnlock()
	if cached {
		return true
	}

	err := r.client.Health(ctx)
	r.observe("health", err)
	if err != nil {
		logger.Warnf("Caddy Admin API health check failed: %v", err)
	}

	r.mu.Lock()
	r.available = err == nil
	r.lastHealthCheck = r.now()
	r.mu.Unlock()
	return err == nil
}

/**
 * Compute the routes the inventory asks for
 * @param {[]*models.MonitoredContainer} containers - Inventory snapshot
 * @returns {map[string]models.ManagedRoute} Desired routes by route id
 * @description
 * - Only running containers with a host IP produce routes
 * - Invalid declarations are skipped, other declarations on the same container still count
 */
func (r *Reconciler) GenerateDesiredRoutes(containers []*models.MonitoredContainer) map[string]models.ManagedRoute {
	routes := make(map[string]models.ManagedRoute)
	for _, c := range containers {
		if c.Status != "running" {
			continue
		}
		if c.HostIP == "" {
			logger.Warnf("Container '%s': No host IP available, skipping Caddy routes", c.Name)
			continue
		}
		decls := r.processor.GroupIntoDeclarations(c.ServiceLabels)
		for service, props := range decls {
			cfg, err := r.processor.ValidateFor(c.Key, service, props)
			if err != nil {
				logger.Warnf("Container '%s': service '%s' rejected: %v", c.Name, service, err)
				continue
			}
			upstream := fmt.Sprintf("%s:%d", c.HostIP, cfg.Port())
			id := RouteID(c.Key, service)
			routes[id] = models.ManagedRoute{
				RouteID:       id,
				ContainerKey:  c.Key,
				ContainerName: c.Name,
				ServiceName:   service,
				Domain:        cfg["domain"],
				Upstream:      upstream,
				ProxyConfig:   BuildProxyConfig(cfg, upstream).JSON(),
				CreatedAt:     r.now(),
			}
			logger.Debugf("Container '%s': Generated route %s: %s -> %s", c.Name, id, cfg["domain"], upstream)
		}
	}
	return routes
}

func (r *Reconciler) addRoute(ctx context.Context, route models.ManagedRoute) error {
	err := r.client.AddRoute(ctx, route.ProxyConfig)
	r.observe("add", err)
	if err != nil {
		return fmt.Errorf("add route %s: %w", route.RouteID, err)
	}
	logger.Infof("Added Caddy route %s: %s -> %s", route.RouteID, route.Domain, route.Upstream)
	return nil
}

// removeRoute 按已下发的域名查找并删除，caddy中不存在也算成功
func (r *Reconciler) removeRoute(ctx context.Context, route models.ManagedRoute) error {
	err := r.client.RemoveRoute(ctx, route.Domain)
	if errors.Is(err, ErrRouteNotFound) {
		r.observe("remove", nil)
		logger.Warnf("Could not find Caddy route %s with domain %s", route.RouteID, route.Domain)
		return nil
	}
	r.observe("remove", err)
	if err != nil {
		return fmt.Errorf("remove route %s: %w", route.RouteID, err)
	}
	logger.Infof("Removed Caddy route %s for domain %s", route.RouteID, route.Domain)
	return nil
}

func (r *Reconciler) snapshotManaged() map[string]models.ManagedRoute {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.ManagedRoute, len(r.managed))
	for id, route := range r.managed {
		out[id] = route
	}
	return out
}

// 单次同步，任何一次API失败都让本次尝试失败，已执行的部分不回滚
func (r *Reconciler) attempt(ctx context.Context, containers []*models.MonitoredContainer) (*models.SyncResult, error) {
	if !r.CheckHealth(ctx) {
		return nil, ErrUnavailable
	}
	managed := r.snapshotManaged()
	desired := r.GenerateDesiredRoutes(containers)
	diff := ComputeDiff(managed, desired)

	var errs []error
	for _, id := range diff.ToRemove {
		if err := r.removeRoute(ctx, managed[id]); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range diff.ToModify {
		if err := r.removeRoute(ctx, managed[id]); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.addRoute(ctx, desired[id]); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range diff.ToAdd {
		if err := r.addRoute(ctx, desired[id]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	// 未变化的路由保留原来的创建时间
	for id, route := range desired {
		if have, ok := managed[id]; ok && have.Upstream == route.Upstream && have.Domain == route.Domain {
			route.CreatedAt = have.CreatedAt
			desired[id] = route
		}
	}
	r.mu.Lock()
	r.managed = desired
	r.mu.Unlock()
	if err := r.store.Save(desired); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}

	result := &models.SyncResult{
		Added:    len(diff.ToAdd),
		Removed:  len(diff.ToRemove),
		Modified: len(diff.ToModify),
		Time:     r.now(),
	}
	if !diff.Empty() {
		logger.Infof("Successfully synced Caddy routes: +%d -%d ~%d", result.Added, result.Removed, result.Modified)
	}
	return result, nil
}

/**
 * Bring caddy in line with the inventory
 * @param {context.Context} ctx - Cancels the retry loop and in-flight API calls
 * @param {[]*models.MonitoredContainer} containers - Inventory snapshot
 * @returns {*models.SyncResult} Changes applied by the successful attempt
 * @returns {error} *SyncError after RetryAttempts failed attempts
 * @description
 * - Each attempt probes health, recomputes the diff and applies remove, modify, add in order
 * - The state file changes only after a fully successful attempt
 */
func (r *Reconciler) Sync(ctx context.Context, containers []*models.MonitoredContainer) (*models.SyncResult, error) {
	r.syncMu.Lock()
	defer r.syncMu.Unlock()

	attempts := 0
	op := func() (*models.SyncResult, error) {
		attempts++
		return r.attempt(ctx, containers)
	}
	notify := func(err error, next time.Duration) {
		logger.Warnf("Caddy sync attempt %d/%d failed: %v, retrying in %s", attempts, r.opts.RetryAttempts, err, next)
	}
	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.opts.RetryDelay)),
		backoff.WithMaxTries(uint(r.opts.RetryAttempts)),
		backoff.WithNotify(notify),
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		serr := &SyncError{Attempts: attempts, Err: err}
		r.lastSyncErr = serr.Error()
		logger.Errorf("Failed to sync Caddy routes: %v", serr)
		return nil, serr
	}
	result.Attempts = attempts
	r.lastSync = result
	r.lastSyncErr = ""
	return result, nil
}

/**
 * Drop routes left behind by containers that no longer exist, then sync
 * @param {[]*models.MonitoredContainer} containers - Inventory right after the first scan
 * @description
 * - Orphans are removed from caddy and from the managed map even when the API call fails
 */
func (r *Reconciler) StartupRecovery(ctx context.Context, containers []*models.MonitoredContainer) error {
	logger.Info("Performing Caddy startup recovery...")
	present := make(map[string]bool, len(containers))
	for _, c := range containers {
		present[c.Key] = true
	}

	r.syncMu.Lock()
	managed := r.snapshotManaged()
	var orphans []string
	for id, route := range managed {
		if !present[route.ContainerKey] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		logger.Infof("Removing orphaned route %s", id)
		if err := r.removeRoute(ctx, managed[id]); err != nil {
			logger.Warnf("Orphaned route %s: %v", id, err)
		}
		delete(managed, id)
	}
	if len(orphans) > 0 {
		r.mu.Lock()
		r.managed = managed
		r.mu.Unlock()
		if err := r.store.Save(managed); err != nil {
			logger.Errorf("Error saving state file: %v", err)
		}
	}
	r.syncMu.Unlock()

	if _, err := r.Sync(ctx, containers); err != nil {
		logger.Error("Caddy startup recovery failed")
		return err
	}
	logger.Info("Caddy startup recovery completed successfully")
	return nil
}

// ManagedRoutes 按routeId排序
func (r *Reconciler) ManagedRoutes() []models.ManagedRoute {
	r.mu.RLock()
	defer r.mu.RUnlock()
	routes := make([]models.ManagedRoute, 0, len(r.managed))
	for _, route := range r.managed {
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].RouteID < routes[j].RouteID })
	return routes
}

func (r *Reconciler) Status() models.CaddyStatus {
	routes := r.ManagedRoutes()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return models.CaddyStatus{
		Enabled:         true,
		Available:       r.available,
		AdminURL:        r.opts.AdminURL,
		StateFile:       r.opts.StateFile,
		ManagedRoutes:   routes,
		LastHealthCheck: r.lastHealthCheck,
		LastSync:        r.lastSync,
		LastSyncError:   r.lastSyncErr,
		RetryAttempts:   r.opts.RetryAttempts,
		RetryDelay:      int(r.opts.RetryDelay / time.Second),
	}
}
