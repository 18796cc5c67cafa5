package dockerhost

import (
	"context"
	"strings"
	"sync"
	"time"

	"docker-monitor/internal/config"
	"docker-monitor/internal/env"
	"docker-monitor/internal/logger"
	"docker-monitor/internal/models"
	"docker-monitor/internal/utils"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// 地址探测，测试中替换
var (
	runningInDocker = func() bool { return env.InDocker }
	defaultGateway  = utils.DefaultGateway
	outboundIP      = utils.OutboundIP
)

// LocalHost 通过本机docker socket访问的引擎
type LocalHost struct {
	opts Options
	mu   sync.Mutex
	cli  *client.Client
}

func newLocalHost(opts Options) *LocalHost {
	return &LocalHost{opts: opts}
}

func (h *LocalHost) Name() string { return h.opts.Spec.Name }
func (h *LocalHost) Kind() string { return config.KindLocal }

func (h *LocalHost) client() (*client.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cli == nil {
		return nil, ErrNotConnected
	}
	return h.cli, nil
}

func (h *LocalHost) classify(err error) *ConnError {
	msg := err.Error()
	lower := strings.ToLower(msg)
	kind := ErrUnknown
	switch {
	case client.IsErrConnectionFailed(err), strings.Contains(lower, "cannot connect to the docker daemon"):
		kind = ErrDaemonDown
	case strings.Contains(lower, "permission denied"):
		kind = ErrPermission
		msg += ". The user may need to be in the docker group"
	case strings.Contains(lower, "deadline exceeded"), strings.Contains(lower, "timeout"):
		kind = ErrTimeout
	}
	return &ConnError{Host: h.Name(), Kind: kind, Message: msg}
}

/**
 * Connect to the local docker daemon
 * @param {context.Context} ctx - Bounds the ping
 * @returns {error} *ConnError when the daemon cannot be reached
 * @description
 * - Uses DOCKER_HOST and friends from the environment
 * - Negotiates the API version with the daemon
 */
func (h *LocalHost) Connect(ctx context.Context) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return h.classify(err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, config.Seconds(h.opts.ConnectTimeout))
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return h.classify(err)
	}

	h.mu.Lock()
	old := h.cli
	h.cli = cli
	h.mu.Unlock()
	if old != nil {
		old.Close()
	}
	logger.Infof("Successfully connected to local Docker host '%s'", h.Name())
	return nil
}

func (h *LocalHost) TestConnection(ctx context.Context) bool {
	cli, err := h.client()
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, config.Seconds(h.opts.ConnectTimeout))
	defer cancel()
	_, err = cli.Ping(ctx)
	return err == nil
}

func (h *LocalHost) inspect(ctx context.Context, cli *client.Client, id string) (*models.ContainerRecord, error) {
	_, raw, err := cli.ContainerInspectWithRaw(ctx, id, false)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, nil
		}
		return nil, h.classify(err)
	}
	return RecordFromInspect(raw, h.Name(), "local")
}

/**
 * List all containers, running or not, with full inspect details
 * @param {context.Context} ctx - Request context
 * @returns {[]models.ContainerRecord} One record per container
 * @returns {error} *ConnError when the daemon call fails
 */
func (h *LocalHost) ListContainers(ctx context.Context) ([]models.ContainerRecord, error) {
	cli, err := h.client()
	if err != nil {
		return nil, err
	}
	containers, err := cli.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return nil, h.classify(err)
	}

	records := make([]models.ContainerRecord, 0, len(containers))
	for _, c := range containers {
		rec, err := h.inspect(ctx, cli, c.ID)
		if err != nil {
			logger.Errorf("Failed to inspect container %s on '%s': %v", shortID(c.ID), h.Name(), err)
			continue
		}
		if rec == nil {
			// 列出之后被删除
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

func (h *LocalHost) GetContainerDetail(ctx context.Context, id string) (*models.ContainerRecord, error) {
	cli, err := h.client()
	if err != nil {
		return nil, err
	}
	return h.inspect(ctx, cli, id)
}

/**
 * Stream container lifecycle events until the stream ends or ctx is cancelled
 * @param {context.Context} ctx - Cancellation
 * @param {func(models.ContainerEvent)} onEvent - Called for each container event
 * @returns {error} ctx.Err() on cancellation, otherwise the classified stream error
 */
func (h *LocalHost) StreamEvents(ctx context.Context, onEvent func(models.ContainerEvent)) error {
	cli, err := h.client()
	if err != nil {
		return err
	}
	logger.Infof("Starting real-time event monitoring for local host '%s'", h.Name())

	msgs, errs := cli.Events(ctx, types.EventsOptions{
		Filters: filters.NewArgs(filters.Arg("type", "container")),
	})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return &ConnError{Host: h.Name(), Kind: ErrUnknown, Message: "docker event stream closed"}
			}
			id := msg.Actor.ID
			if id == "" {
				continue
			}
			ts := time.Now()
			if msg.TimeNano > 0 {
				ts = time.Unix(0, msg.TimeNano)
			}
			onEvent(models.ContainerEvent{
				HostName:    h.Name(),
				ContainerID: id,
				Action:      string(msg.Action),
				Time:        ts,
			})
		case err := <-errs:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Errorf("Error monitoring Docker events on local host '%s': %v", h.Name(), err)
			return h.classify(err)
		}
	}
}

/**
 * Resolve the address other hosts use to reach this one
 * @param {context.Context} ctx - Bounds the gateway lookup
 * @returns {string} IP address, empty when nothing could be determined
 * @description
 * - An explicit local_host_ip override wins when it is a valid IPv4 address
 * - Inside a container the default-route gateway is the docker host
 * - Otherwise the outbound interface address is used
 */
func (h *LocalHost) ResolveIP(ctx context.Context) string {
	if strings.TrimSpace(h.opts.LocalHostIP) != "" {
		ip, ok := utils.ParseIPv4(h.opts.LocalHostIP)
		if ok {
			logger.Debugf("Using explicit local IP override: %s", ip)
			return ip
		}
		if ip != "" {
			logger.Warnf("Invalid IP format in local_host_ip: '%s', falling back to auto-detection", ip)
		}
	}

	if runningInDocker() {
		gw, err := defaultGateway(ctx)
		if err == nil {
			logger.Debugf("Detected docker host gateway IP: %s", gw)
			return gw
		}
		logger.Debugf("Failed to detect default gateway: %v", err)
	}

	ip, err := outboundIP()
	if err != nil {
		logger.Warnf("Could not determine local host IP: %v", err)
		return ""
	}
	if utils.IsBridgeAddress(ip) {
		logger.Warnf("Detected IP %s looks like a docker bridge address; set local_host_ip to the host's LAN address", ip)
	}
	return ip
}

func (h *LocalHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cli == nil {
		return nil
	}
	err := h.cli.Close()
	h.cli = nil
	logger.Infof("Disconnected from local Docker host '%s'", h.Name())
	return err
}
