package dockerhost

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"docker-monitor/internal/config"
	"docker-monitor/internal/logger"
	"docker-monitor/internal/models"
	"docker-monitor/internal/proc"
	"docker-monitor/internal/utils"
)

// RemoteHost 通过ssh执行docker命令访问的远程引擎
type RemoteHost struct {
	opts      Options
	chain     CaptureChain
	mu        sync.Mutex
	connected bool
	events    *proc.StreamProcess
}

func newRemoteHost(opts Options) *RemoteHost {
	chain := opts.Capture
	if len(chain) == 0 {
		chain = DefaultCaptureChain()
	}
	return &RemoteHost{opts: opts, chain: chain}
}

func (h *RemoteHost) Name() string { return h.opts.Spec.Name }
func (h *RemoteHost) Kind() string { return config.KindRemote }

func (h *RemoteHost) target(timeoutSeconds int) SSHTarget {
	return SSHTarget{
		Binary:                h.opts.SSHBinary,
		User:                  h.opts.Spec.User,
		Host:                  h.opts.Spec.Address,
		Port:                  h.opts.Spec.Port,
		ConnectTimeout:        h.opts.ConnectTimeout,
		StrictHostKeyChecking: h.opts.StrictHostKeyChecking,
		Timeout:               config.Seconds(timeoutSeconds),
	}
}

func (h *RemoteHost) isConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// connectionLost 标记连接断开并通知注册表
func (h *RemoteHost) connectionLost(ce *ConnError) {
	h.mu.Lock()
	h.connected = false
	h.mu.Unlock()
	if h.opts.OnConnectionLost != nil {
		h.opts.OnConnectionLost(ce)
	}
}

/**
 * Check the remote engine with "docker version" through the capture chain
 * @param {context.Context} ctx - Cancels the check
 * @returns {error} *ConnError with a diagnosis when no strategy succeeded
 * @description
 * - Each strategy gets the diagnose timeout (15s by default)
 * - The first strategy that succeeds or prints anything decides the outcome
 */
func (h *RemoteHost) Connect(ctx context.Context) error {
	logger.Debugf("Testing SSH Docker connection to '%s'", h.Name())
	target := h.target(h.opts.DiagnoseTimeout)
	result, strategy := h.chain.Run(ctx, target, []string{"docker", "version", "--format", "json"})
	if result.Success {
		h.mu.Lock()
		h.connected = true
		h.mu.Unlock()
		logger.Infof("Successfully connected to SSH Docker host '%s' (%s)", h.Name(), strategy)
		return nil
	}

	h.mu.Lock()
	h.connected = false
	h.mu.Unlock()
	ce := DiagnoseConnect(target.Host, result, h.opts.DiagnoseTimeout)
	ce.Host = h.Name()
	logger.Errorf("Failed to connect to SSH Docker host '%s': %s", h.Name(), ce.Message)
	return ce
}

// commandArgs 非交互执行docker子命令的ssh参数
func (h *RemoteHost) commandArgs(docker ...string) []string {
	t := h.target(h.opts.CommandTimeout)
	args := append(t.baseArgs(),
		"-o", "ServerAliveInterval=30",
		"-o", "ServerAliveCountMax=3",
		"-o", "BatchMode=yes",
		t.Destination(), "docker")
	return append(args, docker...)
}

/**
 * Run a docker subcommand on the remote host
 * @param {context.Context} ctx - Parent context, the command timeout applies on top
 * @param {...string} docker - Docker arguments
 * @returns {string} Trimmed stdout
 * @returns {error} ErrNotConnected, or a classified *ConnError
 * @description
 * - A timeout or a connection-level failure marks the host lost
 */
func (h *RemoteHost) runDocker(ctx context.Context, docker ...string) (string, error) {
	if !h.isConnected() {
		return "", ErrNotConnected
	}
	t := h.target(h.opts.CommandTimeout)
	logger.Debugf("Executing SSH command on '%s': docker %s", h.Name(), strings.Join(docker, " "))
	r := runCommand(ctx, t.Timeout, nil, t.binary(), h.commandArgs(docker...)...)

	if r.timedOut {
		partial := strings.TrimSpace(r.stderr)
		if partial == "" {
			partial = strings.TrimSpace(r.stdout)
		}
		if partial == "" {
			partial = "No output"
		}
		ce := &ConnError{
			Host:    h.Name(),
			Kind:    ErrTimeout,
			Message: fmt.Sprintf("Command timeout (%ds). Partial output: %s", h.opts.CommandTimeout, partial),
			Output:  partial,
		}
		logger.Errorf("SSH Docker command timeout on '%s': %s", h.Name(), ce.Message)
		h.connectionLost(ce)
		return "", ce
	}
	if r.err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		ce := DiagnoseCommand(h.Name(), docker, r.stderr, r.stdout)
		if ce.Kind != ErrNoSuchObject {
			logger.Errorf("SSH Docker command failed on '%s': %s", h.Name(), ce.Message)
		}
		if IsConnectionLoss(r.stderr) {
			h.connectionLost(ce)
		}
		return "", ce
	}
	return strings.TrimSpace(r.stdout), nil
}

func (h *RemoteHost) TestConnection(ctx context.Context) bool {
	_, err := h.runDocker(ctx, "version", "--format", "json")
	return err == nil
}

/**
 * List all containers with per-container inspect details
 * @param {context.Context} ctx - Request context
 * @returns {[]models.ContainerRecord} Records for every container that could be inspected
 * @returns {error} Error when the listing itself failed
 * @description
 * - Malformed lines are logged and skipped
 * - Uses the full id from inspect so keys match event ids
 */
func (h *RemoteHost) ListContainers(ctx context.Context) ([]models.ContainerRecord, error) {
	out, err := h.runDocker(ctx, "ps", "--all", "--format", "json")
	if err != nil {
		return nil, err
	}

	var records []models.ContainerRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		entry, err := parsePsLine(line)
		if err != nil {
			logger.Errorf("Error parsing container JSON line from '%s': %v", h.Name(), err)
			continue
		}
		rec, err := h.GetContainerDetail(ctx, entry.ID)
		if err != nil {
			if !h.isConnected() {
				return records, err
			}
			continue
		}
		if rec == nil {
			continue
		}
		if rec.Image == "" {
			rec.Image = entry.Image
		}
		records = append(records, *rec)
	}
	return records, nil
}

func (h *RemoteHost) GetContainerDetail(ctx context.Context, id string) (*models.ContainerRecord, error) {
	out, err := h.runDocker(ctx, "inspect", id)
	if err != nil {
		if ce, ok := AsConnError(err); ok && ce.Kind == ErrNoSuchObject {
			return nil, nil
		}
		return nil, err
	}
	rec, err := RecordFromInspect([]byte(out), h.Name(), "ssh")
	if err != nil {
		if err == errEmptyInspect {
			return nil, nil
		}
		logger.Errorf("Error parsing container inspect JSON from '%s': %v", h.Name(), err)
		return nil, err
	}
	return rec, nil
}

/**
 * Stream container events through a long-running "docker events" over ssh
 * @param {context.Context} ctx - Cancellation
 * @param {func(models.ContainerEvent)} onEvent - Called for each container event
 * @returns {error} ctx.Err() on cancellation, or the *ConnError that ended the stream
 * @description
 * - The ssh process is restarted after EventRestartDelay when it exits
 * - A connection-level failure ends the stream and marks the host lost
 */
func (h *RemoteHost) StreamEvents(ctx context.Context, onEvent func(models.ContainerEvent)) error {
	if !h.isConnected() {
		return ErrNotConnected
	}
	logger.Infof("Starting real-time event monitoring for SSH host '%s'", h.Name())

	args := h.commandArgs("events", "--format", "json", "--filter", "type=container")
	sp := proc.NewStreamProcess("events@"+h.Name(), h.target(0).binary(), args)

	var lost *ConnError
	sp.SetWatcher(h.opts.EventRestartDelay, func(line string) {
		ev, ok, err := ParseEventLine(h.Name(), line)
		if err != nil {
			logger.Errorf("Error parsing SSH event JSON from '%s': %v", h.Name(), err)
			return
		}
		if ok {
			onEvent(ev)
		}
	}, func(stderr string, err error) bool {
		if IsConnectionLoss(stderr) {
			lost = DiagnoseCommand(h.Name(), []string{"events"}, stderr, "")
			return false
		}
		logger.Warnf("SSH Docker events process for '%s' exited (%v): %s", h.Name(), err, stderr)
		return true
	})

	h.mu.Lock()
	h.events = sp
	h.mu.Unlock()

	err := sp.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if lost != nil {
		h.connectionLost(lost)
		return lost
	}
	return err
}

// EventProcess 当前事件流进程的状态
func (h *RemoteHost) EventProcess() (models.ProcessDetail, bool) {
	h.mu.Lock()
	sp := h.events
	h.mu.Unlock()
	if sp == nil {
		return models.ProcessDetail{}, false
	}
	return sp.GetDetail(), true
}

/**
 * Resolve the remote host's IP address
 * @param {context.Context} ctx - Bounds name resolution
 * @returns {string} Literal IPv4 address, or the first IPv4 the name resolves to
 */
func (h *RemoteHost) ResolveIP(ctx context.Context) string {
	addr := h.opts.Spec.Address
	if ip, ok := utils.ParseIPv4(addr); ok {
		return ip
	}
	host := strings.TrimSpace(strings.SplitN(addr, "#", 2)[0])

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		logger.Warnf("Could not resolve SSH hostname '%s': %v", host, err)
		return ""
	}
	for _, ip := range ips {
		if v4 := ip.IP.To4(); v4 != nil {
			logger.Debugf("Resolved SSH hostname '%s' to IP: %s", host, v4)
			return v4.String()
		}
	}
	if len(ips) > 0 {
		return ips[0].IP.String()
	}
	return ""
}

func (h *RemoteHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = false
	logger.Infof("Disconnected from SSH Docker host '%s'", h.Name())
	return nil
}
