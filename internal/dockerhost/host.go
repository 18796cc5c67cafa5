package dockerhost

import (
	"context"
	"fmt"
	"time"

	"docker-monitor/internal/config"
	"docker-monitor/internal/models"
)

/**
 * HostConnection 与一个docker引擎交互的能力集合
 * @description
 * - Connect 失败时返回 *ConnError，其余操作的失败也以 *ConnError 描述
 * - StreamEvents 阻塞运行，直到底层事件流结束或ctx被取消
 * - GetContainerDetail 在容器不存在时返回 (nil, nil)
 */
type HostConnection interface {
	Name() string
	Kind() string
	Connect(ctx context.Context) error
	TestConnection(ctx context.Context) bool
	ListContainers(ctx context.Context) ([]models.ContainerRecord, error)
	GetContainerDetail(ctx context.Context, id string) (*models.ContainerRecord, error)
	StreamEvents(ctx context.Context, onEvent func(models.ContainerEvent)) error
	ResolveIP(ctx context.Context) string
	Close() error
}

// Options 创建主机连接所需的参数
type Options struct {
	Spec                  config.HostSpec
	LocalHostIP           string
	ConnectTimeout        int
	DiagnoseTimeout       int
	CommandTimeout        int
	StrictHostKeyChecking string
	EventRestartDelay     time.Duration
	SSHBinary             string
	Capture               CaptureChain
	// 运行过程中发现连接已断开时回调，主机注册表据此把主机标记为failed
	OnConnectionLost func(err *ConnError)
}

// OptionsFromConfig 从全局配置构造Options
func OptionsFromConfig(cfg *config.AppConfig, spec config.HostSpec) Options {
	return Options{
		Spec:                  spec,
		LocalHostIP:           cfg.Docker.LocalHostIP,
		ConnectTimeout:        cfg.SSH.ConnectTimeout,
		DiagnoseTimeout:       cfg.SSH.DiagnoseTimeout,
		CommandTimeout:        cfg.SSH.CommandTimeout,
		StrictHostKeyChecking: cfg.SSH.StrictHostKeyChecking,
		EventRestartDelay:     config.Seconds(cfg.Interval.EventRestart),
	}
}

/**
 * Create a host connection for the configured kind
 * @param {Options} opts - Host spec and transport settings
 * @returns {HostConnection} Local or remote variant, not yet connected
 * @returns {error} ErrUnknownHostKind for anything but local/remote
 */
func NewHost(opts Options) (HostConnection, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10
	}
	if opts.DiagnoseTimeout <= 0 {
		opts.DiagnoseTimeout = 15
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30
	}
	if opts.EventRestartDelay <= 0 {
		opts.EventRestartDelay = 5 * time.Second
	}
	switch opts.Spec.Kind {
	case config.KindLocal:
		return newLocalHost(opts), nil
	case config.KindRemote, "ssh":
		return newRemoteHost(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHostKind, opts.Spec.Kind)
	}
}
