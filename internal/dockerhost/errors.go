package dockerhost

import (
	"errors"
	"fmt"
)

// ErrorKind 连接错误分类
type ErrorKind string

const (
	ErrHostKey        ErrorKind = "host_key"
	ErrPasswordPrompt ErrorKind = "password_prompt"
	ErrAuth           ErrorKind = "auth"
	ErrRefused        ErrorKind = "refused"
	ErrUnreachable    ErrorKind = "unreachable"
	ErrDockerMissing  ErrorKind = "docker_missing"
	ErrDaemonDown     ErrorKind = "daemon_down"
	ErrPermission     ErrorKind = "permission"
	ErrNoSuchObject   ErrorKind = "not_found"
	ErrTimeout        ErrorKind = "timeout"
	ErrUnknown        ErrorKind = "unknown"
)

var (
	ErrUnknownHostKind = errors.New("unknown docker host kind")
	ErrNotConnected    = errors.New("docker host is not connected")
)

/**
 * ConnError 与docker主机交互失败的分类结果
 * @property {string} host - 主机名
 * @property {ErrorKind} kind - 错误分类
 * @property {string} message - 可直接展示给用户的诊断信息
 * @property {string} output - 捕获到的原始输出
 */
type ConnError struct {
	Host    string
	Kind    ErrorKind
	Message string
	Output  string
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("%s: %s", e.Host, e.Message)
}

// IsConnectionLoss 该错误是否意味着主机已不可用
func (e *ConnError) IsConnectionLoss() bool {
	switch e.Kind {
	case ErrHostKey, ErrPasswordPrompt, ErrAuth, ErrRefused, ErrUnreachable, ErrTimeout:
		return true
	}
	return false
}

// AsConnError 从错误链中取出ConnError
func AsConnError(err error) (*ConnError, bool) {
	var ce *ConnError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
