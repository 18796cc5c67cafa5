package models

import "time"

type HostStatus string

const (
	HostDisconnected HostStatus = "disconnected"
	HostConnecting   HostStatus = "connecting"
	HostConnected    HostStatus = "connected"
	HostFailed       HostStatus = "failed"
)

// HostError 主机最近一次失败的记录
type HostError struct {
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

/**
 * Host 被监控的docker主机状态
 * @property {string} name - 主机名(本机为local)
 * @property {string} kind - local/remote
 * @property {HostStatus} status - disconnected/connecting/connected/failed
 * @property {*HostError} lastError - 最近的错误，status=failed时一定存在
 * @property {uint} consecutiveFailures - 连续失败次数，只在连接成功时清零
 * @property {string} ipAddress - 路由使用的主机IP
 * @property {*ProcessDetail} eventStream - 事件流进程状态，仅远程主机
 */
type Host struct {
	Name                string     `json:"name"`
	Kind                string     `json:"kind"`
	Status              HostStatus `json:"status"`
	LastError           *HostError `json:"lastError,omitempty"`
	ConsecutiveFailures uint       `json:"consecutiveFailures"`
	IPAddress           string     `json:"ipAddress,omitempty"`
	ConnectedAt         time.Time  `json:"connectedAt,omitempty"`
	// 远程主机的docker events进程
	EventStream *ProcessDetail `json:"eventStream,omitempty"`
}

// HostErrorDetail 错误详情，附带退避信息
type HostErrorDetail struct {
	Host                string     `json:"host"`
	Status              HostStatus `json:"status"`
	Error               string     `json:"error"`
	Kind                string     `json:"kind"`
	Timestamp           time.Time  `json:"timestamp"`
	ConsecutiveFailures uint       `json:"consecutiveFailures"`
	BackoffSeconds      int        `json:"backoffSeconds"`
	NextRetryAfter      time.Time  `json:"nextRetryAfter"`
}

type HostErrorsResponse struct {
	Errors             []HostErrorDetail `json:"errors"`
	RecoveryCandidates []string          `json:"recoveryCandidates"`
	Timestamp          time.Time         `json:"timestamp"`
}
