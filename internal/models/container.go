package models

import (
	"encoding/json"
	"time"
)

// ContainerRecord 从主机读取到的容器快照，每次扫描或事件都会重建
type ContainerRecord struct {
	ID       string            `json:"id"`
	ShortID  string            `json:"shortId"`
	Name     string            `json:"name"`
	Status   string            `json:"status"`
	Image    string            `json:"image"`
	Labels   map[string]string `json:"labels"`
	Attrs    json.RawMessage   `json:"-"` //docker inspect的原始输出
	HostName string            `json:"hostName"`
	Source   string            `json:"source"` //local/ssh
}

type NetworkInfo struct {
	IP        string `json:"ip"`
	Gateway   string `json:"gateway,omitempty"`
	MAC       string `json:"mac,omitempty"`
	NetworkID string `json:"networkId,omitempty"`
}

type PortBinding struct {
	ContainerPort string `json:"containerPort"`
	Protocol      string `json:"protocol"`
	HostIP        string `json:"hostIp"`
	HostPort      int    `json:"hostPort"`
}

/**
 * MonitoredContainer 库存中带有服务标签的容器
 * @property {string} key - host:containerId，库存中唯一
 * @property {string} hostIp - 所在主机的可路由IP，可能为空
 * @property {map[string]string} serviceLabels - 匹配前缀的标签
 * @property {map[string]NetworkInfo} networks - 有IP的网络
 * @property {string} primaryIp - 第一个非空的网络IP
 */
type MonitoredContainer struct {
	ContainerRecord
	Key           string                 `json:"key"`
	HostIP        string                 `json:"hostIp,omitempty"`
	ServiceLabels map[string]string      `json:"serviceLabels"`
	Networks      map[string]NetworkInfo `json:"networks"`
	Ports         []PortBinding          `json:"ports"`
	PrimaryIP     string                 `json:"primaryIp,omitempty"`
	Env           map[string]string      `json:"env,omitempty"`
	Created       string                 `json:"created,omitempty"`
	StartedAt     string                 `json:"startedAt,omitempty"`
	LastUpdated   time.Time              `json:"lastUpdated"`
}

// ContainerKey 库存主键
func ContainerKey(hostName, containerID string) string {
	return hostName + ":" + containerID
}

// ContainerEvent docker events 中与容器相关的事件
type ContainerEvent struct {
	HostName    string    `json:"hostName"`
	ContainerID string    `json:"containerId"`
	Action      string    `json:"action"`
	Time        time.Time `json:"time"`
}

type ContainerSummary struct {
	HostIP     string   `json:"hostIp"`
	Hosts      []string `json:"hosts"`
	Containers []string `json:"containers"`
	Count      int      `json:"count"`
}
