package models

import "time"

// ProbeResponse /healthz 和 /readiness 的响应
type ProbeResponse struct {
	Status          string   `json:"status" example:"healthy"`
	Reason          string   `json:"reason,omitempty" example:"no_docker_hosts"`
	ConnectedHosts  int      `json:"connectedHosts"`
	TotalContainers int      `json:"totalContainers,omitempty"`
	FailedHosts     []string `json:"failedHosts,omitempty"`
}

type ContainersResponse struct {
	Containers []*MonitoredContainer `json:"containers"`
	Count      int                   `json:"count"`
}

// ContainerIPs 容器的主机IP和docker网络IP
type ContainerIPs struct {
	HostIP          string                 `json:"hostIp,omitempty"`
	DockerHostName  string                 `json:"dockerHostName"`
	PrimaryDockerIP string                 `json:"primaryDockerIp,omitempty"`
	AllDockerIPs    []string               `json:"allDockerIps"`
	Networks        map[string]NetworkInfo `json:"networks"`
	Status          string                 `json:"status"`
}

type SchemaResponse struct {
	Services    []ServiceSchemaInfo `json:"services"`
	Supported   []string            `json:"supported"`
	LabelPrefix string              `json:"labelPrefix"`
	Timestamp   time.Time           `json:"timestamp"`
}

type ServiceSchemaInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Required    []string          `json:"required"`
	Optional    map[string]string `json:"optional"`
	Implemented bool              `json:"implemented"`
	Examples    map[string]string `json:"examples,omitempty"`
}
