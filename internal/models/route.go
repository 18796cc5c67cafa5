package models

import (
	"encoding/json"
	"time"
)

// ManagedRoute 已经下发到反向代理的路由，持久化到状态文件
type ManagedRoute struct {
	RouteID       string          `json:"route_id"`
	ContainerKey  string          `json:"container_key"`
	ContainerName string          `json:"container_name"`
	ServiceName   string          `json:"service_name"`
	Domain        string          `json:"domain"`
	Upstream      string          `json:"upstream"`
	ProxyConfig   json.RawMessage `json:"proxy_config"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RouteState 状态文件内容
type RouteState struct {
	ManagedRoutes map[string]ManagedRoute `json:"managed_routes"`
	LastUpdated   time.Time               `json:"last_updated"`
	AdminURL      string                  `json:"admin_url"`
}

type SyncResult struct {
	Added    int       `json:"added"`
	Removed  int       `json:"removed"`
	Modified int       `json:"modified"`
	Attempts int       `json:"attempts"`
	Time     time.Time `json:"time"`
}

type CaddyStatus struct {
	Enabled         bool           `json:"enabled"`
	Available       bool           `json:"available"`
	AdminURL        string         `json:"adminUrl"`
	StateFile       string         `json:"stateFile"`
	ManagedRoutes   []ManagedRoute `json:"managedRoutes"`
	LastHealthCheck time.Time      `json:"lastHealthCheck,omitempty"`
	LastSync        *SyncResult    `json:"lastSync,omitempty"`
	LastSyncError   string         `json:"lastSyncError,omitempty"`
	RetryAttempts   int            `json:"retryAttempts"`
	RetryDelay      int            `json:"retryDelay"`
}
