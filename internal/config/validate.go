package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"docker-monitor/internal/env"
)

// ValidationResult 配置检查结果，Errors非空时不能启动
type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

/**
 * Validate configuration values
 * @returns {ValidationResult} Hard errors and advisory warnings
 * @description
 * - Ports must be within 1..65535
 * - Caddy intervals, retry attempts and retry delay must be at least 1
 * - Caddy admin URL is required when caddy is enabled
 * - Warns when no hosts are configured, when SSH hosts are used, and when
 *   a localhost admin URL is used from inside a container
 */
func (c *AppConfig) Validate() ValidationResult {
	var r ValidationResult

	if port := listenPort(c.Server.Address); port != 0 && (port < 1 || port > 65535) {
		r.Errors = append(r.Errors, fmt.Sprintf("Invalid API port %d. Must be between 1 and 65535", port))
	}
	if c.SSH.Port < 1 || c.SSH.Port > 65535 {
		r.Errors = append(r.Errors, fmt.Sprintf("Invalid SSH port %d. Must be between 1 and 65535", c.SSH.Port))
	}
	if c.Caddy.SyncInterval < 1 {
		r.Errors = append(r.Errors, fmt.Sprintf("Invalid caddy sync interval %d. Must be at least 1 second", c.Caddy.SyncInterval))
	}
	if c.Caddy.RetryAttempts < 1 {
		r.Errors = append(r.Errors, fmt.Sprintf("Invalid caddy retry attempts %d. Must be at least 1", c.Caddy.RetryAttempts))
	}
	if c.Caddy.RetryDelay < 1 {
		r.Errors = append(r.Errors, fmt.Sprintf("Invalid caddy retry delay %d. Must be at least 1 second", c.Caddy.RetryDelay))
	}
	if c.Caddy.Enabled && strings.TrimSpace(c.Caddy.AdminURL) == "" {
		r.Errors = append(r.Errors, "Caddy is enabled but no admin URL is configured")
	}

	sshHosts := ParseSSHHosts(c.Docker.SSHHosts)
	if !c.Docker.Local && len(sshHosts) == 0 {
		r.Warnings = append(r.Warnings, "No docker hosts configured, defaulting to the local host")
	}
	if len(sshHosts) > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("SSH hosts configured: %d hosts. Ensure SSH keys are properly configured", len(sshHosts)))
	}
	for _, entry := range c.DuplicateHosts() {
		r.Warnings = append(r.Warnings, fmt.Sprintf("SSH host entry '%s' ignored: a host with the same name is already configured", entry))
	}
	if c.Caddy.Enabled && env.InDocker && IsLoopbackURL(c.Caddy.AdminURL) {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Caddy admin URL %s points at localhost while running in a container; use the host gateway address instead", c.Caddy.AdminURL))
	}
	return r
}

// IsLoopbackURL 判断URL是否指向本机
func IsLoopbackURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func listenPort(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return -1
	}
	return n
}

// Summary 配置摘要，用于启动日志和 config show
type Summary struct {
	Server struct {
		Address string `json:"address"`
	} `json:"server"`
	Log struct {
		Level   string `json:"level"`
		Path    string `json:"path"`
		Console bool   `json:"console"`
	} `json:"log"`
	Docker struct {
		LocalEnabled  bool     `json:"localEnabled"`
		SSHHostsCount int      `json:"sshHostsCount"`
		Hosts         []string `json:"hosts"`
		LabelPrefix   string   `json:"labelPrefix"`
	} `json:"docker"`
	SSH struct {
		User string `json:"user"`
		Port int    `json:"port"`
	} `json:"ssh"`
	Caddy struct {
		Enabled      bool   `json:"enabled"`
		AdminURL     string `json:"adminUrl,omitempty"`
		StateFile    string `json:"stateFile,omitempty"`
		SyncInterval int    `json:"syncInterval,omitempty"`
	} `json:"caddy"`
	InDocker bool `json:"inDocker"`
}

func (c *AppConfig) Summary() Summary {
	var s Summary
	s.Server.Address = c.Server.Address
	s.Log.Level = c.Log.Level
	s.Log.Path = c.Log.Path
	s.Log.Console = c.Log.Console
	s.Docker.LocalEnabled = c.Docker.Local
	s.Docker.SSHHostsCount = len(ParseSSHHosts(c.Docker.SSHHosts))
	for _, h := range c.Hosts() {
		s.Docker.Hosts = append(s.Docker.Hosts, h.Name)
	}
	s.Docker.LabelPrefix = c.Docker.LabelPrefix
	s.SSH.User = c.SSH.User
	s.SSH.Port = c.SSH.Port
	s.Caddy.Enabled = c.Caddy.Enabled
	if c.Caddy.Enabled {
		s.Caddy.AdminURL = c.Caddy.AdminURL
		s.Caddy.StateFile = c.Caddy.StateFile
		s.Caddy.SyncInterval = c.Caddy.SyncInterval
	}
	s.InDocker = env.InDocker
	return s
}
