package config

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"docker-monitor/internal/env"

	"github.com/spf13/viper"
)

/**
 * Server configuration parameters
 * @property {string} address - Server listening address (e.g. ":8080")
 * @property {string} mode - Application mode (debug/release/test)
 */
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Mode    string `mapstructure:"mode"`
}

/**
 * Logging configuration
 * @property {string} level - Log level (debug/info/warn/error)
 * @property {string} path - Log file path, "console" disables the file
 * @property {bool} console - Also write to stdout
 * @property {int} maxSize - Rotate when the file reaches this many megabytes
 * @property {int} maxBackups - Number of rotated files kept
 */
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Path       string `mapstructure:"path"`
	Console    bool   `mapstructure:"console"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
}

/**
 * Docker host discovery settings
 * @property {bool} local - Monitor the local docker engine
 * @property {string} sshHosts - Whitespace/newline separated SSH hosts, '#' starts a comment
 * @property {string} labelPrefix - Label prefix marking monitored services
 * @property {string} localHostIP - Override for the local host's routable IP
 */
type DockerConfig struct {
	Local       bool   `mapstructure:"local"`
	SSHHosts    string `mapstructure:"ssh_hosts"`
	LabelPrefix string `mapstructure:"label_prefix"`
	LocalHostIP string `mapstructure:"local_host_ip"`
}

type SSHConfig struct {
	User                  string `mapstructure:"user"`
	Port                  int    `mapstructure:"port"`
	ConnectTimeout        int    `mapstructure:"connect_timeout"`          //ssh -o ConnectTimeout
	DiagnoseTimeout       int    `mapstructure:"diagnose_timeout"`         //单个诊断策略的超时
	CommandTimeout        int    `mapstructure:"command_timeout"`          //docker子命令的超时
	StrictHostKeyChecking string `mapstructure:"strict_host_key_checking"` //诊断时使用的策略
}

/**
 * Caddy reverse-proxy integration
 * @property {bool} enabled - Reconcile routes against caddy
 * @property {string} adminURL - Caddy admin endpoint
 * @property {string} serverName - HTTP server under apps/http/servers holding the routes
 * @property {string} stateFile - Durable managed-route state
 * @property {int} syncInterval - Seconds between reconciliation passes
 * @property {int} retryAttempts - Attempts per reconciliation pass
 * @property {int} retryDelay - Seconds between attempts
 * @property {int} healthCacheTTL - Seconds a positive health probe is trusted
 * @property {int} requestTimeout - Seconds allowed per admin call
 */
type CaddyConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	AdminURL       string `mapstructure:"admin_url"`
	ServerName     string `mapstructure:"server_name"`
	StateFile      string `mapstructure:"state_file"`
	SyncInterval   int    `mapstructure:"sync_interval"`
	RetryAttempts  int    `mapstructure:"retry_attempts"`
	RetryDelay     int    `mapstructure:"retry_delay"`
	HealthCacheTTL int    `mapstructure:"health_cache_ttl"`
	HealthTimeout  int    `mapstructure:"health_timeout"`
	RequestTimeout int    `mapstructure:"request_timeout"`
}

// 后台循环的间隔(秒)
type IntervalConfig struct {
	Recovery      int `mapstructure:"recovery"`
	RecoveryError int `mapstructure:"recovery_error"`
	EventRestart  int `mapstructure:"event_restart"`
	EventError    int `mapstructure:"event_error"`
	SyncTick      int `mapstructure:"sync_tick"`
	HealthCheck   int `mapstructure:"health_check"`
}

var ErrHostNotFound = errors.New("host not found")

type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Docker   DockerConfig   `mapstructure:"docker"`
	SSH      SSHConfig      `mapstructure:"ssh"`
	Caddy    CaddyConfig    `mapstructure:"caddy"`
	Interval IntervalConfig `mapstructure:"interval"`
}

// 兼容旧版本的环境变量名
var legacyEnv = map[string]string{
	"log.level":            "LOG_LEVEL",
	"log.max_backups":      "LOG_MAX_COUNT",
	"docker.local":         "DOCKER_HOSTS_LOCAL",
	"docker.ssh_hosts":     "DOCKER_HOSTS_SSH",
	"docker.label_prefix":  "LABEL_PREFIX",
	"docker.local_host_ip": "LOCAL_HOST_IP",
	"ssh.user":             "SSH_USER",
	"ssh.port":             "SSH_PORT",
	"caddy.enabled":        "CADDY_ENABLED",
	"caddy.admin_url":      "CADDY_ADMIN_URL",
	"caddy.state_file":     "CADDY_STATE_FILE",
	"caddy.sync_interval":  "CADDY_SYNC_INTERVAL",
	"caddy.retry_attempts": "CADDY_RETRY_ATTEMPTS",
	"caddy.retry_delay":    "CADDY_RETRY_DELAY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", filepath.Join(filepath.Dir(env.DataDir), "logs", "docker-monitor.log"))
	v.SetDefault("log.console", true)
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 5)

	v.SetDefault("docker.local", true)
	v.SetDefault("docker.ssh_hosts", "")
	v.SetDefault("docker.label_prefix", "snadboy.")
	v.SetDefault("docker.local_host_ip", "")

	v.SetDefault("ssh.user", "root")
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.connect_timeout", 10)
	v.SetDefault("ssh.diagnose_timeout", 15)
	v.SetDefault("ssh.command_timeout", 30)
	v.SetDefault("ssh.strict_host_key_checking", "ask")

	v.SetDefault("caddy.enabled", false)
	v.SetDefault("caddy.admin_url", "http://localhost:2019")
	v.SetDefault("caddy.server_name", "srv0")
	v.SetDefault("caddy.state_file", filepath.Join(env.DataDir, "caddy-state.json"))
	v.SetDefault("caddy.sync_interval", 15)
	v.SetDefault("caddy.retry_attempts", 3)
	v.SetDefault("caddy.retry_delay", 5)
	v.SetDefault("caddy.health_cache_ttl", 30)
	v.SetDefault("caddy.health_timeout", 5)
	v.SetDefault("caddy.request_timeout", 10)

	v.SetDefault("interval.recovery", 10)
	v.SetDefault("interval.recovery_error", 30)
	v.SetDefault("interval.event_restart", 5)
	v.SetDefault("interval.event_error", 10)
	v.SetDefault("interval.sync_tick", 1)
	v.SetDefault("interval.health_check", 60)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("DOCKER_MONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		envName := "DOCKER_MONITOR_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, envName, name)
	}
}

/**
 * Load application configuration from YAML file and environment
 * @param {string} path - Explicit config file, empty to search the default locations
 * @returns {*AppConfig} Loaded configuration with defaults applied
 * @returns {error} Error if the file exists but cannot be parsed
 * @description
 * - Searches ".", "/etc/docker-monitor" and "$HOME/.docker-monitor" for config.yaml
 * - A missing file is not an error, defaults and environment still apply
 * - DOCKER_MONITOR_* variables override file values, legacy names are also honored
 */
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/docker-monitor")
		v.AddConfigPath("$HOME/.docker-monitor")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var Config AppConfig

/**
 * Reload the global configuration from an explicit file
 * @param {string} path - Config file path, empty for default search
 * @returns {error} Error if loading fails, the previous config stays active
 */
func ReloadConfig(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	Config = *cfg
	return nil
}

func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func init() {
	cfg, err := LoadConfig("")
	if err == nil {
		Config = *cfg
	}
}
