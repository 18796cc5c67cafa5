package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSSHHosts(t *testing.T) {
	raw := "web1 web2 # staging boxes\n\n  admin@db1\nweb1\n# all commented\n"
	assert.Equal(t, []string{"web1", "web2", "admin@db1"}, ParseSSHHosts(raw))
	assert.Empty(t, ParseSSHHosts("  \n # nothing\n"))
}

func TestHostsDefaultsToLocal(t *testing.T) {
	cfg := AppConfig{}
	hosts := cfg.Hosts()
	require.Len(t, hosts, 1)
	assert.Equal(t, LocalHostName, hosts[0].Name)
	assert.Equal(t, KindLocal, hosts[0].Kind)
}

func TestHostsRemoteUserOverride(t *testing.T) {
	cfg := AppConfig{
		Docker: DockerConfig{Local: true, SSHHosts: "node1 deploy@node2"},
		SSH:    SSHConfig{User: "root", Port: 22},
	}
	hosts := cfg.Hosts()
	require.Len(t, hosts, 3)
	assert.Equal(t, HostSpec{Name: "node1", Kind: KindRemote, User: "root", Address: "node1", Port: 22}, hosts[1])
	assert.Equal(t, "deploy", hosts[2].User)
	assert.Equal(t, "node2", hosts[2].Name)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  address: ":9090"
docker:
  local: false
  ssh_hosts: "alpha beta"
caddy:
  enabled: true
  retry_attempts: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.False(t, cfg.Docker.Local)
	assert.Equal(t, 5, cfg.Caddy.RetryAttempts)
	// 未配置的项使用默认值
	assert.Equal(t, 5, cfg.Caddy.RetryDelay)
	assert.Equal(t, "snadboy.", cfg.Docker.LabelPrefix)
	assert.Equal(t, "srv0", cfg.Caddy.ServerName)
	assert.Len(t, cfg.Hosts(), 2)
}

func TestLoadConfigLegacyEnv(t *testing.T) {
	t.Setenv("LABEL_PREFIX", "acme.")
	t.Setenv("DOCKER_MONITOR_SSH_USER", "ops")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "acme.", cfg.Docker.LabelPrefix)
	assert.Equal(t, "ops", cfg.SSH.User)
}

func TestValidate(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	r := cfg.Validate()
	assert.True(t, r.Valid(), "defaults must validate: %v", r.Errors)

	cfg.SSH.Port = 70000
	cfg.Caddy.SyncInterval = 0
	cfg.Caddy.RetryAttempts = 0
	cfg.Caddy.RetryDelay = 0
	cfg.Caddy.Enabled = true
	cfg.Caddy.AdminURL = ""
	cfg.Docker.SSHHosts = "a b"
	r = cfg.Validate()
	assert.Len(t, r.Errors, 5)
	assert.Contains(t, r.Warnings[0], "SSH hosts configured: 2")
}

func TestHostsKeepFirstEntryPerName(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Docker.Local = true
	cfg.Docker.SSHHosts = "alice@web1 bob@web1 web2\nlocal"

	hosts := cfg.Hosts()
	require.Len(t, hosts, 3)
	assert.Equal(t, LocalHostName, hosts[0].Name)
	assert.Equal(t, "web1", hosts[1].Name)
	assert.Equal(t, "alice", hosts[1].User)
	assert.Equal(t, "web2", hosts[2].Name)
	assert.Equal(t, []string{"bob@web1", "local"}, cfg.DuplicateHosts())

	r := cfg.Validate()
	assert.True(t, r.Valid())
	var dup []string
	for _, w := range r.Warnings {
		if strings.Contains(w, "ignored") {
			dup = append(dup, w)
		}
	}
	require.Len(t, dup, 2)
	assert.Contains(t, dup[0], "'bob@web1'")
}

func TestIsLoopbackURL(t *testing.T) {
	assert.True(t, IsLoopbackURL("http://localhost:2019"))
	assert.True(t, IsLoopbackURL("http://127.0.0.1:2019"))
	assert.False(t, IsLoopbackURL("http://172.17.0.1:2019"))
	assert.False(t, IsLoopbackURL("::bad"))
}
