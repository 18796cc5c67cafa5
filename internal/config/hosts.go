package config

import (
	"strings"
)

const (
	KindLocal  = "local"
	KindRemote = "remote"

	LocalHostName = "local"
)

// HostSpec 一个被监控的docker主机
type HostSpec struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	User    string `json:"user,omitempty"`
	Address string `json:"address,omitempty"`
	Port    int    `json:"port,omitempty"`
}

/**
 * Parse the SSH host list
 * @param {string} raw - Hosts separated by whitespace or newlines
 * @returns {[]string} Host entries in configured order, duplicates removed
 * @description
 * - Everything after '#' on a line is a comment
 * - Entries may carry their own user as "user@host"
 * @example
 * ParseSSHHosts("web1 web2 # staging\nuser@db1") // ["web1", "web2", "user@db1"]
 */
func ParseSSHHosts(raw string) []string {
	var hosts []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(raw, "\n") {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		for _, entry := range strings.Fields(line) {
			if seen[entry] {
				continue
			}
			seen[entry] = true
			hosts = append(hosts, entry)
		}
	}
	return hosts
}

/**
 * Build the list of hosts to monitor
 * @returns {[]HostSpec} Local host (if enabled) followed by SSH hosts
 * @description
 * - Falls back to the local host when nothing is configured
 * - A host name is used once; later entries for the same host are dropped, see DuplicateHosts
 */
func (c *AppConfig) Hosts() []HostSpec {
	specs, _ := c.hostSpecs()
	return specs
}

// DuplicateHosts 因主机名重复被Hosts()忽略的条目
func (c *AppConfig) DuplicateHosts() []string {
	_, skipped := c.hostSpecs()
	return skipped
}

func (c *AppConfig) hostSpecs() ([]HostSpec, []string) {
	var specs []HostSpec
	var skipped []string
	seen := make(map[string]bool)
	if c.Docker.Local {
		specs = append(specs, HostSpec{Name: LocalHostName, Kind: KindLocal})
		seen[LocalHostName] = true
	}
	for _, entry := range ParseSSHHosts(c.Docker.SSHHosts) {
		user := c.SSH.User
		addr := entry
		if at := strings.LastIndex(entry, "@"); at >= 0 {
			user = entry[:at]
			addr = entry[at+1:]
		}
		if seen[addr] {
			skipped = append(skipped, entry)
			continue
		}
		seen[addr] = true
		specs = append(specs, HostSpec{
			Name:    addr,
			Kind:    KindRemote,
			User:    user,
			Address: addr,
			Port:    c.SSH.Port,
		})
	}
	if len(specs) == 0 {
		specs = append(specs, HostSpec{Name: LocalHostName, Kind: KindLocal})
	}
	return specs, skipped
}
