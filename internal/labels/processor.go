package labels

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"docker-monitor/internal/logger"
	"docker-monitor/internal/models"
)

// Declarations 服务名 -> 属性表
type Declarations map[string]map[string]string

// Processor 识别带前缀的容器标签，并把容器投影成库存条目
type Processor struct {
	prefix   string
	registry *Registry

	mu     sync.Mutex
	warned map[string]struct{}
}

// 已告警条目的上限，超过后清空重新计
const maxWarnedEntries = 4096

// NewProcessor prefix缺少结尾的"."时自动补上
func NewProcessor(prefix string, registry *Registry) *Processor {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix != "" && !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Processor{prefix: prefix, registry: registry, warned: make(map[string]struct{})}
}

func (p *Processor) Prefix() string {
	return p.prefix
}

func (p *Processor) Registry() *Registry {
	return p.registry
}

// matches 按字节长度比较前缀，保证 key[len(p.prefix):] 切在前缀之后
func (p *Processor) matches(key string) bool {
	return len(key) >= len(p.prefix) && strings.EqualFold(key[:len(p.prefix)], p.prefix)
}

func (p *Processor) HasServiceLabels(labels map[string]string) bool {
	for key := range labels {
		if p.matches(key) {
			return true
		}
	}
	return false
}

// ExtractServiceLabels 返回匹配前缀的标签，键和值都保持原样
func (p *Processor) ExtractServiceLabels(labels map[string]string) map[string]string {
	out := make(map[string]string)
	for key, value := range labels {
		if p.matches(key) {
			out[key] = value
		}
	}
	return out
}

/**
 * Group prefixed labels into service declarations
 * @param {map[string]string} labels - Labels that carry the prefix
 * @returns {Declarations} Service name to property map, both lower-cased
 * @description
 * - <prefix><service>.<property...>=value
 * - Keys with fewer than two segments after the prefix are dropped
 */
func (p *Processor) GroupIntoDeclarations(labels map[string]string) Declarations {
	decls := make(Declarations)
	for _, key := range sortedKeys(labels) {
		if !p.matches(key) {
			continue
		}
		rest := key[len(p.prefix):]
		parts := strings.Split(rest, ".")
		if len(parts) < 2 || parts[0] == "" {
			logger.Warnf("Invalid label format: %s (expected %s<service>.<property>)", key, p.prefix)
			continue
		}
		service := strings.ToLower(parts[0])
		prop := strings.ToLower(strings.Join(parts[1:], "."))
		if decls[service] == nil {
			decls[service] = make(map[string]string)
		}
		decls[service][prop] = labels[key]
	}
	return decls
}

// Validate 校验单个服务声明，未知属性只记录告警
func (p *Processor) Validate(service string, props map[string]string) (ServiceConfig, error) {
	return p.ValidateFor("", service, props)
}

/**
 * Validate a service declaration owned by a container
 * @param {string} owner - Container key; empty disables de-duplication
 * @param {string} service - Service name from the label
 * @param {map[string]string} props - Property name to raw value
 * @returns {ServiceConfig} Properties with defaults filled in
 * @returns {error} *ValidationError describing every problem found
 * @description
 * - Unknown properties are logged at WARN the first time an owner reports them, at DEBUG afterwards
 */
func (p *Processor) ValidateFor(owner, service string, props map[string]string) (ServiceConfig, error) {
	cfg, unknown, err := p.registry.Validate(service, props)
	if err != nil {
		return nil, err
	}
	if len(unknown) > 0 {
		if p.firstWarning(owner, service, unknown) {
			logger.Warnf("Service '%s' has unknown properties: %v", service, unknown)
		} else {
			logger.Debugf("Service '%s' on %s still has unknown properties: %v", service, owner, unknown)
		}
	}
	return cfg, nil
}

func (p *Processor) firstWarning(owner, service string, unknown []string) bool {
	if owner == "" {
		return true
	}
	key := owner + "/" + service + "/" + strings.Join(unknown, ",")

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, seen := p.warned[key]; seen {
		return false
	}
	if len(p.warned) >= maxWarnedEntries {
		p.warned = make(map[string]struct{})
	}
	p.warned[key] = struct{}{}
	return true
}

// inspect 输出中用到的字段
type inspectAttrs struct {
	Created string `json:"Created"`
	State   struct {
		StartedAt string `json:"StartedAt"`
	} `json:"State"`
	Config struct {
		Env []string `json:"Env"`
	} `json:"Config"`
	NetworkSettings struct {
		Networks json.RawMessage                 `json:"Networks"`
		Ports    map[string][]inspectPortBinding `json:"Ports"`
	} `json:"NetworkSettings"`
}

type inspectPortBinding struct {
	HostIP   string `json:"HostIp"`
	HostPort string `json:"HostPort"`
}

type inspectNetwork struct {
	IPAddress  string `json:"IPAddress"`
	Gateway    string `json:"Gateway"`
	MacAddress string `json:"MacAddress"`
	NetworkID  string `json:"NetworkID"`
}

/**
 * Project a container record into an inventory entry
 * @param {models.ContainerRecord} rec - Snapshot from a host connection
 * @param {string} hostIP - Routable address of the owning host, may be empty
 * @returns {*models.MonitoredContainer} nil when the container has no prefixed labels
 */
func (p *Processor) ProcessContainer(rec models.ContainerRecord, hostIP string) (*models.MonitoredContainer, error) {
	if !p.HasServiceLabels(rec.Labels) {
		return nil, nil
	}
	mc := &models.MonitoredContainer{
		ContainerRecord: rec,
		Key:             models.ContainerKey(rec.HostName, rec.ID),
		HostIP:          hostIP,
		ServiceLabels:   p.ExtractServiceLabels(rec.Labels),
		Networks:        map[string]models.NetworkInfo{},
		Ports:           []models.PortBinding{},
		Env:             map[string]string{},
		LastUpdated:     time.Now(),
	}
	if len(rec.Attrs) == 0 {
		return mc, nil
	}

	var attrs inspectAttrs
	if err := json.Unmarshal(rec.Attrs, &attrs); err != nil {
		return mc, fmt.Errorf("container %s: decode attrs: %w", rec.ShortID, err)
	}
	mc.Created = attrs.Created
	mc.StartedAt = attrs.State.StartedAt

	for _, kv := range attrs.Config.Env {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		mc.Env[name] = value
	}

	if err := decodeNetworks(attrs.NetworkSettings.Networks, mc); err != nil {
		return mc, fmt.Errorf("container %s: decode networks: %w", rec.ShortID, err)
	}
	mc.Ports = portBindings(attrs.NetworkSettings.Ports)
	return mc, nil
}

// 逐个token解析，保持engine输出中网络的顺序
func decodeNetworks(raw json.RawMessage, mc *models.MonitoredContainer) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("unexpected token %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var n inspectNetwork
		if err := dec.Decode(&n); err != nil {
			return err
		}
		if n.IPAddress == "" {
			continue
		}
		mc.Networks[name] = models.NetworkInfo{
			IP:        n.IPAddress,
			Gateway:   n.Gateway,
			MAC:       n.MacAddress,
			NetworkID: n.NetworkID,
		}
		if mc.PrimaryIP == "" {
			mc.PrimaryIP = n.IPAddress
		}
	}
	return nil
}

func portBindings(ports map[string][]inspectPortBinding) []models.PortBinding {
	out := []models.PortBinding{}
	keys := make([]string, 0, len(ports))
	for k := range ports {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		port, proto, found := strings.Cut(key, "/")
		if !found {
			proto = "tcp"
		}
		for _, b := range ports[key] {
			if b.HostPort == "" {
				continue
			}
			hostPort, err := strconv.Atoi(b.HostPort)
			if err != nil {
				continue
			}
			hostIP := b.HostIP
			if hostIP == "" {
				hostIP = "0.0.0.0"
			}
			out = append(out, models.PortBinding{
				ContainerPort: port,
				Protocol:      proto,
				HostIP:        hostIP,
				HostPort:      hostPort,
			})
		}
	}
	return out
}
