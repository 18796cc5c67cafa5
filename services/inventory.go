package services

import (
	"sort"
	"strings"
	"sync"
	"time"

	"docker-monitor/internal/models"
)

// Inventory 带服务标签的容器，按host:containerId唯一
type Inventory struct {
	mu    sync.RWMutex
	items map[string]*models.MonitoredContainer
}

func NewInventory() *Inventory {
	return &Inventory{items: make(map[string]*models.MonitoredContainer)}
}

func clone(mc *models.MonitoredContainer) *models.MonitoredContainer {
	c := *mc
	return &c
}

// Upsert 新增或替换一个容器
func (inv *Inventory) Upsert(mc *models.MonitoredContainer) {
	inv.mu.Lock()
	inv.items[mc.Key] = clone(mc)
	n := len(inv.items)
	inv.mu.Unlock()
	monitoredContainers.Set(float64(n))
}

func (inv *Inventory) Remove(key string) (*models.MonitoredContainer, bool) {
	inv.mu.Lock()
	mc, ok := inv.items[key]
	delete(inv.items, key)
	n := len(inv.items)
	inv.mu.Unlock()
	monitoredContainers.Set(float64(n))
	return mc, ok
}

// UpdateStatus 只修改状态，容器不存在时返回false
func (inv *Inventory) UpdateStatus(key, status string) (string, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	mc, ok := inv.items[key]
	if !ok {
		return "", false
	}
	updated := clone(mc)
	updated.Status = status
	updated.LastUpdated = time.Now()
	inv.items[key] = updated
	return updated.Name, true
}

/**
 * Replace every entry of one host with a fresh scan
 * @param {string} host - Host name
 * @param {[]*models.MonitoredContainer} containers - Labeled containers found on the host
 * @returns {int} Number of stale entries dropped
 */
func (inv *Inventory) ReplaceHost(host string, containers []*models.MonitoredContainer) int {
	inv.mu.Lock()
	fresh := make(map[string]bool, len(containers))
	for _, mc := range containers {
		inv.items[mc.Key] = clone(mc)
		fresh[mc.Key] = true
	}
	dropped := 0
	for key, mc := range inv.items {
		if mc.HostName == host && !fresh[key] {
			delete(inv.items, key)
			dropped++
		}
	}
	n := len(inv.items)
	inv.mu.Unlock()
	monitoredContainers.Set(float64(n))
	return dropped
}

func (inv *Inventory) Get(key string) (*models.MonitoredContainer, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	mc, ok := inv.items[key]
	if !ok {
		return nil, false
	}
	return clone(mc), true
}

// Find 按key子串或短ID查找
func (inv *Inventory) Find(id string) (*models.MonitoredContainer, bool) {
	for _, mc := range inv.Snapshot() {
		if strings.Contains(mc.Key, id) || mc.ShortID == id {
			return mc, true
		}
	}
	return nil, false
}

// Snapshot 按key排序的副本
func (inv *Inventory) Snapshot() []*models.MonitoredContainer {
	inv.mu.RLock()
	out := make([]*models.MonitoredContainer, 0, len(inv.items))
	for _, mc := range inv.items {
		out = append(out, clone(mc))
	}
	inv.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (inv *Inventory) Count() int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return len(inv.items)
}

// Summary 按主机IP分组
func (inv *Inventory) Summary() []models.ContainerSummary {
	groups := make(map[string]*models.ContainerSummary)
	var ips []string
	for _, mc := range inv.Snapshot() {
		g, ok := groups[mc.HostIP]
		if !ok {
			g = &models.ContainerSummary{HostIP: mc.HostIP}
			groups[mc.HostIP] = g
			ips = append(ips, mc.HostIP)
		}
		if !contains(g.Hosts, mc.HostName) {
			g.Hosts = append(g.Hosts, mc.HostName)
		}
		g.Containers = append(g.Containers, mc.Name)
		g.Count++
	}
	sort.Strings(ips)
	out := make([]models.ContainerSummary, 0, len(ips))
	for _, ip := range ips {
		out = append(out, *groups[ip])
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
