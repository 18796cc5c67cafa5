package caddy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"docker-monitor/internal/logger"
	"docker-monitor/internal/models"
)

// StateStore 已下发路由的持久化文件
type StateStore struct {
	Path     string
	AdminURL string
}

func NewStateStore(path, adminURL string) *StateStore {
	return &StateStore{Path: path, AdminURL: adminURL}
}

/**
 * Load managed routes from the state file
 * @returns {map[string]models.ManagedRoute} Empty map when the file is missing or corrupt
 * @description
 * - A file that cannot be decoded is renamed to <path>.corrupted
 */
func (s *StateStore) Load() (map[string]models.ManagedRoute, error) {
	routes := make(map[string]models.ManagedRoute)
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("No existing state file found, starting fresh")
		return routes, nil
	}
	if err != nil {
		return routes, err
	}

	var state models.RouteState
	if err := json.Unmarshal(data, &state); err != nil {
		backup := s.Path + ".corrupted"
		logger.Errorf("Error loading state file %s: %v", s.Path, err)
		if rerr := os.Rename(s.Path, backup); rerr != nil {
			return routes, fmt.Errorf("move corrupted state file: %w", rerr)
		}
		logger.Warnf("Moved corrupted state file to %s", backup)
		return routes, nil
	}
	for id, r := range state.ManagedRoutes {
		// 文件是缩进格式，内存中统一为紧凑格式
		var buf bytes.Buffer
		if len(r.ProxyConfig) > 0 && json.Compact(&buf, r.ProxyConfig) == nil {
			r.ProxyConfig = buf.Bytes()
		}
		routes[id] = r
	}
	logger.Infof("Loaded %d managed routes from state file", len(routes))
	return routes, nil
}

// Save 先写临时文件再rename，保证文件要么是旧的要么是新的
func (s *StateStore) Save(routes map[string]models.ManagedRoute) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return err
	}
	state := models.RouteState{
		ManagedRoutes: routes,
		LastUpdated:   time.Now(),
		AdminURL:      s.AdminURL,
	}
	if state.ManagedRoutes == nil {
		state.ManagedRoutes = map[string]models.ManagedRoute{}
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		os.Remove(tmpName)
		return err
	}
	logger.Debugf("Saved %d managed routes to state file", len(routes))
	return nil
}
