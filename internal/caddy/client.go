package caddy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrRouteNotFound = errors.New("route not found")

// APIError admin API返回了非预期的状态码
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("caddy %s: HTTP %d - %s", e.Op, e.StatusCode, e.Body)
}

// AdminClient Caddy admin API的HTTP客户端
type AdminClient struct {
	BaseURL       string
	Server        string
	HealthTimeout time.Duration
	httpClient    *http.Client
}

/**
 * Create admin API client
 * @param {string} adminURL - e.g. http://caddy:2019
 * @param {string} server - HTTP server name inside the caddy config (srv0)
 * @param {time.Duration} requestTimeout - Timeout of add/list/delete calls
 * @param {time.Duration} healthTimeout - Timeout of the health probe
 */
func NewAdminClient(adminURL, server string, requestTimeout, healthTimeout time.Duration) *AdminClient {
	return &AdminClient{
		BaseURL:       strings.TrimRight(adminURL, "/"),
		Server:        server,
		HealthTimeout: healthTimeout,
		httpClient:    &http.Client{Timeout: requestTimeout},
	}
}

func (c *AdminClient) routesURL() string {
	return fmt.Sprintf("%s/config/apps/http/servers/%s/routes", c.BaseURL, c.Server)
}

func (c *AdminClient) do(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

// Health GET /config/，只有200算健康
func (c *AdminClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.HealthTimeout)
	defer cancel()
	code, body, err := c.do(ctx, http.MethodGet, c.BaseURL+"/config/", nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return &APIError{Op: "health", StatusCode: code, Body: string(body)}
	}
	return nil
}

// AddRoute 追加一条路由
func (c *AdminClient) AddRoute(ctx context.Context, route json.RawMessage) error {
	code, body, err := c.do(ctx, http.MethodPost, c.routesURL(), route)
	if err != nil {
		return err
	}
	if code != http.StatusOK && code != http.StatusCreated {
		return &APIError{Op: "add route", StatusCode: code, Body: string(body)}
	}
	return nil
}

type routeMatch struct {
	Match []struct {
		Host []string `json:"host"`
	} `json:"match"`
}

// ListRoutes 当前server下的全部路由
func (c *AdminClient) ListRoutes(ctx context.Context) ([]json.RawMessage, error) {
	code, body, err := c.do(ctx, http.MethodGet, c.routesURL(), nil)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, &APIError{Op: "list routes", StatusCode: code, Body: string(body)}
	}
	var routes []json.RawMessage
	if err := json.Unmarshal(body, &routes); err != nil {
		return nil, fmt.Errorf("decode routes: %w", err)
	}
	return routes, nil
}

// FindRouteIndex 首个match的host恰好为[domain]的路由下标，找不到返回-1
func FindRouteIndex(routes []json.RawMessage, domain string) int {
	for i, raw := range routes {
		var r routeMatch
		if err := json.Unmarshal(raw, &r); err != nil || len(r.Match) == 0 {
			continue
		}
		if len(r.Match[0].Host) == 1 && r.Match[0].Host[0] == domain {
			return i
		}
	}
	return -1
}

/**
 * Remove the route serving a domain
 * @param {string} domain - Host the route matches
 * @returns {error} ErrRouteNotFound when no route matches, the caller treats it as removed
 * @description
 * - Caddy only addresses routes by position, so the list is read first
 */
func (c *AdminClient) RemoveRoute(ctx context.Context, domain string) error {
	routes, err := c.ListRoutes(ctx)
	if err != nil {
		return err
	}
	idx := FindRouteIndex(routes, domain)
	if idx < 0 {
		return ErrRouteNotFound
	}
	code, body, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", c.routesURL(), idx), nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK && code != http.StatusNoContent {
		return &APIError{Op: "delete route", StatusCode: code, Body: string(body)}
	}
	return nil
}
