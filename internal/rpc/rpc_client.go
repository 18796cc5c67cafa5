package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"docker-monitor/internal/logger"
)

// httpClient HTTP客户端实现
type httpClient struct {
	config *HTTPConfig
	client *http.Client
}

/**
 * Create new HTTP client for the monitor API
 * @param {*HTTPConfig} config - nil uses DefaultHTTPConfig
 * @returns {HTTPClient} HTTP client interface
 * @example
 * client := NewHTTPClient(nil)
 * defer client.Close()
 * var hosts []models.Host
 * err := client.GetJSON("/hosts", nil, &hosts)
 */
func NewHTTPClient(config *HTTPConfig) HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	return &httpClient{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

/**
 * Send GET request to the monitor
 * @param {string} path - API endpoint path
 * @param {map[string]interface{}} params - Query parameters
 * @returns {*HTTPResponse} Response, non-2xx responses carry Error
 * @returns {error} Transport failure
 */
func (c *httpClient) Get(path string, params map[string]interface{}) (*HTTPResponse, error) {
	url, err := buildURL(c.config.BaseURL, path, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	logger.Debugf("Sending GET request to %s", url)

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return deserializeResponse(resp)
}

// GetJSON 发送GET请求并把2xx响应解码到out
func (c *httpClient) GetJSON(path string, params map[string]interface{}, out interface{}) error {
	resp, err := c.Get(path, params)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("GET %s: HTTP %d: %s", path, resp.StatusCode, resp.Error)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *httpClient) Close() error {
	c.client.CloseIdleConnections()
	logger.Debugf("HTTP client connection closed")
	return nil
}
