package utils

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os/exec"
	"strings"
	"time"
)

var ErrNoDefaultRoute = errors.New("no default route")

// ParseIPv4 去掉#之后的注释，校验是否为合法IPv4地址
func ParseIPv4(raw string) (string, bool) {
	if idx := strings.Index(raw, "#"); idx >= 0 {
		raw = raw[:idx]
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	ip := net.ParseIP(raw)
	if ip == nil || ip.To4() == nil {
		return raw, false
	}
	return ip.String(), true
}

/**
 * Parse the gateway from "ip route show default" output
 * @param {string} output - Command output, e.g. "default via 172.17.0.1 dev eth0"
 * @returns {string} Gateway address, empty when no default route is present
 */
func ParseDefaultGateway(output string) string {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		for i := 0; i+2 < len(fields); i++ {
			if fields[i] == "default" && fields[i+1] == "via" {
				return fields[i+2]
			}
		}
	}
	return ""
}

// DefaultGateway 返回默认路由的网关地址
func DefaultGateway(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ip", "route", "show", "default").Output()
	if err != nil {
		return "", err
	}
	if gw := ParseDefaultGateway(string(out)); gw != "" {
		return gw, nil
	}
	return "", ErrNoDefaultRoute
}

// OutboundIP 通过UDP"连接"公网地址获取本机出口IP，不会真正发送数据
func OutboundIP() (string, error) {
	conn, err := net.DialTimeout("udp", "8.8.8.8:80", 2*time.Second)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", errors.New("unexpected local address type")
	}
	return addr.IP.String(), nil
}

// IsBridgeAddress docker默认网桥172.x地址，通常无法从其他主机访问
func IsBridgeAddress(ip string) bool {
	return strings.HasPrefix(ip, "172.")
}
