package server

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	"docker-monitor/internal/logger"
)

/**
 * Create the TCP listener for the query API
 * @param {string} address - Listen address, e.g. ":8080"
 * @returns {net.Listener} Listener ready for http.Server.Serve
 * @returns {error} Error with a hint when the port is already taken
 */
func CreateListener(address string) (net.Listener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		logger.Errorf("Failed to create listener on tcp://%s: %v", address, err)
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("address %s already in use, is another docker-monitor running? %w", address, err)
		}
		return nil, err
	}
	logger.Infof("API listening on %s", l.Addr().String())
	return l, nil
}
