package env

import (
	"os"
	"path/filepath"
)

// 容器内运行时 /.dockerenv 存在
var dockerEnvFile = "/.dockerenv"

// InDocker 是否运行在容器中
var InDocker bool = IsInDocker()

// (default: /app/data in a container, ./data otherwise)
var DataDir string = GetDataDir()

/**
 * Check whether the process is running inside a docker container
 * @returns {bool} Returns true when /.dockerenv exists
 */
func IsInDocker() bool {
	_, err := os.Stat(dockerEnvFile)
	return err == nil
}

/**
 * Get directory used for durable state
 * @returns {string} Returns data directory path
 */
func GetDataDir() string {
	if IsInDocker() {
		return "/app/data"
	}
	wd, err := os.Getwd()
	if err != nil {
		return "data"
	}
	return filepath.Join(wd, "data")
}
