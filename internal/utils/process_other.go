//go:build !unix

package utils

import (
	"os/exec"
	"time"
)

// SetNewPG 不支持进程组的平台上不做处理
func SetNewPG(cmd *exec.Cmd) {}

// KillGroup 只结束进程本身
func KillGroup(cmd *exec.Cmd, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
