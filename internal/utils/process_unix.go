//go:build unix

package utils

import (
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// SetNewPG 让子进程拥有独立的进程组，超时时可以连同其子进程一起结束
func SetNewPG(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

/**
 * Kill a started command and its process group
 * @param {*exec.Cmd} cmd - Command started with SetNewPG
 * @param {time.Duration} grace - Time allowed between SIGTERM and SIGKILL
 * @returns {error} Returns error if the group could not be signalled
 * @description
 * - First sends SIGTERM to the whole group (graceful shutdown)
 * - Sends SIGKILL if the leader is still alive after the grace period
 */
func KillGroup(cmd *exec.Cmd, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		// 进程组不存在时退化为只结束进程本身
		return cmd.Process.Kill()
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(pid, syscall.Signal(0)); err != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("failed to kill process group %d: %v", pid, err)
	}
	return nil
}
