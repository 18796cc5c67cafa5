package dockerhost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"docker-monitor/internal/logger"
	"docker-monitor/internal/utils"

	"github.com/creack/pty"
)

// CaptureResult 一次ssh执行的统一结果，stdout和stderr合并在Output中
type CaptureResult struct {
	Success  bool
	Output   string
	TimedOut bool
}

// SSHTarget ssh连接参数
type SSHTarget struct {
	Binary                string
	User                  string
	Host                  string
	Port                  int
	ConnectTimeout        int
	StrictHostKeyChecking string
	Timeout               time.Duration //单次执行的超时
}

func (t SSHTarget) binary() string {
	if t.Binary == "" {
		return "ssh"
	}
	return t.Binary
}

func (t SSHTarget) Destination() string {
	if t.User == "" {
		return t.Host
	}
	return t.User + "@" + t.Host
}

// baseArgs 所有ssh调用共有的参数
func (t SSHTarget) baseArgs() []string {
	args := []string{"-o", "ConnectTimeout=" + strconv.Itoa(t.ConnectTimeout)}
	if t.Port != 0 && t.Port != 22 {
		args = append(args, "-p", strconv.Itoa(t.Port))
	}
	return args
}

func (t SSHTarget) hostKeyChecking() string {
	if t.StrictHostKeyChecking == "" {
		return "ask"
	}
	return t.StrictHostKeyChecking
}

/**
 * CaptureStrategy 一种执行ssh并捕获输出的方式
 * @description
 * - 交互式的host key/密码提示在纯管道模式下会被吞掉，不同的捕获方式能看到的输出不同
 * - 返回error表示该方式在本机不可用(例如没有pty)，调用方会尝试下一个
 */
type CaptureStrategy interface {
	Name() string
	Capture(ctx context.Context, target SSHTarget, remote []string) (CaptureResult, error)
}

// CaptureChain 按顺序尝试的捕获方式
type CaptureChain []CaptureStrategy

// DefaultCaptureChain pty、script、verbose、普通管道
func DefaultCaptureChain() CaptureChain {
	return CaptureChain{PTYCapture{}, ScriptCapture{}, VerboseCapture{}, PipeCapture{}}
}

/**
 * Run strategies in order and return the first informative result
 * @param {context.Context} ctx - Cancels the running strategy
 * @param {SSHTarget} target - Connection parameters
 * @param {[]string} remote - Remote command, e.g. ["docker", "version"]
 * @returns {CaptureResult} First result that succeeded or produced output,
 *   otherwise the result of the last strategy that ran
 * @returns {string} Name of the strategy the result came from
 */
func (c CaptureChain) Run(ctx context.Context, target SSHTarget, remote []string) (CaptureResult, string) {
	var last CaptureResult
	lastName := ""
	for _, s := range c {
		if ctx.Err() != nil {
			break
		}
		r, err := s.Capture(ctx, target, remote)
		if err != nil {
			logger.Debugf("SSH %s capture unavailable for %s: %v", s.Name(), target.Host, err)
			continue
		}
		last, lastName = r, s.Name()
		if r.Success || strings.TrimSpace(r.Output) != "" {
			logger.Debugf("SSH %s capture produced a result for %s", s.Name(), target.Host)
			return r, s.Name()
		}
	}
	return last, lastName
}

// runResult runCommand的返回值
type runResult struct {
	stdout   string
	stderr   string
	err      error
	timedOut bool
}

/**
 * Run a command with a hard timeout, killing its process group on expiry
 * @param {context.Context} ctx - Parent context
 * @param {time.Duration} timeout - Hard limit for the command
 * @param {io.Reader} stdin - Optional stdin
 * @param {string} name - Executable
 * @param {...string} args - Arguments
 * @returns {runResult} Captured output, exit error and whether the timeout fired
 */
func runCommand(ctx context.Context, timeout time.Duration, stdin io.Reader, name string, args ...string) runResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	utils.SetNewPG(cmd)
	cmd.Cancel = func() error {
		return utils.KillGroup(cmd, 2*time.Second)
	}
	cmd.WaitDelay = 3 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = stdin

	err := cmd.Run()
	return runResult{
		stdout:   stdout.String(),
		stderr:   stderr.String(),
		err:      err,
		timedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
}

// notStarted 命令本身无法启动(找不到可执行文件等)
func notStarted(err error) bool {
	var exitErr *exec.ExitError
	return err != nil && !errors.As(err, &exitErr) && !errors.Is(err, context.DeadlineExceeded)
}

// PTYCapture 在伪终端中运行ssh，能看到直接写到tty的提示
type PTYCapture struct{}

func (PTYCapture) Name() string { return "pty" }

func (PTYCapture) Capture(ctx context.Context, target SSHTarget, remote []string) (CaptureResult, error) {
	args := append(target.baseArgs(), "-o", "StrictHostKeyChecking="+target.hostKeyChecking(), "-T", target.Destination())
	args = append(args, remote...)

	cmd := exec.Command(target.binary(), args...)
	f, err := pty.Start(cmd)
	if err != nil {
		return CaptureResult{}, err
	}
	defer f.Close()

	var buf bytes.Buffer
	var mu sync.Mutex
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		chunk := make([]byte, 1024)
		for {
			n, err := f.Read(chunk)
			if n > 0 {
				mu.Lock()
				buf.Write(chunk[:n])
				mu.Unlock()
			}
			if err != nil {
				// 子进程退出后读pty会返回EIO
				return
			}
		}
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	timer := time.NewTimer(target.Timeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-waitDone:
	case <-timer.C:
		timedOut = true
	case <-ctx.Done():
		timedOut = true
	}
	if timedOut {
		// pty.Start使用setsid，子进程本身就是进程组leader
		_ = utils.KillGroup(cmd, 2*time.Second)
		waitErr = <-waitDone
	}

	select {
	case <-readDone:
	case <-time.After(time.Second):
	}

	mu.Lock()
	out := buf.String()
	mu.Unlock()
	return CaptureResult{
		Success:  !timedOut && waitErr == nil,
		Output:   strings.ReplaceAll(out, "\r\n", "\n"),
		TimedOut: timedOut,
	}, nil
}

// ScriptCapture 使用script命令记录完整的终端输出
type ScriptCapture struct{}

func (ScriptCapture) Name() string { return "script" }

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (ScriptCapture) Capture(ctx context.Context, target SSHTarget, remote []string) (CaptureResult, error) {
	if _, err := exec.LookPath("script"); err != nil {
		return CaptureResult{}, err
	}
	tmp, err := os.CreateTemp("", "*.ssh_capture")
	if err != nil {
		return CaptureResult{}, err
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	sshArgs := append([]string{target.binary()}, target.baseArgs()...)
	sshArgs = append(sshArgs, "-o", "StrictHostKeyChecking="+target.hostKeyChecking(), target.Destination())
	sshArgs = append(sshArgs, remote...)
	quoted := make([]string, 0, len(sshArgs))
	for _, a := range sshArgs {
		quoted = append(quoted, shellQuote(a))
	}

	r := runCommand(ctx, target.Timeout, nil, "script", "-qec", strings.Join(quoted, " "), tmpName)
	if notStarted(r.err) {
		return CaptureResult{}, r.err
	}
	data, err := os.ReadFile(tmpName)
	if err != nil {
		logger.Debugf("Failed to read script output: %v", err)
	}
	output := strings.ReplaceAll(string(data), "\r\n", "\n")
	return CaptureResult{
		Success:  r.err == nil && !r.timedOut,
		Output:   output + r.stderr,
		TimedOut: r.timedOut,
	}, nil
}

// VerboseCapture ssh -vvv，连接细节写在stderr中
type VerboseCapture struct{}

func (VerboseCapture) Name() string { return "verbose" }

func (VerboseCapture) Capture(ctx context.Context, target SSHTarget, remote []string) (CaptureResult, error) {
	args := append([]string{"-vvv"}, target.baseArgs()...)
	args = append(args, "-o", "StrictHostKeyChecking="+target.hostKeyChecking(), "-o", "BatchMode=no", target.Destination())
	args = append(args, remote...)

	r := runCommand(ctx, target.Timeout, strings.NewReader(""), target.binary(), args...)
	if notStarted(r.err) {
		return CaptureResult{}, r.err
	}
	return CaptureResult{
		Success:  r.err == nil && !r.timedOut,
		Output:   r.stdout + r.stderr,
		TimedOut: r.timedOut,
	}, nil
}

// PipeCapture 普通的管道执行，作为最后的兜底
type PipeCapture struct{}

func (PipeCapture) Name() string { return "pipe" }

func (PipeCapture) Capture(ctx context.Context, target SSHTarget, remote []string) (CaptureResult, error) {
	args := append(target.baseArgs(), target.Destination())
	args = append(args, remote...)

	r := runCommand(ctx, target.Timeout, nil, target.binary(), args...)
	if notStarted(r.err) {
		return CaptureResult{Output: fmt.Sprintf("failed to run %s: %v", target.binary(), r.err)}, nil
	}
	return CaptureResult{
		Success:  r.err == nil && !r.timedOut,
		Output:   r.stdout + r.stderr,
		TimedOut: r.timedOut,
	}, nil
}
