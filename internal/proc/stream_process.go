package proc

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"docker-monitor/internal/logger"
	"docker-monitor/internal/models"
	"docker-monitor/internal/utils"
)

// 保留的stderr尾部长度，用于退出后的错误诊断
const stderrTail = 4096

type streamWatcher struct {
	restartDelay time.Duration                       //进程退出后重启前的等待时间
	onLine       func(line string)                   //stdout每输出一行调用一次
	onExit       func(stderr string, err error) bool //进程退出时调用，返回false则不再重启
}

/**
 * StreamProcess 持续读取输出的受监管进程
 * @property {string} title - 进程标题，用于显示
 * @property {string} command - 执行命令
 * @property {[]string} args - 命令参数
 * @property {string} status - 进程状态: running/exited/stopped/error
 * @property {int} restartCount - 重启次数
 * @property {time.Time} startTime - 启动时间
 * @property {time.Time} lastExitTime - 最后退出时间
 * @property {string} lastExitReason - 最后退出原因
 * @property {streamWatcher} watcher - 输出及退出回调
 */
type StreamProcess struct {
	Title          string
	Command        string
	Args           []string
	Status         models.RunStatus
	RestartCount   int
	StartTime      time.Time
	LastExitTime   time.Time
	LastExitReason string
	watcher        streamWatcher
	cmd            *exec.Cmd
	mutex          sync.Mutex
}

func NewStreamProcess(title, command string, args []string) *StreamProcess {
	return &StreamProcess{
		Title:   title,
		Command: command,
		Args:    args,
		Status:  models.StatusExited,
		watcher: streamWatcher{restartDelay: 5 * time.Second},
	}
}

func (sp *StreamProcess) SetWatcher(restartDelay time.Duration, onLine func(string), onExit func(string, error) bool) {
	sp.mutex.Lock()
	defer sp.mutex.Unlock()

	sp.watcher.restartDelay = restartDelay
	sp.watcher.onLine = onLine
	sp.watcher.onExit = onExit
}

func (sp *StreamProcess) Pid() int {
	if sp.cmd == nil || sp.cmd.Process == nil {
		return 0
	}
	return sp.cmd.Process.Pid
}

func (sp *StreamProcess) GetDetail() models.ProcessDetail {
	sp.mutex.Lock()
	defer sp.mutex.Unlock()

	return models.ProcessDetail{
		Title:          sp.Title,
		Command:        sp.Command,
		Args:           sp.Args,
		Pid:            sp.Pid(),
		Status:         sp.Status,
		RestartCount:   sp.RestartCount,
		StartTime:      sp.StartTime,
		LastExitTime:   sp.LastExitTime,
		LastExitReason: sp.LastExitReason,
	}
}

/**
 * Run the process under supervision until ctx is cancelled
 * @param {context.Context} ctx - Cancelling it stops the process and the loop
 * @returns {error} ctx.Err() on cancellation, or the last exit error when onExit refuses a restart
 * @description
 * - Each stdout line is delivered to onLine as soon as it is read
 * - After the process exits, waits restartDelay and starts it again
 * - onExit sees the tail of stderr and may stop the loop by returning false
 */
func (sp *StreamProcess) Run(ctx context.Context) error {
	for {
		err := sp.runOnce(ctx)
		if ctx.Err() != nil {
			sp.setStopped("context cancelled")
			return ctx.Err()
		}

		sp.mutex.Lock()
		onExit := sp.watcher.onExit
		delay := sp.watcher.restartDelay
		stderr := sp.LastExitReason
		sp.mutex.Unlock()

		if onExit != nil && !onExit(stderr, err) {
			sp.setStopped("restart declined")
			if err == nil {
				err = fmt.Errorf("process '%s' exited", sp.Title)
			}
			return err
		}

		logger.Infof("Process '%s' will restart in %v (restart: %d)", sp.Title, delay, sp.RestartCount+1)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			sp.setStopped("context cancelled")
			return ctx.Err()
		case <-timer.C:
		}

		sp.mutex.Lock()
		sp.RestartCount++
		sp.mutex.Unlock()
	}
}

func (sp *StreamProcess) setStopped(reason string) {
	sp.mutex.Lock()
	defer sp.mutex.Unlock()
	sp.Status = models.StatusStopped
	if sp.LastExitReason == "" {
		sp.LastExitReason = reason
	}
}

func (sp *StreamProcess) runOnce(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, sp.Command, sp.Args...)
	utils.SetNewPG(cmd)
	cmd.Cancel = func() error {
		return utils.KillGroup(cmd, time.Second)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr tailBuffer
	cmd.Stderr = &stderr

	logger.Debugf("Executing command: %s %s", sp.Command, strings.Join(sp.Args, " "))
	if err := cmd.Start(); err != nil {
		sp.mutex.Lock()
		sp.Status = models.StatusError
		sp.LastExitReason = fmt.Sprintf("start failed: %v", err)
		sp.mutex.Unlock()
		logger.Errorf("Failed to start process '%s', error: %v", sp.Title, err)
		return err
	}

	sp.mutex.Lock()
	sp.cmd = cmd
	sp.Status = models.StatusRunning
	sp.StartTime = time.Now()
	onLine := sp.watcher.onLine
	sp.mutex.Unlock()
	logger.Infof("Process '%s' started (PID: %d)", sp.Title, cmd.Process.Pid)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || onLine == nil {
			continue
		}
		onLine(line)
	}
	err = cmd.Wait()

	sp.mutex.Lock()
	defer sp.mutex.Unlock()
	sp.cmd = nil
	sp.LastExitTime = time.Now()
	sp.Status = models.StatusExited
	if err != nil {
		logger.Warnf("Process '%s' exited with error: %v", sp.Title, err)
	} else {
		logger.Infof("Process '%s' exited normally", sp.Title)
	}
	sp.LastExitReason = strings.TrimSpace(stderr.String())
	if sp.LastExitReason == "" && err != nil {
		sp.LastExitReason = err.Error()
	}
	return err
}

// tailBuffer 只保留最后stderrTail字节
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.buf.Write(p)
	if t.buf.Len() > stderrTail {
		tail := t.buf.Bytes()[t.buf.Len()-stderrTail:]
		kept := append([]byte(nil), tail...)
		t.buf.Reset()
		t.buf.Write(kept)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
