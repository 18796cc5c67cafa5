package dockerhost

import (
	"fmt"
	"strings"
)

// 出现这些输出时远程命令失败说明连接本身已断开
var connectionLossIndicators = []string{
	"connection refused",
	"connection reset",
	"connection timed out",
	"network is unreachable",
	"no route to host",
	"host key verification failed",
	"permission denied (publickey)",
	"connection closed by remote host",
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

/**
 * Extract host key details from captured ssh output
 * @param {string} output - Combined ssh output
 * @returns {string} Fingerprint and key type lines, or a placeholder
 */
func ExtractHostKeyInfo(output string) string {
	var info []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		if idx := strings.Index(lower, "key fingerprint is"); idx >= 0 {
			fp := strings.TrimSpace(line[idx+len("key fingerprint is"):])
			fp = strings.TrimSuffix(fp, ".")
			info = append(info, "Key fingerprint: "+fp)
		} else if strings.HasPrefix(line, "ED25519") || strings.HasPrefix(line, "RSA") || strings.HasPrefix(line, "ECDSA") {
			info = append(info, "Key type: "+line)
		}
	}
	if len(info) == 0 {
		return "Host key details not captured"
	}
	return strings.Join(info, " ")
}

/**
 * Classify a failed "docker version" check over ssh
 * @param {string} host - Host name, used in remediation hints
 * @param {CaptureResult} r - Output of the winning capture strategy
 * @param {time.Duration} timeout - Strategy timeout, quoted in timeout messages
 * @returns {*ConnError} Classified error with an actionable message
 * @description
 * - A timeout is usually an interactive prompt nobody answered: host key or password
 * - Otherwise the output is matched against known ssh and docker failures
 */
func DiagnoseConnect(host string, r CaptureResult, timeoutSeconds int) *ConnError {
	out := strings.TrimSpace(r.Output)
	lower := strings.ToLower(out)
	keyscan := fmt.Sprintf("Run 'ssh-keyscan %s >> ~/.ssh/known_hosts' to add the host key", host)

	newErr := func(kind ErrorKind, msg string) *ConnError {
		return &ConnError{Host: host, Kind: kind, Message: msg, Output: out}
	}

	if r.TimedOut {
		switch {
		case containsAny(lower, "authenticity of host", "can't be established"):
			return newErr(ErrHostKey, fmt.Sprintf(
				"SSH timeout waiting for host key verification prompt. %s. %s, or set StrictHostKeyChecking=no (less secure). SSH output: %s",
				ExtractHostKeyInfo(out), keyscan, out))
		case containsAny(lower, "password:", "passphrase"):
			return newErr(ErrPasswordPrompt,
				"SSH timeout waiting for password/passphrase prompt. Ensure SSH key authentication is configured properly. SSH output: "+out)
		case out != "":
			return newErr(ErrTimeout, fmt.Sprintf("SSH connection timeout (%ds) with output: %s", timeoutSeconds, out))
		default:
			return newErr(ErrTimeout, fmt.Sprintf(
				"SSH connection timeout (%ds) with no output. Check network connectivity and SSH service availability.", timeoutSeconds))
		}
	}

	switch {
	case containsAny(lower, "authenticity of host", "host key verification failed"):
		return newErr(ErrHostKey, fmt.Sprintf("Host key verification failed. %s. %s. SSH output: %s",
			ExtractHostKeyInfo(out), keyscan, out))
	case strings.Contains(lower, "permission denied"):
		return newErr(ErrAuth, "SSH authentication failed. Check SSH key, username, or host access. SSH output: "+out)
	case strings.Contains(lower, "connection refused"):
		return newErr(ErrRefused, "SSH connection refused. Check if SSH daemon is running on target host. SSH output: "+out)
	case containsAny(lower, "no route to host", "network is unreachable", "could not resolve hostname"):
		return newErr(ErrUnreachable, "Network connectivity issue. Check host IP/hostname and network routing. SSH output: "+out)
	case containsAny(lower, "docker: command not found", "docker: not found"):
		return newErr(ErrDockerMissing, "Docker is not installed or not in PATH on remote host. SSH output: "+out)
	case strings.Contains(lower, "cannot connect to the docker daemon"):
		return newErr(ErrDaemonDown, "SSH successful but Docker daemon is not running on remote host. SSH output: "+out)
	}
	if out == "" {
		out = "No output captured"
	}
	return newErr(ErrUnknown, "SSH Docker test failed. SSH output: "+out)
}

/**
 * Classify a failed docker subcommand run over an established ssh path
 * @param {string} host - Host name
 * @param {[]string} args - Docker arguments, quoted in the message
 * @param {string} stderr - Captured stderr
 * @param {string} stdout - Captured stdout
 * @returns {*ConnError} Classified error
 */
func DiagnoseCommand(host string, args []string, stderr, stdout string) *ConnError {
	command := strings.Join(args, " ")
	stderr = strings.TrimSpace(stderr)
	lower := strings.ToLower(stderr + stdout)

	var kind ErrorKind
	var msg string
	switch {
	case IsConnectionLoss(stderr):
		kind = ErrUnreachable
		if strings.Contains(lower, "host key verification failed") {
			kind = ErrHostKey
		} else if strings.Contains(lower, "permission denied (publickey)") {
			kind = ErrAuth
		} else if strings.Contains(lower, "connection refused") {
			kind = ErrRefused
		}
		msg = fmt.Sprintf("SSH connection failed during Docker command '%s': %s", command, stderr)
	case containsAny(lower, "docker: command not found", "docker: not found"):
		kind = ErrDockerMissing
		msg = fmt.Sprintf("Docker not found on remote host for command '%s': %s", command, stderr)
	case strings.Contains(lower, "cannot connect to the docker daemon"):
		kind = ErrDaemonDown
		msg = fmt.Sprintf("Docker daemon not running on remote host for command '%s': %s", command, stderr)
	case strings.Contains(lower, "permission denied") && strings.Contains(lower, "docker"):
		kind = ErrPermission
		msg = fmt.Sprintf("Docker permission denied on remote host for command '%s'. User may need to be in docker group: %s", command, stderr)
	case strings.Contains(lower, "no such container") || strings.Contains(lower, "no such object"):
		kind = ErrNoSuchObject
		msg = fmt.Sprintf("Container not found for command '%s': %s", command, stderr)
	case strings.Contains(lower, "timeout"):
		kind = ErrTimeout
		msg = fmt.Sprintf("Docker command timeout for '%s': %s", command, stderr)
	default:
		kind = ErrUnknown
		detail := stderr
		if detail == "" {
			detail = strings.TrimSpace(stdout)
		}
		if detail == "" {
			detail = "Unknown error"
		}
		msg = fmt.Sprintf("Docker command '%s' failed: %s", command, detail)
	}
	return &ConnError{Host: host, Kind: kind, Message: msg, Output: stderr}
}

// IsConnectionLoss stderr中是否包含连接中断的特征
func IsConnectionLoss(stderr string) bool {
	return containsAny(strings.ToLower(stderr), connectionLossIndicators...)
}
