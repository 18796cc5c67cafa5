package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"docker-monitor/internal/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	defaultLogger *Logger
)

// Logger 日志结构体
type Logger struct {
	debugLogger *log.Logger
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
}

// LogLevel 日志级别类型
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// GetLogLevelFromString 将字符串转换为日志级别
func GetLogLevelFromString(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return WARN // 默认级别
	}
}

/**
 * Initialize the logging system
 * @param {*config.LogConfig} cfg - Level, file path and rotation settings
 * @param {bool} isServerMode - Server mode also writes to stdout
 * @description
 * - File output rotates by size, keeping cfg.MaxBackups old files
 * - Path "console" (or empty) disables the file output
 * - CLI mode only writes to the console when cfg.Console is set and no file is used
 */
func InitLogger(cfg *config.LogConfig, isServerMode bool) {
	var writers []io.Writer

	if cfg.Path != "" && cfg.Path != "console" {
		if w := setupLogFileOutput(cfg); w != nil {
			writers = append(writers, w)
		}
	}
	// 服务器模式同时输出到控制台
	if (isServerMode && cfg.Console) || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	setOutput(io.MultiWriter(writers...), GetLogLevelFromString(cfg.Level))
}

// InitWithWriter 直接指定输出，测试用
func InitWithWriter(w io.Writer, level string) {
	setOutput(w, GetLogLevelFromString(level))
}

func setOutput(output io.Writer, logLevel LogLevel) {
	flags := log.LstdFlags | log.Lshortfile

	l := &Logger{
		debugLogger: log.New(io.Discard, "DEBUG: ", flags),
		infoLogger:  log.New(io.Discard, "INFO: ", flags),
		warnLogger:  log.New(io.Discard, "WARN: ", flags),
		errorLogger: log.New(io.Discard, "ERROR: ", flags),
	}

	// 根据级别设置输出
	if logLevel <= DEBUG {
		l.debugLogger.SetOutput(output)
	}
	if logLevel <= INFO {
		l.infoLogger.SetOutput(output)
	}
	if logLevel <= WARN {
		l.warnLogger.SetOutput(output)
	}
	if logLevel <= ERROR {
		l.errorLogger.SetOutput(output)
	}
	defaultLogger = l
}

// setupLogFileOutput 设置按大小滚动的日志文件
func setupLogFileOutput(cfg *config.LogConfig) io.Writer {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		return nil
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 10
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
	}
}

// 调用层级: 调用方 -> Infof -> Output
const callDepth = 3

func output(l *log.Logger, s string) {
	_ = l.Output(callDepth, s)
}

// Debug 输出调试日志
func Debug(v ...interface{}) {
	if defaultLogger != nil {
		output(defaultLogger.debugLogger, fmt.Sprintln(v...))
	}
}

// Debugf 输出格式化调试日志
func Debugf(format string, v ...interface{}) {
	if defaultLogger != nil {
		output(defaultLogger.debugLogger, fmt.Sprintf(format, v...))
	}
}

// Info 输出信息日志
func Info(v ...interface{}) {
	if defaultLogger != nil {
		output(defaultLogger.infoLogger, fmt.Sprintln(v...))
	}
}

// Infof 输出格式化信息日志
func Infof(format string, v ...interface{}) {
	if defaultLogger != nil {
		output(defaultLogger.infoLogger, fmt.Sprintf(format, v...))
	}
}

// Warn 输出警告日志
func Warn(v ...interface{}) {
	if defaultLogger != nil {
		output(defaultLogger.warnLogger, fmt.Sprintln(v...))
	}
}

// Warnf 输出格式化警告日志
func Warnf(format string, v ...interface{}) {
	if defaultLogger != nil {
		output(defaultLogger.warnLogger, fmt.Sprintf(format, v...))
	}
}

// Error 输出错误日志
func Error(v ...interface{}) {
	if defaultLogger != nil {
		output(defaultLogger.errorLogger, fmt.Sprintln(v...))
	}
}

// Errorf 输出格式化错误日志
func Errorf(format string, v ...interface{}) {
	if defaultLogger != nil {
		output(defaultLogger.errorLogger, fmt.Sprintf(format, v...))
	}
}

// Fatal 输出致命错误日志并退出程序
func Fatal(v ...interface{}) {
	if defaultLogger != nil {
		output(defaultLogger.errorLogger, fmt.Sprintln(v...))
	} else {
		fmt.Fprintln(os.Stderr, append([]interface{}{"FATAL:"}, v...)...)
	}
	os.Exit(1)
}

// Fatalf 输出格式化致命错误日志并退出程序
func Fatalf(format string, v ...interface{}) {
	if defaultLogger != nil {
		output(defaultLogger.errorLogger, fmt.Sprintf(format, v...))
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", v...)
	}
	os.Exit(1)
}
