package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a LOG_LEVEL value to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger struct {
	level       atomic.Int32
	debugLogger *log.Logger
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
}

func New(out, errOut io.Writer) *Logger {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	l := &Logger{
		debugLogger: log.New(out, "DEBUG: ", flags),
		infoLogger:  log.New(out, "INFO: ", flags),
		warnLogger:  log.New(errOut, "WARN: ", flags),
		errorLogger: log.New(errOut, "ERROR: ", flags),
	}
	l.level.Store(int32(LevelInfo))
	return l
}

func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) enabled(level Level) bool {
	return Level(l.level.Load()) <= level
}

// output skips the wrapper frames so Lshortfile reports the caller.
func (l *Logger) output(target *log.Logger, level Level, depth int, format string, v ...interface{}) {
	if !l.enabled(level) {
		return
	}
	target.Output(depth, fmt.Sprintf(format, v...))
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.output(l.debugLogger, LevelDebug, 3, format, v...)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.output(l.infoLogger, LevelInfo, 3, format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.output(l.warnLogger, LevelWarn, 3, format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.output(l.errorLogger, LevelError, 3, format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.errorLogger.Output(2, fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Global logger instance
var GlobalLogger = New(os.Stdout, os.Stderr)

func SetLevel(level Level) {
	GlobalLogger.SetLevel(level)
}

// Convenience functions
func Debug(format string, v ...interface{}) {
	GlobalLogger.output(GlobalLogger.debugLogger, LevelDebug, 3, format, v...)
}

func Info(format string, v ...interface{}) {
	GlobalLogger.output(GlobalLogger.infoLogger, LevelInfo, 3, format, v...)
}

func Warn(format string, v ...interface{}) {
	GlobalLogger.output(GlobalLogger.warnLogger, LevelWarn, 3, format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.output(GlobalLogger.errorLogger, LevelError, 3, format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.errorLogger.Output(2, fmt.Sprintf(format, v...))
	os.Exit(1)
}
