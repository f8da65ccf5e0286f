// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
)

// Logger provides a simple leveled logging interface
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})

	// ForceDebug writes a debug line even if the debug gate is closed.
	ForceDebug(format string, args ...interface{})

	WithPrefix(prefix string) Logger
}

// Discard drops everything
var Discard Logger = New(io.Discard, "")

// debug 全局调试开关，所有 logger 共享
var debug atomic.Bool

// SetDebug toggles the global debug gate
func SetDebug(on bool) {
	debug.Store(on)
}

// DebugEnabled reports the state of the global debug gate
func DebugEnabled() bool {
	return debug.Load()
}

type defaultLogger struct {
	out    *log.Logger
	prefix string
}

// New creates a Logger writing to w. A nil writer means stderr.
func New(w io.Writer, prefix string) Logger {
	if w == nil {
		w = os.Stderr
	}
	return &defaultLogger{
		out:    log.New(w, "", log.LstdFlags),
		prefix: prefix,
	}
}

func (l *defaultLogger) WithPrefix(prefix string) Logger {
	return &defaultLogger{out: l.out, prefix: l.prefix + "[" + prefix + "] "}
}

func (l *defaultLogger) Debug(format string, args ...interface{}) {
	if !debug.Load() {
		return
	}
	l.print("DEBUG", format, args...)
}

func (l *defaultLogger) ForceDebug(format string, args ...interface{}) {
	l.print("DEBUG", format, args...)
}

func (l *defaultLogger) Info(format string, args ...interface{}) {
	l.print("INFO", format, args...)
}

func (l *defaultLogger) Warn(format string, args ...interface{}) {
	l.print("WARN", format, args...)
}

func (l *defaultLogger) Error(format string, args ...interface{}) {
	l.print("ERROR", format, args...)
}

func (l *defaultLogger) print(level, format string, args ...interface{}) {
	l.out.Print("[" + level + "] " + l.prefix + fmt.Sprintf(format, args...))
}
