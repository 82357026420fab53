// Package logger provides charmbracelet/log loggers for the packages of faultyai.
//
// Every logger writes to stderr: in server mode stdout carries the IPC stream.
// Loggers made by New follow SetLevel, so package-level loggers created at init
// still honour the -d flag.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	mu       sync.Mutex
	registry []*log.Logger
	output   io.Writer = os.Stderr
)

// New creates a charm log with the given prefix at the current global level.
func New(prefix string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	l := log.NewWithOptions(output, log.Options{
		Prefix:          prefix,
		ReportCaller:    false,
		ReportTimestamp: false,
		Formatter:       log.TextFormatter,
		Level:           log.GetLevel(),
	})
	registry = append(registry, l)
	return l
}

// NewWithConfig creates a new charm log with custom config. It does not follow SetLevel.
func NewWithConfig(prefix string, level log.Level, caller bool, showTimestamp bool, fmt log.Formatter) *log.Logger {
	return log.NewWithOptions(output, log.Options{
		Prefix:          prefix,
		Level:           level,
		ReportCaller:    caller,
		ReportTimestamp: showTimestamp,
		Formatter:       fmt,
	})
}

// SetLevel changes the level of the default logger and of every logger made by New.
func SetLevel(level log.Level) {
	log.SetLevel(level)
	mu.Lock()
	defer mu.Unlock()
	for _, l := range registry {
		l.SetLevel(level)
	}
}

// SetReportTimestamp toggles timestamps on the default logger and every logger made by New.
func SetReportTimestamp(on bool) {
	log.SetReportTimestamp(on)
	mu.Lock()
	defer mu.Unlock()
	for _, l := range registry {
		l.SetReportTimestamp(on)
	}
}

// SetOutput redirects the default logger and every logger made by New.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
	mu.Lock()
	defer mu.Unlock()
	output = w
	for _, l := range registry {
		l.SetOutput(w)
	}
}
