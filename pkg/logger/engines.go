package logger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// EngineLogsConfig maps an engine name to its append-only log destination.
type EngineLogsConfig struct {
	Level  string
	Format string
	Files  map[string]string
}

// EngineLogs owns one logger per forecasting engine. It is opened once per
// process and must be closed at shutdown.
type EngineLogs struct {
	mu       sync.RWMutex
	loggers  map[string]*Logger
	fallback *Logger
	closed   bool
}

// OpenEngineLogs opens every configured destination. On failure, the files
// already opened are closed again.
func OpenEngineLogs(cfg EngineLogsConfig) (*EngineLogs, error) {
	el := &EngineLogs{loggers: make(map[string]*Logger, len(cfg.Files)), fallback: Nop()}

	names := make([]string, 0, len(cfg.Files))
	for name := range cfg.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		l, err := New(&Config{
			Level:  cfg.Level,
			Format: cfg.Format,
			Output: cfg.Files[name],
		})
		if err != nil {
			_ = el.Close()
			return nil, fmt.Errorf("open %s engine log: %w", name, err)
		}
		el.loggers[name] = l.With(String("engine", name))
		el.loggers[name].closer = l.closer
	}
	return el, nil
}

// NewEngineLogs wraps already constructed loggers, e.g. buffers in tests.
func NewEngineLogs(loggers map[string]*Logger) *EngineLogs {
	el := &EngineLogs{loggers: make(map[string]*Logger, len(loggers)), fallback: Nop()}
	for name, l := range loggers {
		el.loggers[name] = l
	}
	return el
}

// NopEngineLogs discards every engine log line.
func NopEngineLogs() *EngineLogs {
	return NewEngineLogs(nil)
}

// For returns the logger of the named engine, or a no-op logger.
func (e *EngineLogs) For(name string) *Logger {
	if e == nil {
		return Nop()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if l, ok := e.loggers[name]; ok && !e.closed {
		return l
	}
	return e.fallback
}

func (e *EngineLogs) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for name, l := range e.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
