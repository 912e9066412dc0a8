package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type LogLevel int

type Logger struct {
	logLevel LogLevel
	logDir   string
	logger   *log.Logger
}

const (
	DEBUG LogLevel = iota
	INFO
	ERROR
)

var (
	registryMu sync.RWMutex
	registry   = map[string]*Logger{}
)

var discard = &Logger{logLevel: ERROR + 1, logger: log.New(io.Discard, "", 0)}

// Get returns the logger registered under name, or a logger that drops
// everything when none was registered.
func Get(name string) (logger *Logger) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if ln, ok := registry[name]; ok {
		return ln
	}

	return discard
}

// New registers a file logger under name. Calling it again with the same
// name returns the logger created first.
func New(name string, logDir string, logLevel LogLevel) *Logger {
	registryMu.Lock()
	defer registryMu.Unlock()

	if logger, exists := registry[name]; exists {
		return logger
	}

	logger := setupLogger(logLevel, logDir)

	registry[name] = logger
	return logger
}

// NewWithWriter registers a logger under name that writes to w.
func NewWithWriter(name string, w io.Writer, logLevel LogLevel) *Logger {
	registryMu.Lock()
	defer registryMu.Unlock()

	if logger, exists := registry[name]; exists {
		return logger
	}

	logger := &Logger{
		logLevel: logLevel,
		logger:   log.New(w, name+" ", log.Ldate|log.Ltime|log.Lshortfile),
	}

	registry[name] = logger
	return logger
}

// ParseLevel maps "debug", "info" and "error" to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level %q", s)
	}
}

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "debug"
	case INFO:
		return "info"
	case ERROR:
		return "error"
	default:
		return "unknown"
	}
}

func (l *Logger) init() error {
	if err := os.MkdirAll(l.logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %v", err)
	}

	timestamp := time.Now().Format("2006-01-02")

	logFile, err := os.OpenFile(
		filepath.Join(l.logDir, fmt.Sprintf("AccountDesk-%s.log", timestamp)),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0644,
	)
	if err != nil {
		return fmt.Errorf("failed to open log file: %v", err)
	}

	l.logger = log.New(logFile, "", log.Ldate|log.Ltime|log.Lshortfile)

	return nil
}

func setupLogger(logLevel LogLevel, logDir string) *Logger {
	logger := &Logger{
		logLevel: logLevel,
		logDir:   logDir,
		logger:   nil,
	}

	if err := logger.init(); err != nil {
		panic(err)
	}

	return logger
}

func (l *Logger) Debug(format string, v ...any) {
	if l.logLevel <= DEBUG {
		_ = l.logger.Output(2, fmt.Sprintf("DEBUG: "+format, v...))
	}
}

func (l *Logger) Info(format string, v ...any) {
	if l.logLevel <= INFO {
		_ = l.logger.Output(2, fmt.Sprintf("INFO: "+format, v...))
	}
}

func (l *Logger) Error(format string, v ...any) {
	if l.logLevel <= ERROR {
		_ = l.logger.Output(2, fmt.Sprintf("ERROR: "+format, v...))
	}
}

func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry = map[string]*Logger{}
}
