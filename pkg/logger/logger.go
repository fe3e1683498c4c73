// Package logger provides area-based file logging with atomic
// per-area switches so disabled areas cost a single atomic load.
package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clarolang/claroterm/pkg/configuration"
)

// LogLevel orders log severities.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var logLevelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// LogArea groups log output by subsystem. Areas are toggled
// individually in the [Debug] section of the configuration file.
type LogArea string

const (
	AreaWebSocket   LogArea = "websocket"
	AreaTerminal    LogArea = "terminal"
	AreaInterpreter LogArea = "interpreter"
	AreaAuth        LogArea = "auth"
	AreaDatabase    LogArea = "database"
	AreaFileSystem  LogArea = "filesystem"
	AreaSession     LogArea = "session"
	AreaConfig      LogArea = "config"
	AreaGeneral     LogArea = "general"
)

var allAreas = []LogArea{
	AreaWebSocket, AreaTerminal, AreaInterpreter, AreaAuth,
	AreaDatabase, AreaFileSystem, AreaSession, AreaConfig, AreaGeneral,
}

// Logger writes area-tagged entries to a rotating log file.
type Logger struct {
	enabled       int32              // atomic bool, checked on every call
	level         int32              // atomic LogLevel
	areaEnabled   map[LogArea]*int32 // atomic bools per area
	file          *os.File
	mutex         sync.RWMutex
	logPath       string
	maxSizeMB     int64
	rotationCount int
	currentSize   int64
}

var (
	globalLogger *Logger
	initOnce     sync.Once
)

// Initialize sets up the global logging system from configuration.
func Initialize() error {
	var err error
	initOnce.Do(func() {
		globalLogger, err = newLogger()
	})
	return err
}

func newLogger() (*Logger, error) {
	l := &Logger{
		areaEnabled: make(map[LogArea]*int32),
	}
	for _, area := range allAreas {
		l.areaEnabled[area] = new(int32)
	}
	if err := l.loadConfig(); err != nil {
		return nil, err
	}
	if err := l.openLogFile(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) loadConfig() error {
	enabled := configuration.GetBool("Debug", "enable_debug_logging", true)
	atomic.StoreInt32(&l.enabled, boolToInt32(enabled))

	levelStr := configuration.GetString("Debug", "log_level", "INFO")
	atomic.StoreInt32(&l.level, int32(parseLogLevel(levelStr)))

	l.logPath = configuration.GetString("Debug", "log_file", "debug.log")
	l.maxSizeMB = int64(configuration.GetInt("Debug", "max_log_size_mb", 10))
	l.rotationCount = configuration.GetInt("Debug", "log_rotation_count", 3)

	for area, atomicBool := range l.areaEnabled {
		configKey := fmt.Sprintf("log_%s", string(area))
		enabled := configuration.GetBool("Debug", configKey, false)
		atomic.StoreInt32(atomicBool, boolToInt32(enabled))
	}
	return nil
}

func (l *Logger) openLogFile() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	dir := filepath.Dir(l.logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	l.file = file

	if stat, err := file.Stat(); err == nil {
		l.currentSize = stat.Size()
	}
	return nil
}

// rotateLogFile shifts existing rotations up by one and starts a
// fresh file. Caller must hold the mutex.
func (l *Logger) rotateLogFile() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	for i := l.rotationCount - 1; i >= 1; i-- {
		oldName := fmt.Sprintf("%s.%d", l.logPath, i)
		newName := fmt.Sprintf("%s.%d", l.logPath, i+1)
		if i == l.rotationCount-1 {
			os.Remove(newName)
		}
		os.Rename(oldName, newName)
	}
	os.Rename(l.logPath, l.logPath+".1")

	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	l.file = file
	l.currentSize = 0
	return nil
}

func (l *Logger) isEnabled() bool {
	return atomic.LoadInt32(&l.enabled) != 0
}

func (l *Logger) isAreaEnabled(area LogArea) bool {
	if atomicBool, exists := l.areaEnabled[area]; exists {
		return atomic.LoadInt32(atomicBool) != 0
	}
	return false
}

func (l *Logger) shouldLog(level LogLevel, area LogArea) bool {
	if !l.isEnabled() {
		return false
	}
	if atomic.LoadInt32(&l.level) > int32(level) {
		return false
	}
	return l.isAreaEnabled(area)
}

func (l *Logger) writeLog(level LogLevel, area LogArea, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)

	_, file, line, _ := runtime.Caller(3)
	filename := filepath.Base(file)

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	logEntry := fmt.Sprintf("[%s] %s [%s:%d] [%s] %s\n",
		timestamp,
		logLevelNames[level],
		filename,
		line,
		strings.ToUpper(string(area)),
		message)

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file != nil {
		n, err := l.file.WriteString(logEntry)
		if err == nil {
			l.currentSize += int64(n)
			l.file.Sync()
			if l.currentSize > l.maxSizeMB*1024*1024 {
				l.rotateLogFile()
			}
		}
	}

	// Warnings and above also go to the standard log.
	if level >= WARN {
		log.Printf("[%s] [%s] %s", logLevelNames[level], strings.ToUpper(string(area)), message)
	}
}

// Debug logs a debug-level entry for an area.
func Debug(area LogArea, format string, args ...interface{}) {
	if globalLogger != nil && globalLogger.shouldLog(DEBUG, area) {
		globalLogger.writeLog(DEBUG, area, format, args...)
	}
}

// Info logs an info-level entry for an area.
func Info(area LogArea, format string, args ...interface{}) {
	if globalLogger != nil && globalLogger.shouldLog(INFO, area) {
		globalLogger.writeLog(INFO, area, format, args...)
	}
}

// Warn logs a warning-level entry for an area.
func Warn(area LogArea, format string, args ...interface{}) {
	if globalLogger != nil && globalLogger.shouldLog(WARN, area) {
		globalLogger.writeLog(WARN, area, format, args...)
	}
}

// Error logs an error-level entry for an area.
func Error(area LogArea, format string, args ...interface{}) {
	if globalLogger != nil && globalLogger.shouldLog(ERROR, area) {
		globalLogger.writeLog(ERROR, area, format, args...)
	}
}

// Fatal logs the entry and terminates the process.
func Fatal(area LogArea, format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.writeLog(FATAL, area, format, args...)
	}
	log.Fatalf("[FATAL] [%s] %s", strings.ToUpper(string(area)), fmt.Sprintf(format, args...))
}

// ReloadConfig re-reads the logging configuration.
func ReloadConfig() error {
	if globalLogger != nil {
		return globalLogger.loadConfig()
	}
	return fmt.Errorf("logger not initialized")
}

// EnableArea turns on logging for one area at runtime.
func EnableArea(area LogArea) {
	if globalLogger != nil {
		if atomicBool, exists := globalLogger.areaEnabled[area]; exists {
			atomic.StoreInt32(atomicBool, 1)
		}
	}
}

// DisableArea turns off logging for one area at runtime.
func DisableArea(area LogArea) {
	if globalLogger != nil {
		if atomicBool, exists := globalLogger.areaEnabled[area]; exists {
			atomic.StoreInt32(atomicBool, 0)
		}
	}
}

// GetAreaStatus reports whether an area is currently enabled.
func GetAreaStatus(area LogArea) bool {
	if globalLogger != nil {
		return globalLogger.isAreaEnabled(area)
	}
	return false
}

// ListAreas returns all known log areas.
func ListAreas() []LogArea {
	areas := make([]LogArea, len(allAreas))
	copy(areas, allAreas)
	return areas
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Close flushes and closes the log file.
func Close() {
	if globalLogger != nil {
		globalLogger.mutex.Lock()
		defer globalLogger.mutex.Unlock()
		if globalLogger.file != nil {
			globalLogger.file.Close()
			globalLogger.file = nil
		}
	}
}
