package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger

	levelMu  sync.RWMutex
	minLevel = levelDebug
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

func levelRank(level string) int {
	switch level {
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// SetLevel suppresses Event lines below the given level ("debug", "info",
// "warn", "error"). Request logs and audit events are not filtered.
func SetLevel(level string) {
	levelMu.Lock()
	minLevel = levelRank(level)
	levelMu.Unlock()
}

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits a structured JSON log line with common HTTP fields.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// Event emits a JSON log line with the given level, message and fields.
// Used by the session guard and registry where the rejection cause must be
// logged even though callers only ever see a generic error.
func Event(level, msg string, fields map[string]any) {
	levelMu.RLock()
	skip := levelRank(level) < minLevel
	levelMu.RUnlock()
	if skip {
		return
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"msg":   msg,
	}
	for k, v := range fields {
		entry[k] = v
	}
	LogRequest(entry)
}

// Warn is shorthand for Event("warn", ...).
func Warn(msg string, fields map[string]any) { Event("warn", msg, fields) }

// Info is shorthand for Event("info", ...).
func Info(msg string, fields map[string]any) { Event("info", msg, fields) }

// Error is shorthand for Event("error", ...).
func Error(msg string, fields map[string]any) { Event("error", msg, fields) }
