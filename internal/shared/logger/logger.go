package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Level: DEBUG, INFO, WARN, ERROR
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ErrObj: описание ошибки в записи лога
type ErrObj struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack,omitempty"`
}

// Entry: одна запись лога
type Entry struct {
	Timestamp  string         `json:"timestamp"`            // ISO 8601 (UTC)
	Level      string         `json:"level"`                // DEBUG | INFO | WARN | ERROR
	Service    string         `json:"service"`              // e.g. beside-requester
	Action     string         `json:"action"`               // event name, e.g. trip_requested
	Message    string         `json:"message"`              // human-readable
	Hostname   string         `json:"hostname"`             // device / host
	RequestID  string         `json:"request_id,omitempty"` // X-Request-ID исходящего запроса
	TripID     string         `json:"trip_id,omitempty"`    // when applicable
	Error      *ErrObj        `json:"error,omitempty"`
	Additional map[string]any `json:"additional,omitempty"`
}

// Err: короткий конструктор ErrObj
func Err(err error) *ErrObj {
	if err == nil {
		return nil
	}
	return &ErrObj{Msg: err.Error()}
}

type Logger struct {
	service  string
	minLevel Level
	hostname string
	pretty   bool

	mu        sync.Mutex
	outWriter io.Writer
	errWriter io.Writer
	closers   []io.Closer
}

// NewLogger пишет в stdout/stderr, уровень из LOG_LEVEL
func NewLogger(service string) *Logger {
	h, _ := os.Hostname()
	return &Logger{
		service:   service,
		minLevel:  ParseLevel(os.Getenv("LOG_LEVEL")),
		hostname:  h,
		pretty:    strings.EqualFold(os.Getenv("LOG_PRETTY"), "true"),
		outWriter: os.Stdout,
		errWriter: os.Stderr,
	}
}

// NewWithWriter пишет все уровни в один writer (тесты, встраивание)
func NewWithWriter(service string, minLevel Level, w io.Writer) *Logger {
	h, _ := os.Hostname()
	return &Logger{
		service:   service,
		minLevel:  minLevel,
		hostname:  h,
		outWriter: w,
		errWriter: w,
	}
}

// NewLoggerWithOptions supports minLevel and optional fileDir.
// If fileDir != "", logs are duplicated into info.log / error.log.
func NewLoggerWithOptions(service, minLevelStr, fileDir string) (*Logger, error) {
	l := NewLogger(service)
	l.minLevel = ParseLevel(minLevelStr)
	if fileDir == "" {
		return l, nil
	}

	if err := os.MkdirAll(fileDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	infoF, err := os.OpenFile(filepath.Join(fileDir, "info.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open info log: %w", err)
	}
	errF, err := os.OpenFile(filepath.Join(fileDir, "error.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		_ = infoF.Close()
		return nil, fmt.Errorf("open error log: %w", err)
	}

	l.outWriter = io.MultiWriter(os.Stdout, infoF)
	l.errWriter = io.MultiWriter(os.Stderr, errF)
	l.closers = []io.Closer{infoF, errF}
	return l, nil
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.closers {
		_ = c.Close()
	}
	l.closers = nil
}

func (l *Logger) Debug(e Entry) { l.log(LevelDebug, e, nil) }
func (l *Logger) Info(e Entry)  { l.log(LevelInfo, e, nil) }
func (l *Logger) Warn(e Entry)  { l.log(LevelWarn, e, nil) }
func (l *Logger) Error(e Entry) { l.log(LevelError, e, nil) }
func (l *Logger) Fatal(e Entry) {
	if e.Error == nil {
		e.Error = &ErrObj{Msg: e.Message}
	}
	if e.Error.Stack == "" {
		e.Error.Stack = string(debug.Stack())
	}
	l.log(LevelError, e, nil)
	os.Exit(1)
}

// WithTrip returns a context logger that stamps trip_id on every entry.
func (l *Logger) WithTrip(tripID string) *ContextLogger {
	return &ContextLogger{parent: l, tripID: tripID}
}

// WithFields returns a context logger that merges base into Additional.
func (l *Logger) WithFields(base map[string]any) *ContextLogger {
	return &ContextLogger{parent: l, base: base}
}

type ContextLogger struct {
	parent *Logger
	tripID string
	base   map[string]any
}

func (c *ContextLogger) Debug(e Entry) { c.parent.log(LevelDebug, c.merge(e), c.base) }
func (c *ContextLogger) Info(e Entry)  { c.parent.log(LevelInfo, c.merge(e), c.base) }
func (c *ContextLogger) Warn(e Entry)  { c.parent.log(LevelWarn, c.merge(e), c.base) }
func (c *ContextLogger) Error(e Entry) { c.parent.log(LevelError, c.merge(e), c.base) }

func (c *ContextLogger) merge(e Entry) Entry {
	if e.TripID == "" {
		e.TripID = c.tripID
	}
	return e
}

func (l *Logger) log(level Level, e Entry, base map[string]any) {
	if level < l.minLevel {
		return
	}

	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	e.Level = level.String()
	if e.Service == "" {
		e.Service = l.service
	}
	if e.Hostname == "" {
		e.Hostname = l.hostname
	}

	if len(base) > 0 {
		if e.Additional == nil {
			e.Additional = make(map[string]any, len(base))
		}
		for k, v := range base {
			if _, exists := e.Additional[k]; !exists {
				e.Additional[k] = v
			}
		}
	}

	if level >= LevelWarn {
		if e.Additional == nil {
			e.Additional = make(map[string]any)
		}
		if pc, file, line, ok := runtime.Caller(2); ok {
			e.Additional["caller"] = fmt.Sprintf("%s:%d (%s)", filepath.Base(file), line, funcName(runtime.FuncForPC(pc)))
		}
	}

	var (
		b   []byte
		err error
	)
	if l.pretty {
		b, err = json.MarshalIndent(e, "", "  ")
	} else {
		b, err = json.Marshal(e)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		fmt.Fprintf(l.errWriter, `{"timestamp":"%s","level":"ERROR","service":"%s","message":"failed to marshal log: %v"}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano), l.service, err)
		return
	}

	writer := l.outWriter
	if level == LevelError {
		writer = l.errWriter
	}
	_, _ = writer.Write(append(b, '\n'))
}

func funcName(fn *runtime.Func) string {
	if fn == nil {
		return "unknown"
	}
	return fn.Name()
}
