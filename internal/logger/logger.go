package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

type Logger struct {
	mu           sync.Mutex
	out          io.Writer
	logFile      *os.File
	colorEnabled bool
	minLevel     LogLevel
}

// NewLogger writes colored lines to stdout and, when dir is non-empty, JSON lines to
// a daily file named after the service.
func NewLogger(service, dir string) *Logger {
	l := &Logger{
		out:          os.Stdout,
		colorEnabled: true,
		minLevel:     DEBUG,
	}

	if dir == "" {
		return l
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatal("Failed to create logs directory:", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	logFileName := filepath.Join(dir, fmt.Sprintf("%s-%s.log", service, timestamp))

	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatal("Failed to create log file:", err)
	}
	l.logFile = logFile

	l.Info("LOGGER", fmt.Sprintf("Log file: %s", logFileName))
	return l
}

// NewWriter logs plain (uncolored) lines to w. Used by tests to capture output.
func NewWriter(w io.Writer) *Logger {
	return &Logger{out: w, minLevel: DEBUG}
}

// NewDiscard drops everything.
func NewDiscard() *Logger {
	return &Logger{out: io.Discard, minLevel: FATAL + 1}
}

func (l *Logger) SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		l.minLevel = DEBUG
	case "WARN":
		l.minLevel = WARN
	case "ERROR":
		l.minLevel = ERROR
	default:
		l.minLevel = INFO
	}
}

func (l *Logger) log(level LogLevel, category, message string) {
	if level < l.minLevel {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     levelName(level),
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprint(l.out, l.terminalLine(level, entry))

	if l.logFile != nil {
		if b, err := json.Marshal(entry); err == nil {
			l.logFile.Write(append(b, '\n'))
		}
	}
}

type levelStyle struct {
	name     string
	level    *color.Color
	category *color.Color
}

var styles = map[LogLevel]levelStyle{
	DEBUG: {"DEBUG", color.New(color.FgCyan), color.New(color.FgCyan, color.Bold)},
	INFO:  {"INFO", color.New(color.FgGreen), color.New(color.FgGreen, color.Bold)},
	WARN:  {"WARN", color.New(color.FgYellow), color.New(color.FgYellow, color.Bold)},
	ERROR: {"ERROR", color.New(color.FgRed, color.Bold), color.New(color.FgRed, color.Bold)},
	FATAL: {"FATAL", color.New(color.FgRed, color.Bold), color.New(color.FgRed, color.Bold)},
}

var (
	timeColor = color.New(color.FgBlue)
	fileColor = color.New(color.FgMagenta)
)

// terminalLine renders entry for a terminal. Plain writers get the same layout
// without escape codes.
func (l *Logger) terminalLine(level LogLevel, entry LogEntry) string {
	clock := entry.Timestamp[11:19]
	if !l.colorEnabled {
		return fmt.Sprintf("%s %-5s [%-10s] %s\n", clock, entry.Level, entry.Category, entry.Message)
	}

	st := styles[level]
	line := fmt.Sprintf("%s %s %s %s",
		timeColor.Sprint(clock),
		st.level.Sprintf("%-5s", entry.Level),
		st.category.Sprintf("[%-10s]", entry.Category),
		entry.Message)
	if entry.File != "" && entry.Line > 0 {
		line += fileColor.Sprintf(" (%s:%d)", entry.File, entry.Line)
	}
	return line + "\n"
}

func levelName(level LogLevel) string {
	if st, ok := styles[level]; ok {
		return st.name
	}
	return "INFO"
}

func (l *Logger) Debug(category, message string) {
	l.log(DEBUG, category, message)
}

func (l *Logger) Info(category, message string) {
	l.log(INFO, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.log(WARN, category, message)
}

func (l *Logger) Error(category, message string) {
	l.log(ERROR, category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	os.Exit(1)
}

// Category helpers used across the service.
func (l *Logger) LogOrder(action, orderNumber, message string) {
	l.Info("ORDER", fmt.Sprintf("[%s] %s - %s", action, orderNumber, message))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.Info("API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.Info("KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.Warn("SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	if l.logFile != nil {
		l.Info("LOGGER", "Closing log file")
		l.logFile.Close()
	}
}
