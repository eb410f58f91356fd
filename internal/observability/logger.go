package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeSummary     EventType = "summary"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeTransition  EventType = "transition"
	EventTypeRetrieval   EventType = "retrieval"
	EventTypeLLM         EventType = "llm"
	EventTypeError       EventType = "error"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger emits typed events through slog and mirrors LLM exchanges to a
// rotated JSONL file.
type Logger struct {
	slog       *slog.Logger
	llmLogPath string
	maxSize    int64

	mu sync.Mutex
}

// NewHandler builds the console handler: tint for text, slog JSON otherwise.
// Color is only used when out is a terminal.
func NewHandler(out io.Writer, format string, level slog.Level) slog.Handler {
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	}
	noColor := true
	if f, ok := out.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}
	return tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05.000Z07:00",
		NoColor:    noColor,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindAny {
				if _, ok := a.Value.Any().(error); ok {
					return tint.Attr(9, a)
				}
			}
			return a
		},
	})
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger wraps handler. An empty llmLogPath disables the JSONL mirror.
func NewLogger(handler slog.Handler, llmLogPath string) *Logger {
	return &Logger{
		slog:       slog.New(handler),
		llmLogPath: llmLogPath,
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil), "")
}

// Slog exposes the underlying logger for components that log free-form.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	level := slog.LevelInfo
	switch evt.Type {
	case EventTypeLLM, EventTypeTransition:
		level = slog.LevelDebug
	case EventTypeError:
		level = slog.LevelError
	}
	l.slog.Log(context.Background(), level, string(evt.Type),
		slog.String("task_id", evt.TaskID),
		slog.Any("data", evt.Data),
	)

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		data, err := json.Marshal(evt)
		if err != nil {
			l.slog.Warn("failed to marshal llm event", slog.Any("err", err))
			return
		}
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		l.slog.Warn("failed to create log directory", slog.Any("err", err))
		return
	}

	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.slog.Warn("failed to open log file", slog.Any("err", err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.slog.Warn("failed to write to log file", slog.Any("err", err))
	}
}

// keep one .old file
func (l *Logger) rotateLogs() {
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

func (l *Logger) LogPlan(taskID, task string, steps any) {
	l.Log(Event{
		Type:   EventTypePlan,
		TaskID: taskID,
		Data:   map[string]any{"task": task, "steps": steps},
	})
}

func (l *Logger) LogStep(taskID string, index int, name, status string) {
	l.Log(Event{
		Type:   EventTypeStep,
		TaskID: taskID,
		Data:   map[string]any{"index": index, "step": name, "status": status},
	})
}

func (l *Logger) LogSummary(taskID string, chars int) {
	l.Log(Event{
		Type:   EventTypeSummary,
		TaskID: taskID,
		Data:   map[string]any{"chars": chars},
	})
}

func (l *Logger) LogToolCall(taskID, tool, args string) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		TaskID: taskID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(taskID, tool, result string) {
	l.Log(Event{
		Type:   EventTypeToolResult,
		TaskID: taskID,
		Data: map[string]string{
			"tool":   tool,
			"result": result,
		},
	})
}

func (l *Logger) LogPolicyCheck(taskID, tool, effect, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		TaskID: taskID,
		Data: map[string]string{
			"tool":   tool,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogTransition(taskID string, turn int, from, to string) {
	l.Log(Event{
		Type:   EventTypeTransition,
		TaskID: taskID,
		Data:   map[string]any{"turn": turn, "from": from, "to": to},
	})
}

func (l *Logger) LogRetrieval(taskID, query string, matches int) {
	l.Log(Event{
		Type:   EventTypeRetrieval,
		TaskID: taskID,
		Data:   map[string]any{"query": query, "matches": matches},
	})
}

func (l *Logger) LogLLM(taskID, stage string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		TaskID: taskID,
		Data: map[string]any{
			"stage":      stage,
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}

// LogError records a failure with the raw error; callers map it to a safe
// message separately.
func (l *Logger) LogError(taskID, stage string, err error) {
	l.Log(Event{
		Type:   EventTypeError,
		TaskID: taskID,
		Data:   map[string]string{"stage": stage, "error": fmt.Sprint(err)},
	})
}

type taskIDKey struct{}

// WithTaskID tags ctx with the id events of one invocation are logged under.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey{}, taskID)
}

// TaskID returns the id set by WithTaskID, or "".
func TaskID(ctx context.Context) string {
	id, _ := ctx.Value(taskIDKey{}).(string)
	return id
}
