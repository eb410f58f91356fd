package agent_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/patternlab/internal/agent"
	"github.com/rahul/patternlab/internal/fault"
	"github.com/rahul/patternlab/internal/governance"
	"github.com/rahul/patternlab/internal/llm/llmtest"
	"github.com/rahul/patternlab/internal/observability"
	"github.com/rahul/patternlab/internal/tools"
)

type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// stubTool answers with a fixed result after an optional delay and records
// the order in which executions finished.
type stubTool struct {
	name     string
	result   string
	delay    time.Duration
	err      error
	finished *recorder
}

func (s *stubTool) Name() string               { return s.name }
func (s *stubTool) Description() string        { return "stub " + s.name }
func (s *stubTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (s *stubTool) Execute(ctx context.Context, input string) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.finished != nil {
		s.finished.add(s.name)
	}
	if s.err != nil {
		return "", s.err
	}
	return s.result, nil
}

func newToolLoop(t *testing.T, model *llmtest.ScriptedModel, registered ...tools.Tool) *agent.ToolLoop {
	t.Helper()
	registry := tools.NewRegistry()
	for _, tool := range registered {
		require.NoError(t, registry.Register(tool))
	}
	return agent.NewToolLoop(model, registry, governance.NewDefaultPolicyEngine(), defaultPrompts(t), observability.Discard())
}

func TestToolLoop_Calculator(t *testing.T) {
	model := llmtest.NewScriptedModel(
		llmtest.ToolCalls(llmtest.FunctionCall("call_1", "calculator", `{"expression":"12 * 7"}`)),
		llmtest.Text("12 * 7 is 84."),
	)
	loop := newToolLoop(t, model, tools.NewCalculatorTool())

	res, err := loop.Run(context.Background(), "What is 12 * 7?")
	require.NoError(t, err)
	assert.Equal(t, "12 * 7 is 84.", res.Response)
	assert.Equal(t, 2, res.Turns)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, agent.ToolCall{
		Name:      "calculator",
		Arguments: map[string]any{"expression": "12 * 7"},
		Result:    "84",
	}, res.ToolCalls[0])

	calls := model.Calls()
	require.Len(t, calls, 2)
	require.Len(t, calls[0].Options.Tools, 1)
	assert.Equal(t, "calculator", calls[0].Options.Tools[0].Function.Name)

	// system, user, assistant with the request, then the tool result
	second := calls[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, llms.ChatMessageTypeAI, second[2].Role)
	require.Len(t, second[2].Parts, 1)
	assert.IsType(t, llms.ToolCall{}, second[2].Parts[0])
	assert.Equal(t, llms.ChatMessageTypeTool, second[3].Role)
	assert.Equal(t, llms.ToolCallResponse{ToolCallID: "call_1", Name: "calculator", Content: "84"}, second[3].Parts[0])
}

func TestToolLoop_WeatherPlaceholderReachesModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"cod":"404"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	model := llmtest.NewScriptedModel(
		llmtest.ToolCalls(llmtest.FunctionCall("w1", "weather", `{"location":"Atlantis"}`)),
		llmtest.Text("I could not find the weather for Atlantis."),
	)
	loop := newToolLoop(t, model, tools.NewWeatherTool("key", srv.URL, time.Second, nil))

	res, err := loop.Run(context.Background(), "Weather in Atlantis?")
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "Weather in Atlantis is not available", res.ToolCalls[0].Result)
}

func TestToolLoop_TerminatesOnFirstTextTurn(t *testing.T) {
	model := llmtest.NewScriptedModel(
		llmtest.Text("No tools needed."),
		llmtest.Text("must not be requested"),
	)
	res, err := newToolLoop(t, model, tools.NewCalculatorTool()).Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "No tools needed.", res.Response)
	assert.Empty(t, res.ToolCalls)
	assert.Len(t, model.Calls(), 1)
}

func TestToolLoop_ToolCallsKeepCallOrder(t *testing.T) {
	model := llmtest.NewScriptedModel(
		llmtest.ToolCalls(
			llmtest.FunctionCall("a", "calculator", `{"expression":"1 + 1"}`),
			llmtest.FunctionCall("b", "search", `{"query":"go"}`),
		),
		llmtest.ToolCalls(llmtest.FunctionCall("c", "calculator", `{"expression":"2 * 3"}`)),
		llmtest.Text("done"),
	)
	search := &stubTool{name: "search", result: `{"query":"go","results":[]}`}
	res, err := newToolLoop(t, model, tools.NewCalculatorTool(), search).Run(context.Background(), "do things")
	require.NoError(t, err)

	require.Len(t, res.ToolCalls, 3)
	assert.Equal(t, "2", res.ToolCalls[0].Result)
	assert.Equal(t, "search", res.ToolCalls[1].Name)
	assert.Equal(t, "6", res.ToolCalls[2].Result)
	assert.Equal(t, 3, res.Turns)
}

func TestToolLoop_ParallelDispatchAppendsInRequestOrder(t *testing.T) {
	finished := &recorder{}
	slow := &stubTool{name: "weather", result: "slow", delay: 50 * time.Millisecond, finished: finished}
	fast := &stubTool{name: "search", result: "fast", finished: finished}

	model := llmtest.NewScriptedModel(
		llmtest.ToolCalls(
			llmtest.FunctionCall("1", "weather", `{"location":"Paris"}`),
			llmtest.FunctionCall("2", "search", `{"query":"paris"}`),
		),
		llmtest.Text("done"),
	)
	loop := newToolLoop(t, model, slow, fast)
	loop.ParallelTools = true

	res, err := loop.Run(context.Background(), "weather and news for Paris")
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, "slow", res.ToolCalls[0].Result)
	assert.Equal(t, "fast", res.ToolCalls[1].Result)
	assert.Equal(t, []string{"search", "weather"}, finished.list(), "fast tool finished first")

	msgs := model.Calls()[1].Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, "1", msgs[3].Parts[0].(llms.ToolCallResponse).ToolCallID)
	assert.Equal(t, "2", msgs[4].Parts[0].(llms.ToolCallResponse).ToolCallID)
}

func TestToolLoop_FatalDispatchErrors(t *testing.T) {
	toolErr := errors.New("backend unreachable")
	cases := []struct {
		name   string
		call   llms.ToolCall
		policy func(*governance.DefaultPolicyEngine)
		want   error
	}{
		{
			name: "unknown tool",
			call: llmtest.FunctionCall("1", "shell", `{"cmd":"ls"}`),
			want: tools.ErrUnknownTool,
		},
		{
			name: "invalid arguments",
			call: llmtest.FunctionCall("1", "calculator", `{"expression":`),
			want: agent.ErrInvalidToolArguments,
		},
		{
			name: "arguments not an object",
			call: llmtest.FunctionCall("1", "calculator", `["12 * 7"]`),
			want: agent.ErrInvalidToolArguments,
		},
		{
			name:   "denied tool",
			call:   llmtest.FunctionCall("1", "calculator", `{"expression":"1"}`),
			policy: func(e *governance.DefaultPolicyEngine) { e.DenyTool("calculator") },
			want:   agent.ErrToolDenied,
		},
		{
			name:   "denied argument key",
			call:   llmtest.FunctionCall("1", "calculator", `{"expression":"1","precision":2}`),
			policy: func(e *governance.DefaultPolicyEngine) { e.DenyArgumentKey("precision") },
			want:   agent.ErrToolDenied,
		},
		{
			name: "failing tool",
			call: llmtest.FunctionCall("1", "search", `{"query":"x"}`),
			want: toolErr,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := llmtest.NewScriptedModel(llmtest.ToolCalls(tc.call), llmtest.Text("unused"))
			loop := newToolLoop(t, model, tools.NewCalculatorTool(), &stubTool{name: "search", err: toolErr})
			if tc.policy != nil {
				engine := governance.NewDefaultPolicyEngine()
				tc.policy(engine)
				loop.Policy = engine
			}

			res, err := loop.Run(context.Background(), "go")
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, fault.ErrToolExecution)
			assert.Len(t, model.Calls(), 1)
		})
	}
}

func TestToolLoop_DeniedCallDoesNotRunEarlierCalls(t *testing.T) {
	finished := &recorder{}
	search := &stubTool{name: "search", result: "r", finished: finished}
	model := llmtest.NewScriptedModel(llmtest.ToolCalls(
		llmtest.FunctionCall("1", "search", `{"query":"ok"}`),
		llmtest.FunctionCall("2", "calculator", `{"expression":"rm -rf"}`),
	))
	loop := newToolLoop(t, model, tools.NewCalculatorTool(), search)
	engine := governance.NewDefaultPolicyEngine()
	require.NoError(t, engine.DenyArguments(`rm\s+-rf`))
	loop.Policy = engine

	_, err := loop.Run(context.Background(), "go")
	assert.ErrorIs(t, err, agent.ErrToolDenied)
	assert.Empty(t, finished.list())
}

func TestToolLoop_LoopExceeded(t *testing.T) {
	turn := llmtest.ToolCalls(llmtest.FunctionCall("1", "calculator", `{"expression":"1 + 1"}`))
	model := llmtest.NewScriptedModel(turn, turn, turn, llmtest.Text("too late"))
	loop := newToolLoop(t, model, tools.NewCalculatorTool())
	loop.MaxTurns = 3

	res, err := loop.Run(context.Background(), "loop forever")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, agent.ErrLoopExceeded)
	assert.ErrorIs(t, err, fault.ErrLoopExceeded)
	assert.Len(t, model.Calls(), 3)
}

func TestToolLoop_ToolTimeout(t *testing.T) {
	slow := &stubTool{name: "search", result: "late", delay: time.Second}
	model := llmtest.NewScriptedModel(llmtest.ToolCalls(llmtest.FunctionCall("1", "search", `{"query":"x"}`)))
	loop := newToolLoop(t, model, slow)
	loop.CallTimeout = 20 * time.Millisecond

	_, err := loop.Run(context.Background(), "go")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, fault.ErrToolExecution)
}

func TestToolLoop_EmptyPrompt(t *testing.T) {
	model := llmtest.NewScriptedModel()
	_, err := newToolLoop(t, model).Run(context.Background(), "")
	assert.ErrorIs(t, err, agent.ErrEmptyPrompt)
	assert.Empty(t, model.Calls())
}

func TestToolLoop_LogsEachTurnTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm.jsonl")
	model := llmtest.NewScriptedModel(
		llmtest.ToolCalls(llmtest.FunctionCall("call_1", "calculator", `{"expression":"12 * 7"}`)),
		llmtest.Text("84"),
	)
	loop := newToolLoop(t, model, tools.NewCalculatorTool())
	loop.Logger = observability.NewLogger(slog.NewJSONHandler(io.Discard, nil), path)

	_, err := loop.Run(context.Background(), "What is 12 * 7?")
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	type turnLog struct {
		Data struct {
			Prompt struct {
				Turn     int      `json:"turn"`
				Messages []string `json:"messages"`
			} `json:"prompt"`
		} `json:"data"`
	}
	var turns []turnLog
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry turnLog
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		turns = append(turns, entry)
	}
	require.Len(t, turns, 2)

	assert.Equal(t, 1, turns[0].Data.Prompt.Turn)
	assert.Len(t, turns[0].Data.Prompt.Messages, 2)

	second := turns[1].Data.Prompt
	assert.Equal(t, 2, second.Turn)
	require.Len(t, second.Messages, 4)
	assert.Equal(t, `ai: call call_1 calculator({"expression":"12 * 7"})`, second.Messages[2])
	assert.Equal(t, "tool: result call_1 calculator: 84", second.Messages[3])
}
