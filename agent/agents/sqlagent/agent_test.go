package sqlagent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
	promptx "github.com/tanpawarit/smartops-bi/agent/prompt"
	"github.com/tanpawarit/smartops-bi/agent/warehouse"
	logx "github.com/tanpawarit/smartops-bi/pkg/logger"
)

type gatewayStep func(ctx context.Context, conv *contractx.Conversation, tools []contractx.ToolDescriptor) (contractx.GatewayResponse, error)

// scriptedGateway plays steps in order and repeats the last one.
type scriptedGateway struct {
	mu        sync.Mutex
	steps     []gatewayStep
	calls     int
	toolSets  [][]contractx.ToolDescriptor
	snapshots [][]contractx.Message
}

func (g *scriptedGateway) Complete(ctx context.Context, conv *contractx.Conversation, tools []contractx.ToolDescriptor) (contractx.GatewayResponse, error) {
	g.mu.Lock()
	idx := g.calls
	if idx >= len(g.steps) {
		idx = len(g.steps) - 1
	}
	g.calls++
	g.toolSets = append(g.toolSets, tools)
	g.snapshots = append(g.snapshots, conv.Messages())
	step := g.steps[idx]
	g.mu.Unlock()
	return step(ctx, conv, tools)
}

func reply(text string) gatewayStep {
	return func(context.Context, *contractx.Conversation, []contractx.ToolDescriptor) (contractx.GatewayResponse, error) {
		return contractx.GatewayResponse{Text: text}, nil
	}
}

func callTool(name string, args map[string]any) gatewayStep {
	return func(context.Context, *contractx.Conversation, []contractx.ToolDescriptor) (contractx.GatewayResponse, error) {
		return contractx.GatewayResponse{ToolCalls: []contractx.ToolInvocationRequest{
			{ID: "call_" + name, Name: name, Args: args},
		}}, nil
	}
}

func blockUntilDone(ctx context.Context, _ *contractx.Conversation, _ []contractx.ToolDescriptor) (contractx.GatewayResponse, error) {
	<-ctx.Done()
	return contractx.GatewayResponse{}, fmt.Errorf("%w: generate: %v", contractx.ErrModelInvoke, ctx.Err())
}

type fakeWarehouse struct {
	mu        sync.Mutex
	queries   []string
	result    warehouse.Result
	err       error
	sampleErr error
}

func (w *fakeWarehouse) Dialect() string { return "PostgreSQL" }

func (w *fakeWarehouse) ListTables(context.Context) ([]string, error) {
	return []string{"farms", "harvests"}, nil
}

func (w *fakeWarehouse) DescribeTable(_ context.Context, name string) (warehouse.Table, error) {
	if name != "farms" {
		return warehouse.Table{}, warehouse.ErrTableNotFound
	}
	return warehouse.Table{Name: "farms", Columns: []warehouse.Column{{Name: "id", DataType: "integer", Nullable: "NO"}}}, nil
}

func (w *fakeWarehouse) SampleRows(context.Context, string, int) (warehouse.Result, error) {
	if w.sampleErr != nil {
		return warehouse.Result{}, w.sampleErr
	}
	return warehouse.Result{Columns: []string{"id"}, Rows: [][]any{{int64(1)}}}, nil
}

func (w *fakeWarehouse) Query(_ context.Context, query string) (warehouse.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queries = append(w.queries, query)
	return w.result, w.err
}

func (w *fakeWarehouse) Counts(context.Context) ([]warehouse.TableCount, error) { return nil, nil }
func (w *fakeWarehouse) Ping(context.Context) error                             { return nil }

func newTestAgent(t *testing.T, gw *scriptedGateway, wh *fakeWarehouse, cfg Config) *Agent {
	t.Helper()

	tools, err := NewToolkit(gw, wh, "checker prompt", 3)
	if err != nil {
		t.Fatalf("NewToolkit() error = %v", err)
	}
	agent, err := New(gw, tools, "sql prompt", promptx.MessagesFor(promptx.LocalePTBR), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return agent
}

func TestRunAnswersFromQueryResult(t *testing.T) {
	t.Parallel()

	gw := &scriptedGateway{steps: []gatewayStep{
		callTool(ToolListTables, map[string]any{"tool_input": ""}),
		callTool(ToolQuery, map[string]any{"query": "SELECT count(*) FROM farms"}),
		reply("<think>3 rows</think>Existem 3 fazendas."),
	}}
	wh := &fakeWarehouse{result: warehouse.Result{Columns: []string{"count"}, Rows: [][]any{{int64(3)}}}}
	agent := newTestAgent(t, gw, wh, DefaultConfig)

	got := agent.Run(context.Background(), "Quantas fazendas?")
	if got != "Existem 3 fazendas." {
		t.Fatalf("Run() = %q", got)
	}
	if len(wh.queries) != 1 || wh.queries[0] != "SELECT count(*) FROM farms" {
		t.Fatalf("unexpected queries: %#v", wh.queries)
	}

	last := gw.snapshots[2]
	if last[len(last)-1].Role != contractx.RoleTool || last[len(last)-1].Content != "count\n3" {
		t.Fatalf("query observation not fed back: %#v", last[len(last)-1])
	}
	if last[3].Role != contractx.RoleTool || last[3].Content != "farms, harvests" {
		t.Fatalf("list tables observation = %#v", last[3])
	}
	if len(gw.toolSets[0]) != 4 {
		t.Fatalf("expected 4 toolkit tools, got %d", len(gw.toolSets[0]))
	}
}

func TestRunReportsGatewayFailureAsText(t *testing.T) {
	t.Parallel()

	gw := &scriptedGateway{steps: []gatewayStep{
		func(context.Context, *contractx.Conversation, []contractx.ToolDescriptor) (contractx.GatewayResponse, error) {
			return contractx.GatewayResponse{}, fmt.Errorf("%w: generate: connection refused", contractx.ErrModelInvoke)
		},
	}}
	agent := newTestAgent(t, gw, &fakeWarehouse{}, DefaultConfig)

	got := agent.Run(context.Background(), "Quantas fazendas?")
	if !strings.HasPrefix(got, "Erro ao consultar o banco de dados: ") || !strings.Contains(got, "connection refused") {
		t.Fatalf("Run() = %q", got)
	}
}

func TestRunGeneratesFinalAnswerAtIterationLimit(t *testing.T) {
	t.Parallel()

	gw := &scriptedGateway{steps: []gatewayStep{
		callTool(ToolQuery, map[string]any{"query": "SELECT 1"}),
		callTool(ToolQuery, map[string]any{"query": "SELECT 2"}),
		reply("Resumo final."),
	}}
	cfg := DefaultConfig
	cfg.MaxIterations = 2
	agent := newTestAgent(t, gw, &fakeWarehouse{result: warehouse.Result{Columns: []string{"x"}}}, cfg)

	got := agent.Run(context.Background(), "q")
	if got != "Resumo final." {
		t.Fatalf("Run() = %q", got)
	}
	if gw.calls != 3 {
		t.Fatalf("gateway calls = %d, want 3", gw.calls)
	}
	if len(gw.toolSets[2]) != 0 {
		t.Fatalf("final generation must not offer tools, got %d", len(gw.toolSets[2]))
	}
	final := gw.snapshots[2]
	if final[len(final)-1].Role != contractx.RoleUser || final[len(final)-1].Content != finalAnswerNudge {
		t.Fatalf("final nudge missing: %#v", final[len(final)-1])
	}
}

func TestRunReturnsPartialResultOnTimeout(t *testing.T) {
	t.Parallel()

	gw := &scriptedGateway{steps: []gatewayStep{
		callTool(ToolQuery, map[string]any{"query": "SELECT name FROM farms"}),
		blockUntilDone,
	}}
	cfg := DefaultConfig
	cfg.MaxExecutionTime = 50 * time.Millisecond
	wh := &fakeWarehouse{result: warehouse.Result{Columns: []string{"name"}, Rows: [][]any{{"Boa Vista"}}}}
	agent := newTestAgent(t, gw, wh, cfg)

	got := agent.Run(context.Background(), "q")
	if got != "Resultado parcial: name\nBoa Vista" {
		t.Fatalf("Run() = %q", got)
	}
}

func TestRunStoppedByLimitWithoutObservation(t *testing.T) {
	t.Parallel()

	gw := &scriptedGateway{steps: []gatewayStep{blockUntilDone}}
	cfg := DefaultConfig
	cfg.MaxExecutionTime = 20 * time.Millisecond
	agent := newTestAgent(t, gw, &fakeWarehouse{}, cfg)

	msgs := promptx.MessagesFor(promptx.LocalePTBR)
	if got := agent.Run(context.Background(), "q"); got != msgs.StoppedByLimit {
		t.Fatalf("Run() = %q, want %q", got, msgs.StoppedByLimit)
	}
}

func TestRunFailedQueryIsNotPartialResult(t *testing.T) {
	t.Parallel()

	gw := &scriptedGateway{steps: []gatewayStep{
		callTool(ToolQuery, map[string]any{"query": "DELETE FROM farms"}),
		blockUntilDone,
	}}
	cfg := DefaultConfig
	cfg.MaxExecutionTime = 50 * time.Millisecond
	wh := &fakeWarehouse{err: fmt.Errorf("%w: DELETE is not allowed", contractx.ErrReadOnlyViolation)}
	agent := newTestAgent(t, gw, wh, cfg)

	msgs := promptx.MessagesFor(promptx.LocalePTBR)
	if got := agent.Run(context.Background(), "q"); got != msgs.StoppedByLimit {
		t.Fatalf("Run() = %q", got)
	}
	obs := gw.snapshots[1]
	if !strings.HasPrefix(obs[len(obs)-1].Content, observationErrorPrefix) {
		t.Fatalf("expected error observation, got %q", obs[len(obs)-1].Content)
	}
}

func TestRunUnknownToolGetsHint(t *testing.T) {
	t.Parallel()

	gw := &scriptedGateway{steps: []gatewayStep{
		callTool("sql_db_drop", map[string]any{"query": "x"}),
		reply("ok"),
	}}
	agent := newTestAgent(t, gw, &fakeWarehouse{}, DefaultConfig)

	if got := agent.Run(context.Background(), "q"); got != "ok" {
		t.Fatalf("Run() = %q", got)
	}
	obs := gw.snapshots[1]
	hint := obs[len(obs)-1]
	if hint.ToolCallID != "call_sql_db_drop" || !strings.Contains(hint.Content, "is not a valid tool") {
		t.Fatalf("unexpected hint: %#v", hint)
	}
}

func TestSchemaToolReportsMissingTable(t *testing.T) {
	t.Parallel()

	tool := &schemaTool{wh: &fakeWarehouse{}, sampleRows: 3}
	got := tool.Execute(context.Background(), "farms, ghosts")
	if got != "Error: table_names {ghosts} not found in database" {
		t.Fatalf("Execute() = %q", got)
	}
	ok := tool.Execute(context.Background(), "farms")
	if !strings.Contains(ok, "CREATE TABLE farms (") || !strings.Contains(ok, "1 rows from farms table:") {
		t.Fatalf("Execute() = %q", ok)
	}
}

// Swaps the global logger, so it does not run in parallel.
func TestSchemaToolLogsSampleFailure(t *testing.T) {
	previous := log.Logger
	t.Cleanup(func() { log.Logger = previous })

	var buf bytes.Buffer
	logx.InitWriter(&buf)

	tool := &schemaTool{wh: &fakeWarehouse{sampleErr: errors.New("permission denied for table farms")}, sampleRows: 3}
	got := tool.Execute(context.Background(), "farms")
	if !strings.Contains(got, "CREATE TABLE farms (") {
		t.Fatalf("Execute() = %q", got)
	}
	if strings.Contains(got, "rows from farms table") {
		t.Fatalf("sample block should be omitted: %q", got)
	}

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"table":"farms"`, "permission denied for table farms"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %s: %s", want, out)
		}
	}
}

func TestQueryCheckerStripsReasoning(t *testing.T) {
	t.Parallel()

	gw := &scriptedGateway{steps: []gatewayStep{reply("<think>fine</think>SELECT 1")}}
	tool := &queryCheckerTool{gateway: gw, prompt: "checker"}
	if got := tool.Execute(context.Background(), "SELECT 1"); got != "SELECT 1" {
		t.Fatalf("Execute() = %q", got)
	}
	if len(gw.toolSets[0]) != 0 {
		t.Fatal("checker must not offer tools")
	}
}

func TestToolInput(t *testing.T) {
	t.Parallel()

	desc := contractx.ToolDescriptor{Parameters: map[string]contractx.Parameter{"query": {}}}
	cases := []struct {
		args map[string]any
		want string
	}{
		{map[string]any{"query": "SELECT 1", "input": "other"}, "SELECT 1"},
		{map[string]any{"query": "", "input": "SELECT 2"}, "SELECT 2"},
		{map[string]any{"sql": "SELECT 3"}, "SELECT 3"},
		{map[string]any{"a": "x", "b": "y"}, ""},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := toolInput(desc, tc.args); got != tc.want {
			t.Fatalf("toolInput(%v) = %q, want %q", tc.args, got, tc.want)
		}
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	gw := &scriptedGateway{steps: []gatewayStep{reply("x")}}
	tools, err := NewToolkit(gw, &fakeWarehouse{}, "checker", 3)
	if err != nil {
		t.Fatalf("NewToolkit() error = %v", err)
	}
	msgs := promptx.MessagesFor(promptx.LocalePTBR)

	if _, err := New(gw, tools, "", msgs, DefaultConfig); !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("expected ErrPromptMissing, got %v", err)
	}
	if _, err := New(gw, tools, "p", msgs, Config{MaxIterations: 0, MaxExecutionTime: time.Second}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := NewToolkit(gw, nil, "checker", 3); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
