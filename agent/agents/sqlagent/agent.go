package sqlagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/smartops-bi/agent/answer"
	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
	promptx "github.com/tanpawarit/smartops-bi/agent/prompt"
	toolx "github.com/tanpawarit/smartops-bi/agent/tool"
)

// finalAnswerNudge is appended when the iteration budget runs out so the
// model summarizes what it has instead of calling more tools.
const finalAnswerNudge = "I now need to return a final answer based on the previous steps. Do not call any more tools."

// Agent turns a natural-language question into SQL, runs it through its
// toolkit and answers in plain text. Run never returns an error; failures
// come back as text starting with the locale's failure prefix.
type Agent struct {
	gateway  contractx.CompletionGateway
	tools    *toolx.Registry
	prompt   string
	messages promptx.Messages
	cfg      Config
}

var _ contractx.QueryRunner = (*Agent)(nil)

func New(
	gateway contractx.CompletionGateway,
	tools *toolx.Registry,
	systemPrompt string,
	messages promptx.Messages,
	cfg Config,
) (*Agent, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway is required", contractx.ErrValidation)
	}
	if tools == nil || tools.Len() == 0 {
		return nil, fmt.Errorf("%w: sql toolkit is empty", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: sql agent prompt", contractx.ErrPromptMissing)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Agent{
		gateway:  gateway,
		tools:    tools,
		prompt:   systemPrompt,
		messages: messages,
		cfg:      cfg,
	}, nil
}

func (a *Agent) Run(ctx context.Context, question string) string {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.MaxExecutionTime)
	defer cancel()

	out, err := a.run(ctx, question)
	if err != nil {
		log.Error().Err(err).Msg("sql agent failed")
		return a.messages.ToolFailurePrefix + err.Error()
	}
	return out
}

type runState struct {
	conv            *contractx.Conversation
	lastObservation string
}

func (a *Agent) run(ctx context.Context, question string) (string, error) {
	conv, err := contractx.NewConversation(a.prompt, question)
	if err != nil {
		return "", err
	}
	st := &runState{conv: conv}
	descriptors := a.tools.Descriptors()

	for iteration := 1; iteration <= a.cfg.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			return a.stopped(st, iteration-1), nil
		}

		resp, err := a.gateway.Complete(ctx, st.conv, descriptors)
		if err != nil {
			if ctx.Err() != nil {
				return a.stopped(st, iteration-1), nil
			}
			return "", err
		}
		if !resp.RequestsTools() {
			return a.finalText(resp.Text), nil
		}

		st.conv.AppendAssistant(resp.Text, resp.ToolCalls)
		for _, call := range resp.ToolCalls {
			a.observe(ctx, st, call)
		}
	}

	if ctx.Err() != nil {
		return a.stopped(st, a.cfg.MaxIterations), nil
	}

	log.Warn().
		Int("max_iterations", a.cfg.MaxIterations).
		Msg("sql agent reached iteration limit, generating final answer")

	st.conv.AppendUser(finalAnswerNudge)
	resp, err := a.gateway.Complete(ctx, st.conv, nil)
	if err != nil {
		if ctx.Err() != nil {
			return a.stopped(st, a.cfg.MaxIterations), nil
		}
		return "", err
	}
	if text := answer.StripReasoning(resp.Text); text != "" {
		return text, nil
	}
	return a.messages.StoppedByLimit, nil
}

func (a *Agent) observe(ctx context.Context, st *runState, call contractx.ToolInvocationRequest) {
	t, ok := a.tools.Resolve(call.Name)
	if !ok {
		names := make([]string, 0, a.tools.Len())
		for _, d := range a.tools.Descriptors() {
			names = append(names, d.Name)
		}
		st.conv.AppendToolResult(call.ID, fmt.Sprintf(
			"%s is not a valid tool, try one of [%s].", call.Name, strings.Join(names, ", "),
		))
		return
	}

	desc := t.Descriptor()
	observation := t.Execute(ctx, toolInput(desc, call.Args))
	st.conv.AppendToolResult(call.ID, observation)

	if desc.Name == ToolQuery && !strings.HasPrefix(observation, observationErrorPrefix) {
		st.lastObservation = observation
	}
	log.Debug().
		Str("tool", desc.Name).
		Int("observation_len", len(observation)).
		Msg("sql agent tool executed")
}

// stopped is the early-stop outcome once the time budget is gone.
func (a *Agent) stopped(st *runState, iterations int) string {
	log.Warn().
		Int("iterations", iterations).
		Dur("max_execution_time", a.cfg.MaxExecutionTime).
		Bool("has_partial", st.lastObservation != "").
		Msg("sql agent stopped by time limit")

	if st.lastObservation != "" {
		return a.messages.PartialResult + st.lastObservation
	}
	return a.messages.StoppedByLimit
}

func (a *Agent) finalText(text string) string {
	if cleaned := answer.StripReasoning(text); cleaned != "" {
		return cleaned
	}
	return a.messages.StoppedByLimit
}

// toolInput picks the single string argument a toolkit tool works on: its
// declared parameter, then "input", then whatever lone argument was sent.
func toolInput(desc contractx.ToolDescriptor, args map[string]any) string {
	keys := make([]string, 0, len(desc.Parameters)+1)
	for name := range desc.Parameters {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	keys = append(keys, "input")

	for _, key := range keys {
		if v, ok := stringArg(args[key]); ok {
			return v
		}
	}
	if len(args) == 1 {
		for _, v := range args {
			if s, ok := stringArg(v); ok {
				return s
			}
		}
	}
	return ""
}

func stringArg(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		if strings.TrimSpace(t) == "" {
			return "", false
		}
		return t, true
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
}
