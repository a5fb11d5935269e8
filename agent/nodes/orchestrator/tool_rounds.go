package orchestratornode

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
	toolx "github.com/tanpawarit/smartops-bi/agent/tool"
)

// maxToolRounds bounds how many times tool results are fed back to the
// gateway. Tool calls in the response after the last round are ignored.
const maxToolRounds = 1

func MaxToolRounds() int { return maxToolRounds }

func RunToolRounds(
	ctx context.Context,
	in *GraphState,
	gateway contractx.CompletionGateway,
	tools *toolx.Registry,
	failurePrefix string,
) (*GraphState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	for in.Response.RequestsTools() && in.Rounds < maxToolRounds {
		in.Rounds++
		calls := in.Response.ToolCalls
		in.Conversation.AppendAssistant(in.Response.Text, calls)

		for _, call := range calls {
			tool, ok := tools.Resolve(call.Name)
			if !ok {
				log.Warn().
					Str("tool", call.Name).
					Str("call_id", call.ID).
					Int("round", in.Rounds).
					Msg("model requested unknown tool, skipping")
				continue
			}

			start := time.Now()
			result := executeTool(ctx, tool, ResolveArgument(call.Args, in.UserMessage), failurePrefix)
			log.Info().
				Str("tool", tool.Descriptor().Name).
				Str("call_id", call.ID).
				Dur("elapsed", time.Since(start)).
				Msg("tool executed")
			in.Conversation.AppendToolResult(call.ID, result)
		}

		resp, err := gateway.Complete(ctx, in.Conversation, tools.Descriptors())
		in.GatewayCalls++
		if err != nil {
			return nil, err
		}
		in.Response = resp
	}
	return in, nil
}

// executeTool turns a panicking tool into a failure result so one bad tool
// cannot abort the whole ask.
func executeTool(ctx context.Context, tool contractx.Tool, input string, failurePrefix string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("tool", tool.Descriptor().Name).
				Msg("tool panicked")
			out = fmt.Sprintf("%s%v", failurePrefix, r)
		}
	}()
	return tool.Execute(ctx, input)
}

// ResolveArgument picks the string handed to a tool: the "input" argument,
// then "query", then the user's original message.
func ResolveArgument(args map[string]any, userMessage string) string {
	for _, key := range []string{"input", "query"} {
		if v, ok := argumentString(args[key]); ok {
			return v
		}
	}
	return userMessage
}

func argumentString(v any) (string, bool) {
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
