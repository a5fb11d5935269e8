package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
)

var _ contractx.CompletionGateway = (*Gateway)(nil)

// Gateway adapts an eino tool-calling chat model to the completion contract.
// It holds no per-call state and is safe for concurrent use.
type Gateway struct {
	model einomodel.ToolCallingChatModel
	newID func() string
}

func NewGateway(chatModel einomodel.ToolCallingChatModel) (*Gateway, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	return &Gateway{
		model: chatModel,
		newID: uuid.NewString,
	}, nil
}

func (g *Gateway) Complete(
	ctx context.Context,
	conv *contractx.Conversation,
	tools []contractx.ToolDescriptor,
) (contractx.GatewayResponse, error) {
	if err := conv.Validate(); err != nil {
		return contractx.GatewayResponse{}, err
	}

	chatModel := g.model
	if infos := toToolInfos(tools); len(infos) > 0 {
		bound, err := g.model.WithTools(infos)
		if err != nil {
			return contractx.GatewayResponse{}, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
		}
		chatModel = bound
	}

	msg, err := chatModel.Generate(ctx, toSchemaMessages(conv.Messages()))
	if err != nil {
		return contractx.GatewayResponse{}, fmt.Errorf("%w: generate: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return contractx.GatewayResponse{}, fmt.Errorf("%w: %w: empty model response", contractx.ErrModelInvoke, contractx.ErrSchemaViolation)
	}

	return contractx.GatewayResponse{
		Text:      msg.Content,
		ToolCalls: g.toInvocationRequests(msg.ToolCalls),
	}, nil
}

func (g *Gateway) toInvocationRequests(calls []schema.ToolCall) []contractx.ToolInvocationRequest {
	if len(calls) == 0 {
		return nil
	}
	reqs := make([]contractx.ToolInvocationRequest, 0, len(calls))
	for _, call := range calls {
		id := strings.TrimSpace(call.ID)
		if id == "" {
			id = g.newID()
		}
		reqs = append(reqs, contractx.ToolInvocationRequest{
			ID:   id,
			Name: strings.TrimSpace(call.Function.Name),
			Args: decodeArguments(call.Function.Arguments),
		})
	}
	return reqs
}

// decodeArguments never fails: anything that is not a JSON object is kept
// under "input" so argument resolution downstream still has something to use.
func decodeArguments(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return map[string]any{"input": raw}
	}

	switch v := decoded.(type) {
	case map[string]any:
		return v
	case string:
		return map[string]any{"input": v}
	case nil:
		return map[string]any{}
	default:
		return map[string]any{"input": raw}
	}
}

func toToolInfos(tools []contractx.ToolDescriptor) []*schema.ToolInfo {
	if len(tools) == 0 {
		return nil
	}
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		if strings.TrimSpace(t.Name) == "" {
			continue
		}
		params := make(map[string]*schema.ParameterInfo, len(t.Parameters))
		for name, p := range t.Parameters {
			params[name] = &schema.ParameterInfo{Type: schema.String, Desc: p.Desc, Required: p.Required}
		}
		info := &schema.ToolInfo{
			Name: t.Name,
			Desc: t.Description,
		}
		if len(params) > 0 {
			info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
		}
		infos = append(infos, info)
	}
	return infos
}

func toSchemaMessages(msgs []contractx.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case contractx.RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case contractx.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case contractx.RoleTool:
			out = append(out, schema.ToolMessage(m.Content, m.ToolCallID))
		case contractx.RoleAssistant:
			out = append(out, &schema.Message{
				Role:      schema.Assistant,
				Content:   m.Content,
				ToolCalls: toSchemaToolCalls(m.ToolCalls),
			})
		}
	}
	return out
}

func toSchemaToolCalls(calls []contractx.ToolInvocationRequest) []schema.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]schema.ToolCall, 0, len(calls))
	for _, call := range calls {
		args := "{}"
		if len(call.Args) > 0 {
			if raw, err := json.Marshal(call.Args); err == nil {
				args = string(raw)
			}
		}
		out = append(out, schema.ToolCall{
			ID:   call.ID,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      call.Name,
				Arguments: args,
			},
		})
	}
	return out
}
