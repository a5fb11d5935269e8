package contract

import (
	"fmt"
	"strings"
)

// Conversation is an append-only message log whose first entry is always
// the system directive.
type Conversation struct {
	messages []Message
}

func NewConversation(systemPrompt string, userMessage string) (*Conversation, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: system prompt is empty", ErrPromptMissing)
	}
	return &Conversation{
		messages: []Message{
			{Role: RoleSystem, Content: systemPrompt},
			{Role: RoleUser, Content: userMessage},
		},
	}, nil
}

func (c *Conversation) AppendAssistant(content string, calls []ToolInvocationRequest) {
	c.messages = append(c.messages, Message{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: cloneCalls(calls),
	})
}

func (c *Conversation) AppendUser(content string) {
	c.messages = append(c.messages, Message{Role: RoleUser, Content: content})
}

func (c *Conversation) AppendToolResult(callID string, content string) {
	c.messages = append(c.messages, Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: callID,
	})
}

func (c *Conversation) Len() int {
	if c == nil {
		return 0
	}
	return len(c.messages)
}

// Messages returns a copy; callers cannot edit the log in place.
func (c *Conversation) Messages() []Message {
	if c == nil {
		return nil
	}
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		m.ToolCalls = cloneCalls(m.ToolCalls)
		out[i] = m
	}
	return out
}

func (c *Conversation) Validate() error {
	if c == nil || len(c.messages) == 0 {
		return fmt.Errorf("%w: conversation is empty", ErrValidation)
	}
	if c.messages[0].Role != RoleSystem {
		return fmt.Errorf("%w: first message must be a system message", ErrValidation)
	}
	return nil
}

func cloneCalls(calls []ToolInvocationRequest) []ToolInvocationRequest {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolInvocationRequest, len(calls))
	for i, call := range calls {
		args := make(map[string]any, len(call.Args))
		for k, v := range call.Args {
			args[k] = v
		}
		call.Args = args
		out[i] = call
	}
	return out
}
