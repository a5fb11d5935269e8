package contract

type AgentType string

const (
	AgentTypeChat AgentType = "chat"
	AgentTypeSQL  AgentType = "sql"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a Conversation. Content may be empty on an
// assistant turn that only carries tool calls.
type Message struct {
	Role       Role                    `json:"role"`
	Content    string                  `json:"content,omitempty"`
	ToolCalls  []ToolInvocationRequest `json:"tool_calls,omitempty"`
	ToolCallID string                  `json:"tool_call_id,omitempty"`
}

type ToolInvocationRequest struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type Parameter struct {
	Desc     string `json:"desc"`
	Required bool   `json:"required"`
}

// ToolDescriptor is what the gateway shows the model. It carries no executor.
type ToolDescriptor struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]Parameter `json:"parameters,omitempty"`
}

// GatewayResponse is either final text or a list of tool calls. When
// ToolCalls is non-empty the caller must not treat Text as the answer.
type GatewayResponse struct {
	Text      string                  `json:"text,omitempty"`
	ToolCalls []ToolInvocationRequest `json:"tool_calls,omitempty"`
}

func (r GatewayResponse) RequestsTools() bool {
	return len(r.ToolCalls) > 0
}
