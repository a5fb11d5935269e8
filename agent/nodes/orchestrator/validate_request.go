package orchestratornode

import (
	"errors"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
)

var ErrInvalidMessage = errors.New("message is empty")

type GraphInput struct {
	Message string
}

type GraphOutput struct {
	Answer       string
	Rounds       int
	GatewayCalls int
}

// GraphState is owned by exactly one ask call.
type GraphState struct {
	UserMessage  string
	Conversation *contractx.Conversation
	Response     contractx.GatewayResponse
	Rounds       int
	GatewayCalls int
}

func ValidateRequest(in GraphInput, systemPrompt string) (*GraphState, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, fmt.Errorf("%w: %w", contractx.ErrValidation, ErrInvalidMessage)
	}

	conv, err := contractx.NewConversation(systemPrompt, in.Message)
	if err != nil {
		return nil, err
	}
	return &GraphState{
		UserMessage:  in.Message,
		Conversation: conv,
	}, nil
}
