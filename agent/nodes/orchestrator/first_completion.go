package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
	toolx "github.com/tanpawarit/smartops-bi/agent/tool"
)

func FirstCompletion(
	ctx context.Context,
	in *GraphState,
	gateway contractx.CompletionGateway,
	tools *toolx.Registry,
) (*GraphState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	resp, err := gateway.Complete(ctx, in.Conversation, tools.Descriptors())
	in.GatewayCalls++
	if err != nil {
		return nil, err
	}
	in.Response = resp
	return in, nil
}

// NeedsTools is the branch condition after the first completion.
func NeedsTools(in *GraphState) bool {
	return in != nil && in.Response.RequestsTools()
}
