package contract

import "context"

type CompletionGateway interface {
	Complete(ctx context.Context, conv *Conversation, tools []ToolDescriptor) (GatewayResponse, error)
}

// Tool executors never fail past the call boundary: any failure is
// reported as text in the returned result.
type Tool interface {
	Descriptor() ToolDescriptor
	Execute(ctx context.Context, input string) string
}

type QueryRunner interface {
	Run(ctx context.Context, question string) string
}
