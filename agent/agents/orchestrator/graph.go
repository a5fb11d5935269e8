package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	nodex "github.com/tanpawarit/smartops-bi/agent/nodes/orchestrator"
)

const (
	nodeValidateRequest = "validate_request"
	nodeFirstCompletion = "first_completion"
	nodeToolRounds      = "tool_rounds"
	nodeFinalizeAnswer  = "finalize_answer"
)

func (o *Orchestrator) compileAskGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode(nodeValidateRequest,
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.systemPrompt)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeValidateRequest, err)
	}

	if err := graph.AddLambdaNode(nodeFirstCompletion,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.FirstCompletion(ctx, in, o.gateway, o.tools)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeFirstCompletion, err)
	}

	if err := graph.AddLambdaNode(nodeToolRounds,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RunToolRounds(ctx, in, o.gateway, o.tools, o.messages.ToolFailurePrefix)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeToolRounds, err)
	}

	if err := graph.AddLambdaNode(nodeFinalizeAnswer,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeAnswer(in, o.messages.EmptyAnswer)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeFinalizeAnswer, err)
	}

	edges := [][2]string{
		{compose.START, nodeValidateRequest},
		{nodeValidateRequest, nodeFirstCompletion},
		{nodeToolRounds, nodeFinalizeAnswer},
		{nodeFinalizeAnswer, compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if nodex.NeedsTools(in) {
				return nodeToolRounds, nil
			}
			return nodeFinalizeAnswer, nil
		},
		map[string]bool{nodeToolRounds: true, nodeFinalizeAnswer: true},
	)
	if err := graph.AddBranch(nodeFirstCompletion, branch); err != nil {
		return nil, fmt.Errorf("add branch after %s: %w", nodeFirstCompletion, err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.ask"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
