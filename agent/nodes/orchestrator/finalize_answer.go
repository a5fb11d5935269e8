package orchestratornode

import (
	"fmt"

	"github.com/tanpawarit/smartops-bi/agent/answer"
	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
)

// FinalizeAnswer uses the last response text as the answer, even when that
// response asked for more tools than the round budget allowed.
func FinalizeAnswer(in *GraphState, fallback string) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	return GraphOutput{
		Answer:       answer.Finalize(in.Response.Text, fallback),
		Rounds:       in.Rounds,
		GatewayCalls: in.GatewayCalls,
	}, nil
}
