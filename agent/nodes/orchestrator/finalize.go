package orchestratornode

import (
	"context"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

// Finalize projects the graph state into the caller-facing response.
func Finalize(ctx context.Context, g *GraphState) (GraphOutput, error) {
	out := contractx.AgentResponse{
		Reply:         g.Reply,
		Action:        g.Action,
		Outcome:       g.Outcome,
		FollowUp:      g.FollowUp,
		NotifyFailure: g.NotifyFailure,
		State: contractx.StateSummary{
			ConversationID:      g.State.ConversationID,
			TurnIndex:           len(g.State.Turns) - 1,
			CurrentPRO:          g.State.CurrentPRO,
			CandidateCount:      len(g.State.Candidates),
			OutstandingQuestion: g.State.OutstandingQuestion != "",
		},
	}
	return out, nil
}
