package orchestratornode

import (
	"github.com/rs/zerolog/log"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

// DecideNode applies the pure policy and stages the turn's action for
// the phases that skip the carrier entirely.
func DecideNode(g *GraphState, confidenceThreshold float64, validatePRO func(string) (string, bool)) (*GraphState, error) {
	g.Decision = Decide(Input{
		Extraction:          g.Extraction,
		ConfidenceThreshold: confidenceThreshold,
		State:               g.State,
		ValidatePRO:         validatePRO,
	})

	switch g.Decision.Phase {
	case PhaseRequestInfo:
		g.Action = contractx.ActionRequestInfo
		g.Outcome = contractx.OutcomeNeedsInfo
	case PhaseDisambiguate:
		g.Action = contractx.ActionDisambiguate
		g.Outcome = contractx.OutcomeDisambiguating
		g.Candidates = g.State.Candidates
	case PhaseRespond:
		g.Action = g.Decision.Action
		g.Outcome = contractx.OutcomeResolved
	}

	log.Debug().
		Str("conversation_id", g.ConversationID).
		Str("phase", string(g.Decision.Phase)).
		Str("lookup_pro", g.Decision.LookupPRO).
		Msg("turn routed")
	return g, nil
}
