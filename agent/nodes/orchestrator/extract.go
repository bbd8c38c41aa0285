package orchestratornode

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

// Extract runs the extractor over the utterance. Oracle failures never
// reach here as errors; the extractor degrades to a zero-confidence
// UNKNOWN result and the policy turns that into REQUEST_INFO.
func Extract(ctx context.Context, g *GraphState, ex contractx.Extractor) (*GraphState, error) {
	res, err := ex.Extract(ctx, g.Text, g.State.TurnContext())
	if err != nil {
		return nil, err
	}
	g.Extraction = res
	log.Debug().
		Str("conversation_id", g.ConversationID).
		Str("intent", string(res.Intent)).
		Float64("confidence", res.Confidence).
		Str("pro", res.PRO.Value).
		Bool("urgent", res.Urgent).
		Msg("turn extracted")
	return g, nil
}
