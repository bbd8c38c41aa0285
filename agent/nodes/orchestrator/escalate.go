package orchestratornode

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

// Escalate hands the turn to the escalation sink exactly once. Delivery
// failure never fails the turn; it is recorded on the state and surfaced
// in the reply.
func Escalate(ctx context.Context, g *GraphState, sink contractx.EscalationSink) (*GraphState, error) {
	if g.Action != contractx.ActionEscalate {
		return g, nil
	}

	g.Channel = ChooseChannel(g.Preference, g.Procedures, g.Extraction.Urgent)

	res, err := sink.Notify(ctx, g.Channel, g.Escalation)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error().Err(err).
			Str("conversation_id", g.ConversationID).
			Str("channel", string(g.Channel)).
			Msg("escalation notify rejected")
		g.NotifyFailure = err.Error()
		return g, nil
	}
	g.Escalation.ReferenceID = res.MessageID
	if res.Status == contractx.DeliveryFailed {
		log.Warn().
			Str("conversation_id", g.ConversationID).
			Str("channel", string(g.Channel)).
			Str("reason", res.Reason).
			Msg("escalation delivery failed")
		g.NotifyFailure = res.Reason
	}
	return g, nil
}
