package orchestratornode

import (
	"context"

	composerx "github.com/wwexlabs/freightdesk/agent/composer"
	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

// ComposeReply renders the turn's reply from the staged action.
func ComposeReply(ctx context.Context, g *GraphState, c *composerx.Composer) (*GraphState, error) {
	var reply string
	switch g.Action {
	case contractx.ActionProvideStatus:
		reply = c.Status(g.Record)

	case contractx.ActionEscalate:
		reply = c.Escalated(g.Escalation)
		if g.NotifyFailure != "" {
			reply += " Note: the carrier notification could not be delivered yet; our team will retry it."
		}

	case contractx.ActionDegraded:
		reply = c.Degraded()

	case contractx.ActionDisambiguate:
		reply = c.Disambiguation(g.Candidates)

	case contractx.ActionRequestInfo:
		reply = c.RequestInfo(g.Extraction.Intent)

	case contractx.ActionAcknowledge:
		reply = c.PreferenceAck(g.Extraction.Preference.Value)

	default:
		reply = c.RequestInfo(contractx.IntentUnknown)
	}

	g.Reply = c.Polish(ctx, reply)
	return g, nil
}
