package orchestratornode

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

// CarrierLookup executes the policy's lookup directive. PRO lookups
// retry once with a fixed delay on ERROR; the second failure degrades
// the turn instead of failing it. At most two attempts ever leave this
// node.
func CarrierLookup(ctx context.Context, g *GraphState, gw contractx.CarrierGateway, retryDelay time.Duration) (*GraphState, error) {
	if g.Decision.Phase != PhaseCarrierLookup {
		return g, nil
	}

	if g.Decision.LookupPRO != "" {
		return lookupByPRO(ctx, g, gw, retryDelay)
	}
	return lookupByCriteria(ctx, g, gw, retryDelay)
}

func lookupByPRO(ctx context.Context, g *GraphState, gw contractx.CarrierGateway, retryDelay time.Duration) (*GraphState, error) {
	res, err := gw.LookupByPRO(ctx, g.Decision.LookupPRO)
	if err != nil {
		return nil, err
	}
	g.Attempts = 1

	if res.Status == contractx.LookupError {
		if err := wait(ctx, retryDelay); err != nil {
			return nil, err
		}
		res, err = gw.LookupByPRO(ctx, g.Decision.LookupPRO)
		if err != nil {
			return nil, err
		}
		g.Attempts = 2
	}

	switch res.Status {
	case contractx.LookupFound:
		g.Record = res.Record
		g.Action = contractx.ActionProvideStatus
		g.Outcome = contractx.OutcomeResolved
		if g.Decision.Resolved {
			g.State.ClearCandidates(g.Now)
		}

	case contractx.LookupNotFound:
		g.Action = contractx.ActionEscalate
		g.Outcome = contractx.OutcomeEscalated
		g.Escalation = contractx.EscalationPayload{
			ConversationID: g.ConversationID,
			Carrier:        carrierName(g),
			PRO:            g.Decision.LookupPRO,
			Reason:         "shipment not found in carrier tracking",
			Urgent:         g.Extraction.Urgent,
		}

	case contractx.LookupError:
		log.Warn().
			Str("conversation_id", g.ConversationID).
			Str("pro", g.Decision.LookupPRO).
			Str("reason", res.Reason).
			Msg("carrier lookup degraded after retry")
		g.Action = contractx.ActionDegraded
		g.Outcome = contractx.OutcomeDegraded
		g.FollowUp = true
	}
	return g, nil
}

func lookupByCriteria(ctx context.Context, g *GraphState, gw contractx.CarrierGateway, retryDelay time.Duration) (*GraphState, error) {
	recs, err := gw.LookupByCriteria(ctx, g.Decision.LookupCriteria)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := wait(ctx, retryDelay); err != nil {
			return nil, err
		}
		recs, err = gw.LookupByCriteria(ctx, g.Decision.LookupCriteria)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.Action = contractx.ActionDegraded
			g.Outcome = contractx.OutcomeDegraded
			g.FollowUp = true
			return g, nil
		}
	}

	switch len(recs) {
	case 0:
		g.Action = contractx.ActionRequestInfo
		g.Outcome = contractx.OutcomeNeedsInfo

	case 1:
		g.Record = recs[0]
		g.Action = contractx.ActionProvideStatus
		g.Outcome = contractx.OutcomeResolved
		g.State.ClearCandidates(g.Now)

	default:
		g.Candidates = recs
		g.Action = contractx.ActionDisambiguate
		g.Outcome = contractx.OutcomeDisambiguating
	}
	return g, nil
}

func carrierName(g *GraphState) string {
	if g.Extraction.Carrier.Present() {
		return g.Extraction.Carrier.Value
	}
	switch g.Decision.LookupCarrier {
	case "fedex":
		return "FedEx Freight"
	case "ups":
		return "UPS Freight"
	default:
		return ""
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
