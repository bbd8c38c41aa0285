package orchestratornode

import (
	"context"

	memoryx "github.com/wwexlabs/freightdesk/agent/memory"
)

const predPrefersChannel = "prefers_channel"

// ReadMemory assembles this turn's memory view: the customer's stated
// channel preference, the procedural trigger for the current
// situation, and the strategy rules matching it. A preference fact
// below minConfidence is ignored and the channel choice falls back to
// the procedural recommendation.
func ReadMemory(ctx context.Context, g *GraphState, engine MemoryEngine, minConfidence float64) (*GraphState, error) {
	for _, f := range engine.FactsBySubject(ctx, g.subject()) {
		if f.Predicate == predPrefersChannel {
			if f.Confidence >= minConfidence {
				g.Preference = f.Object
			}
			break
		}
	}

	pro := g.Extraction.PRO.Value
	if pro == "" {
		pro, _ = g.State.RecentTrackPRO()
	}
	g.Trigger = memoryx.Trigger{
		Intent:        g.Extraction.Intent,
		Urgent:        g.Extraction.Urgent,
		RepeatInquiry: g.State.RepeatInquiries(pro) >= 1,
	}
	g.Procedures = engine.MatchProcedures(ctx, g.Trigger)
	return g, nil
}
