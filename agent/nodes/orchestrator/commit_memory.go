package orchestratornode

import (
	"context"
	"strings"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
	memoryx "github.com/wwexlabs/freightdesk/agent/memory"
)

// CommitMemory writes the turn's episode, any new facts, and procedural
// feedback through the engine's write barrier. It runs after the state
// save as the turn's last mutation: a failure anywhere earlier leaves
// memory untouched, so the whole turn can be retried without tripping
// the episode ordering check. A commit failure is turn-fatal: the reply
// must not go out with its memory lost.
func CommitMemory(ctx context.Context, g *GraphState, eng MemoryEngine) (*GraphState, error) {
	batch := memoryx.TurnBatch{
		ConversationID: g.ConversationID,
		Episode: memoryx.EpisodeRecord{
			ConversationID: g.ConversationID,
			TurnIndex:      g.TurnIndex,
			UserText:       g.Text,
			Extraction:     g.Extraction,
			Action:         g.Action,
			Outcome:        g.Outcome,
		},
	}

	if g.Extraction.Intent == contractx.IntentPreference && g.Extraction.Preference.Present() {
		batch.Facts = append(batch.Facts, memoryx.Fact{
			Subject:    g.subject(),
			Predicate:  predPrefersChannel,
			Object:     strings.ToLower(strings.TrimSpace(g.Extraction.Preference.Value)),
			Confidence: g.Extraction.Preference.Confidence,
		})
	}

	channel := g.Channel
	if channel == "" {
		channel = contractx.ChannelEmail
	}
	delivered := g.Outcome == contractx.OutcomeEscalated && g.NotifyFailure == ""
	batch.Feedback = &memoryx.ProcedureFeedback{
		Trigger: g.Trigger,
		Channel: channel,
		Success: g.Outcome == contractx.OutcomeResolved || delivered,
	}

	if err := eng.CommitTurn(ctx, batch); err != nil {
		return nil, err
	}
	return g, nil
}
