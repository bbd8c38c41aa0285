package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
	statex "github.com/wwexlabs/freightdesk/agent/state"
)

// SaveState appends the completed turn to the conversation and persists
// it. Candidate and question bookkeeping happens here so the next turn
// sees exactly what this one left open.
func SaveState(ctx context.Context, g *GraphState, store statex.Store) (*GraphState, error) {
	g.TurnIndex = g.State.NextTurnIndex()
	turn := statex.Turn{
		UserText: g.Text,
		Reply:    g.Reply,
		Intent:   g.Extraction.Intent,
		PRO:      turnPRO(g),
		Action:   g.Action,
		Outcome:  g.Outcome,
	}
	if err := g.State.AppendTurn(turn, g.Now); err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}

	switch g.Action {
	case contractx.ActionDisambiguate:
		g.State.SetCandidates(g.Candidates, g.Reply, g.Now)
	case contractx.ActionProvideStatus:
		g.State.ClearCandidates(g.Now)
		g.State.OutstandingQuestion = ""
	case contractx.ActionRequestInfo:
		g.State.OutstandingQuestion = g.Reply
	}

	if err := store.Save(ctx, g.State); err != nil {
		return nil, fmt.Errorf("save conversation state: %w", err)
	}
	return g, nil
}

// turnPRO picks the PRO this turn actually referenced, preferring the
// record a successful lookup returned.
func turnPRO(g *GraphState) string {
	if g.Record.PRO != "" {
		return g.Record.PRO
	}
	if g.Decision.LookupPRO != "" {
		return g.Decision.LookupPRO
	}
	return ""
}
