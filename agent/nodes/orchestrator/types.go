// Package orchestratornode holds the per-turn pipeline nodes and the
// pure transition policy behind the conversation orchestrator. Nodes
// are plain functions over GraphState so each one stays independently
// testable; the orchestrator wires them into its eino graph.
package orchestratornode

import (
	"context"
	"fmt"
	"strings"
	"time"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
	memoryx "github.com/wwexlabs/freightdesk/agent/memory"
	statex "github.com/wwexlabs/freightdesk/agent/state"
)

// MemoryEngine is the slice of the memory engine the pipeline touches.
type MemoryEngine interface {
	FactsBySubject(ctx context.Context, subject string) []memoryx.Fact
	MatchProcedures(ctx context.Context, trigger memoryx.Trigger) []memoryx.ProcedureRule
	CommitTurn(ctx context.Context, batch memoryx.TurnBatch) error
}

type GraphInput struct {
	ConversationID string
	Text           string
}

type GraphOutput = contractx.AgentResponse

// GraphState threads one turn through the pipeline.
type GraphState struct {
	ConversationID string
	Text           string
	Now            time.Time

	State *statex.ConversationState

	Extraction contractx.ExtractionResult

	// Memory view for this turn. Preference only carries a stated
	// channel whose fact confidence cleared the threshold.
	Preference string
	Trigger    memoryx.Trigger
	Procedures []memoryx.ProcedureRule

	Decision Decision

	// Lookup products.
	Record     contractx.ShipmentRecord
	Candidates []contractx.ShipmentRecord
	Attempts   int

	// Turn products.
	TurnIndex     int
	Action        contractx.Action
	Outcome       contractx.Outcome
	Channel       contractx.NotifyChannel
	Escalation    contractx.EscalationPayload
	NotifyFailure string
	FollowUp      bool
	Reply         string
}

// ValidateRequest checks the turn input and seeds the graph state.
func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", contractx.ErrValidation)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", contractx.ErrValidation)
	}

	return &GraphState{
		ConversationID: conversationID,
		Text:           text,
		Now:            nowFn().UTC(),
	}, nil
}

// subject is the semantic-memory key facts about this conversation's
// customer live under.
func (g *GraphState) subject() string {
	if g.State != nil && g.State.CustomerID != "" {
		return "customer:" + g.State.CustomerID
	}
	return "conversation:" + g.ConversationID
}
