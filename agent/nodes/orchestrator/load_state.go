package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	statex "github.com/wwexlabs/freightdesk/agent/state"
)

// LoadState fetches the conversation or starts a fresh one. Store
// failures other than not-found are turn-fatal: deciding against stale
// state would corrupt the candidate cache.
func LoadState(ctx context.Context, g *GraphState, store statex.Store) (*GraphState, error) {
	st, err := store.Load(ctx, g.ConversationID)
	switch {
	case err == nil:
		g.State = st
	case errors.Is(err, statex.ErrStateNotFound):
		g.State = statex.NewConversationState(g.ConversationID, "", g.Now)
	default:
		return nil, fmt.Errorf("load conversation state: %w", err)
	}
	return g, nil
}
