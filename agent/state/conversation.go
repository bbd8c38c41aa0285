package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

// ConversationState is the persistent source-of-truth for a single
// customer conversation. It carries the short-term context the
// orchestrator needs to resolve anaphora ("where is it now?"), keep a
// pending clarification question alive across turns, and hold candidate
// shipments while a disambiguation is outstanding.
type ConversationState struct {
	// Identity
	ConversationID string `json:"conversation_id"`
	CustomerID     string `json:"customer_id,omitempty"`

	// Turn history, oldest first.
	Turns []Turn `json:"turns,omitempty"`

	// Active references
	CurrentPRO string `json:"current_pro,omitempty"`
	LastIntent contractx.Intent `json:"last_intent,omitempty"`

	// OutstandingQuestion is non-empty while the agent waits on an
	// answer (missing info or a disambiguation pick).
	OutstandingQuestion string `json:"outstanding_question,omitempty"`

	// Candidates persist until resolved or replaced by a new inquiry.
	Candidates []contractx.ShipmentRecord `json:"candidates,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Turn is one user/agent exchange.
type Turn struct {
	Index     int              `json:"index"`
	UserText  string           `json:"user_text"`
	Reply     string           `json:"reply,omitempty"`
	Intent    contractx.Intent `json:"intent,omitempty"`
	PRO       string           `json:"pro,omitempty"`
	Action    contractx.Action `json:"action,omitempty"`
	Outcome   contractx.Outcome `json:"outcome,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

var (
	ErrNilConversationID = errors.New("conversation id is empty")
	ErrTurnOutOfOrder    = errors.New("turn index out of order")
)

func NewConversationState(conversationID, customerID string, now time.Time) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		CustomerID:     customerID,
		UpdatedAt:      now.UTC(),
	}
}

func (s *ConversationState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// NextTurnIndex is the index the next appended turn must carry.
func (s *ConversationState) NextTurnIndex() int {
	if s == nil {
		return 0
	}
	return len(s.Turns)
}

// AppendTurn records a completed exchange. Indices are assigned here;
// callers never pick them.
func (s *ConversationState) AppendTurn(t Turn, now time.Time) error {
	if s == nil {
		return errors.New("nil conversation state")
	}
	t.Index = len(s.Turns)
	t.CreatedAt = now.UTC()
	s.Turns = append(s.Turns, t)
	if t.Intent != "" {
		s.LastIntent = t.Intent
	}
	if t.PRO != "" {
		s.CurrentPRO = t.PRO
	}
	s.Touch(now)
	return nil
}

// SetCandidates stores an ambiguous lookup result and the question the
// agent asked to resolve it.
func (s *ConversationState) SetCandidates(recs []contractx.ShipmentRecord, question string, now time.Time) {
	s.Candidates = recs
	s.OutstandingQuestion = question
	s.Touch(now)
}

// ClearCandidates drops any pending disambiguation.
func (s *ConversationState) ClearCandidates(now time.Time) {
	s.Candidates = nil
	s.OutstandingQuestion = ""
	s.Touch(now)
}

// CandidateAt resolves a 1-based ordinal ("the second one") against the
// pending candidate list.
func (s *ConversationState) CandidateAt(ordinal int) (contractx.ShipmentRecord, bool) {
	if s == nil || ordinal < 1 || ordinal > len(s.Candidates) {
		return contractx.ShipmentRecord{}, false
	}
	return s.Candidates[ordinal-1], true
}

// RecentTrackPRO returns the most recently referenced PRO, for
// anaphoric follow-ups like "where is it now?".
func (s *ConversationState) RecentTrackPRO() (string, bool) {
	if s == nil || s.CurrentPRO == "" {
		return "", false
	}
	return s.CurrentPRO, true
}

// RepeatInquiries counts consecutive trailing turns asking about the
// given PRO. Used to detect a customer re-asking about the same
// shipment.
func (s *ConversationState) RepeatInquiries(pro string) int {
	if s == nil || pro == "" {
		return 0
	}
	n := 0
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if !strings.EqualFold(s.Turns[i].PRO, pro) {
			break
		}
		n++
	}
	return n
}

// TurnContext projects the state into the compact view the extractor
// prompt sees.
func (s *ConversationState) TurnContext() contractx.TurnContext {
	if s == nil {
		return contractx.TurnContext{}
	}
	return contractx.TurnContext{
		LastIntent:          s.LastIntent,
		RecentPRO:           s.CurrentPRO,
		OutstandingQuestion: s.OutstandingQuestion != "",
		CandidateCount:      len(s.Candidates),
	}
}

func (s *ConversationState) Validate() error {
	if s.ConversationID == "" {
		return ErrNilConversationID
	}
	for i, t := range s.Turns {
		if t.Index != i {
			return fmt.Errorf("%w: turn %d has index %d", ErrTurnOutOfOrder, i, t.Index)
		}
	}
	// a pending disambiguation must carry its question
	if len(s.Candidates) > 0 && s.OutstandingQuestion == "" {
		return errors.New("candidates present without outstanding question")
	}
	return nil
}
