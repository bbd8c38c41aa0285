// Package memory implements the three-tier memory engine behind the
// conversation orchestrator: durable facts about entities (semantic),
// an append-only turn history (episodic), and learned strategy weights
// (procedural). The three stores are independent; they are coordinated
// only at the CommitTurn write barrier.
package memory

import (
	"time"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

// Config is the immutable tuning surface of the engine, loaded once at
// process start.
type Config struct {
	RetentionDays          int     `envconfig:"RETENTION_DAYS" split_words:"true" default:"30"`
	MaxConversationHistory int     `envconfig:"MAX_CONVERSATION_HISTORY" split_words:"true" default:"50"`
	EnablePersistence      bool    `envconfig:"ENABLE_PERSISTENCE" split_words:"true" default:"false"`
	PostgresDSN            string  `envconfig:"POSTGRES_DSN" split_words:"true"`
	LearningRate           float64 `envconfig:"LEARNING_RATE" split_words:"true" default:"0.1"`
	MinWeight              float64 `envconfig:"MIN_WEIGHT" split_words:"true" default:"0"`
	MaxWeight              float64 `envconfig:"MAX_WEIGHT" split_words:"true" default:"1"`
	InitialWeight          float64 `envconfig:"INITIAL_WEIGHT" split_words:"true" default:"0.5"`
	SimilarityThreshold    float64 `envconfig:"SIMILARITY_THRESHOLD" split_words:"true" default:"0.67"`
	DecayPerDay            float64 `envconfig:"DECAY_PER_DAY" split_words:"true" default:"0.01"`
}

// Fact is one semantic statement, keyed by (subject, predicate).
type Fact struct {
	Subject    string    `json:"subject"`
	Predicate  string    `json:"predicate"`
	Object     string    `json:"object"`
	Confidence float64   `json:"confidence"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EpisodeRecord is one turn of conversation history. Records are never
// mutated after append.
type EpisodeRecord struct {
	ID             string                     `json:"id"`
	ConversationID string                     `json:"conversation_id"`
	TurnIndex      int                        `json:"turn_index"`
	UserText       string                     `json:"user_text"`
	Extraction     contractx.ExtractionResult `json:"extraction"`
	Action         contractx.Action           `json:"action"`
	Outcome        contractx.Outcome          `json:"outcome"`
	CreatedAt      time.Time                  `json:"created_at"`
}

// Trigger is the situational key a procedural rule matches against.
type Trigger struct {
	Intent        contractx.Intent `json:"intent"`
	Urgent        bool             `json:"urgent"`
	RepeatInquiry bool             `json:"repeat_inquiry"`
}

// Similarity is the fraction of trigger fields that agree, in [0,1].
func (t Trigger) Similarity(other Trigger) float64 {
	n := 0
	if t.Intent == other.Intent {
		n++
	}
	if t.Urgent == other.Urgent {
		n++
	}
	if t.RepeatInquiry == other.RepeatInquiry {
		n++
	}
	return float64(n) / 3
}

// ProcedureRule is a learned strategy: when the trigger matches, prefer
// the given escalation channel. Rules decay toward zero weight over
// time but are never deleted.
type ProcedureRule struct {
	ID        string                  `json:"id"`
	Trigger   Trigger                 `json:"trigger"`
	Channel   contractx.NotifyChannel `json:"channel"`
	Weight    float64                 `json:"weight"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// ProcedureFeedback reports how the strategy employed this turn worked
// out.
type ProcedureFeedback struct {
	Trigger Trigger
	Channel contractx.NotifyChannel
	Success bool
}

// TurnBatch is everything one turn wants to write. CommitTurn applies
// it all-or-nothing.
type TurnBatch struct {
	ConversationID string
	Episode        EpisodeRecord
	Facts          []Fact
	Feedback       *ProcedureFeedback
}
