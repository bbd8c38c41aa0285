package contract

import (
	"time"
)

// Intent is the classified purpose of a customer turn.
type Intent string

const (
	IntentTrack        Intent = "track"
	IntentReportDelay  Intent = "report_delay"
	IntentDisambiguate Intent = "disambiguate_response"
	IntentPreference   Intent = "preference_statement"
	IntentUnknown      Intent = "unknown"
)

// Field is a single extracted value with its own confidence score.
// A zero Field means the oracle saw nothing.
type Field struct {
	Value      string  `json:"value,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

func (f Field) Present() bool {
	return f.Value != ""
}

// ExtractionResult is the structured output of one extraction call.
// Confidence 0 with all fields absent is a valid "no information" result.
type ExtractionResult struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`

	PRO         Field `json:"pro,omitempty"`
	Origin      Field `json:"origin,omitempty"`
	Destination Field `json:"destination,omitempty"`
	Carrier     Field `json:"carrier,omitempty"`
	DateFrom    Field `json:"date_from,omitempty"`
	DateTo      Field `json:"date_to,omitempty"`

	// Preference carries the stated channel for preference statements,
	// e.g. "email" or "phone".
	Preference Field `json:"preference,omitempty"`

	// Ordinal is a 1-based candidate selection parsed from a
	// disambiguation reply ("the second one" -> 2). Zero when absent.
	Ordinal int `json:"ordinal,omitempty"`

	Urgent bool `json:"urgent,omitempty"`
}

// TurnContext is the prior-conversation context handed to the extractor so
// follow-up turns ("where is it now?", "the second one") can be resolved.
type TurnContext struct {
	LastIntent          Intent
	RecentPRO           string
	OutstandingQuestion bool
	CandidateCount      int
}

// Action is the externally visible action a turn resulted in.
type Action string

const (
	ActionProvideStatus Action = "provide_status"
	ActionDisambiguate  Action = "disambiguate"
	ActionRequestInfo   Action = "request_info"
	ActionEscalate      Action = "escalate"
	ActionDegraded      Action = "degraded"
	ActionAcknowledge   Action = "acknowledge"
)

// Outcome classifies how the turn ended, for callers and for memory.
type Outcome string

const (
	OutcomeResolved       Outcome = "resolved"
	OutcomeNeedsInfo      Outcome = "needs_info"
	OutcomeDisambiguating Outcome = "disambiguating"
	OutcomeEscalated      Outcome = "escalated"
	OutcomeDegraded       Outcome = "degraded"
)

// ShipmentStatus mirrors the carrier-side status vocabulary.
type ShipmentStatus string

const (
	StatusPickupScheduled ShipmentStatus = "pickup_scheduled"
	StatusInTransit       ShipmentStatus = "in_transit"
	StatusOutForDelivery  ShipmentStatus = "out_for_delivery"
	StatusDelivered       ShipmentStatus = "delivered"
	StatusDelayed         ShipmentStatus = "delayed"
	StatusException       ShipmentStatus = "exception"
	StatusUnknown         ShipmentStatus = "unknown"
)

// TrackingEvent is one scan/update on a shipment's journey.
type TrackingEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
}

// ShipmentRecord is carrier-supplied shipment data. The core never
// persists it beyond the current turn's candidate cache.
type ShipmentRecord struct {
	PRO               string          `json:"pro"`
	Carrier           string          `json:"carrier"`
	Origin            string          `json:"origin"`
	Destination       string          `json:"destination"`
	Status            ShipmentStatus  `json:"status"`
	PickupDate        time.Time       `json:"pickup_date,omitempty"`
	EstimatedDelivery time.Time       `json:"estimated_delivery,omitempty"`
	WeightLbs         float64         `json:"weight_lbs,omitempty"`
	LastUpdated       time.Time       `json:"last_updated,omitempty"`
	Events            []TrackingEvent `json:"events,omitempty"`
}

// LookupStatus is the carrier gateway's tri-state result.
type LookupStatus string

const (
	LookupFound    LookupStatus = "found"
	LookupNotFound LookupStatus = "not_found"
	LookupError    LookupStatus = "error"
)

// LookupResult wraps a PRO lookup. Reason is set only for LookupError;
// NOT_FOUND is a successful lookup with no record, never an error.
type LookupResult struct {
	Status LookupStatus
	Record ShipmentRecord
	Reason string
}

// Criteria is a partial-field shipment search when no PRO is available.
type Criteria struct {
	Origin      string    `json:"origin,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Carrier     string    `json:"carrier,omitempty"`
	PickupFrom  time.Time `json:"pickup_from,omitempty"`
	PickupTo    time.Time `json:"pickup_to,omitempty"`
}

func (c Criteria) Empty() bool {
	return c.Origin == "" && c.Destination == "" && c.Carrier == "" &&
		c.PickupFrom.IsZero() && c.PickupTo.IsZero()
}

// NotifyChannel selects the escalation delivery mechanism.
type NotifyChannel string

const (
	ChannelEmail   NotifyChannel = "email"
	ChannelPhone   NotifyChannel = "phone"
	ChannelWebhook NotifyChannel = "webhook"
)

// DeliveryStatus reports the escalation sink outcome.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryResult is the sink's report for one Notify call.
type DeliveryResult struct {
	Status    DeliveryStatus
	Reason    string
	MessageID string
}

// EscalationPayload carries everything a carrier contact needs.
type EscalationPayload struct {
	ConversationID string   `json:"conversation_id"`
	ReferenceID    string   `json:"reference_id"`
	Carrier        string   `json:"carrier"`
	PRO            string   `json:"pro,omitempty"`
	Criteria       Criteria `json:"criteria,omitempty"`
	Reason         string   `json:"reason"`
	Urgent         bool     `json:"urgent,omitempty"`
}

// StateSummary is the caller-facing view of conversation state after a turn.
type StateSummary struct {
	ConversationID      string `json:"conversation_id"`
	TurnIndex           int    `json:"turn_index"`
	CurrentPRO          string `json:"current_pro,omitempty"`
	CandidateCount      int    `json:"candidate_count,omitempty"`
	OutstandingQuestion bool   `json:"outstanding_question,omitempty"`
}

// AgentResponse is the single product of a turn. Internal retries and
// degradations surface here as fields, never as raw errors to the caller.
type AgentResponse struct {
	Reply   string       `json:"reply"`
	Action  Action       `json:"action"`
	Outcome Outcome      `json:"outcome"`
	State   StateSummary `json:"state"`

	// FollowUp marks the turn for manual follow-up after a degraded
	// carrier lookup.
	FollowUp bool `json:"follow_up,omitempty"`

	// NotifyFailure carries the escalation sink failure reason when
	// delivery failed; the turn itself still completes.
	NotifyFailure string `json:"notify_failure,omitempty"`
}
