// Package composer renders the customer-facing reply for each turn.
// Replies are deterministic templates; when an OpenAI-compatible
// client is configured the final text is additionally polished by the
// model, falling back to the template on any failure so the turn never
// depends on the LLM.
package composer

import (
	"context"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

type Config struct {
	PolishModel   string        `envconfig:"POLISH_MODEL" split_words:"true" default:"openai/gpt-4o-mini"`
	Temperature   float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.3"`
	MaxTokens     int           `envconfig:"MAX_TOKENS" split_words:"true" default:"300"`
	PolishTimeout time.Duration `envconfig:"POLISH_TIMEOUT" split_words:"true" default:"5s"`
}

type Composer struct {
	cfg    Config
	client *openaisdk.Client
}

// New builds a Composer. client may be nil; replies then stay on the
// template path.
func New(cfg Config, client *openaisdk.Client) *Composer {
	return &Composer{cfg: cfg, client: client}
}

const polishSystemPrompt = "You rewrite shipment-desk replies to sound natural and warm while " +
	"preserving every fact, number, and identifier exactly. Keep it to the " +
	"same length. Reply with the rewritten text only."

// Polish runs the optional LLM rewrite. The template text is the
// contract; any model failure or suspicious output returns it
// unchanged.
func (c *Composer) Polish(ctx context.Context, reply string) string {
	if c.client == nil || strings.TrimSpace(reply) == "" {
		return reply
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.PolishTimeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(polishSystemPrompt),
			openaisdk.UserMessage(reply),
		},
		Model:               c.cfg.PolishModel,
		Temperature:         openaisdk.Float(c.cfg.Temperature),
		MaxCompletionTokens: openaisdk.Int(int64(c.cfg.MaxTokens)),
	})
	if err != nil {
		log.Warn().Err(err).Msg("reply polish failed, using template text")
		return reply
	}
	if len(resp.Choices) == 0 {
		return reply
	}
	polished := strings.TrimSpace(resp.Choices[0].Message.Content)
	if polished == "" {
		return reply
	}
	return polished
}

// Status renders the FOUND reply.
func (c *Composer) Status(rec contractx.ShipmentRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your shipment %s with %s is currently %s.", rec.PRO, rec.Carrier, statusPhrase(rec.Status))
	if rec.Origin != "" && rec.Destination != "" {
		fmt.Fprintf(&b, " It is moving from %s to %s.", rec.Origin, rec.Destination)
	}
	if !rec.EstimatedDelivery.IsZero() && rec.Status != contractx.StatusDelivered {
		fmt.Fprintf(&b, " Estimated delivery is %s.", rec.EstimatedDelivery.Format("Monday, January 2"))
	}
	if ev, ok := latestEvent(rec); ok {
		fmt.Fprintf(&b, " Latest update: %s at %s.", ev.Description, ev.Location)
	}
	return b.String()
}

// Escalated renders the NOT_FOUND reply after a carrier escalation.
func (c *Composer) Escalated(p contractx.EscalationPayload) string {
	var b strings.Builder
	if p.PRO != "" {
		fmt.Fprintf(&b, "I couldn't locate shipment %s in the carrier's system, so I've escalated this directly to %s.",
			p.PRO, carrierOrDefault(p.Carrier))
	} else {
		fmt.Fprintf(&b, "I couldn't resolve this automatically, so I've escalated it directly to %s.",
			carrierOrDefault(p.Carrier))
	}
	fmt.Fprintf(&b, " Your reference number is %s. We'll follow up as soon as the carrier responds.", p.ReferenceID)
	return b.String()
}

// Degraded renders the reply after the carrier lookup failed twice.
func (c *Composer) Degraded() string {
	return "I'm having trouble reaching the carrier's tracking system right now. " +
		"I've flagged your inquiry for manual follow-up and our team will get back to you shortly. " +
		"I apologize for the inconvenience."
}

// Disambiguation renders the candidate list question.
func (c *Composer) Disambiguation(cands []contractx.ShipmentRecord) string {
	var b strings.Builder
	b.WriteString("I found more than one shipment matching that description. Which one do you mean?\n")
	for i, rec := range cands {
		fmt.Fprintf(&b, "%d. PRO %s - %s - %s to %s (%s)\n",
			i+1, rec.PRO, rec.Carrier, rec.Origin, rec.Destination, statusWord(rec.Status))
	}
	b.WriteString("You can answer with the number or the PRO.")
	return b.String()
}

// RequestInfo renders the clarification question when the turn lacks
// enough to act on.
func (c *Composer) RequestInfo(intent contractx.Intent) string {
	switch intent {
	case contractx.IntentReportDelay:
		return "I understand you're concerned about a delayed shipment. Could you share the PRO number, " +
			"or the origin, destination, and pickup date so I can investigate?"
	case contractx.IntentTrack:
		return "I'd be happy to help you track your shipment. Could you share the PRO number? " +
			"If you don't have it, the origin, destination, and approximate pickup date work too."
	default:
		return "I can help with tracking shipments and investigating delays. " +
			"Could you share a PRO number or a few details about the shipment?"
	}
}

// PreferenceAck confirms a stored contact preference.
func (c *Composer) PreferenceAck(channel string) string {
	if channel == "" {
		return "Got it, I've noted your contact preference."
	}
	return fmt.Sprintf("Got it, I'll make sure updates reach you by %s going forward.", channel)
}

func carrierOrDefault(carrier string) string {
	if carrier == "" {
		return "the carrier"
	}
	return carrier
}

func statusPhrase(s contractx.ShipmentStatus) string {
	switch s {
	case contractx.StatusPickupScheduled:
		return "scheduled for pickup"
	case contractx.StatusInTransit:
		return "in transit"
	case contractx.StatusOutForDelivery:
		return "out for delivery"
	case contractx.StatusDelivered:
		return "delivered"
	case contractx.StatusDelayed:
		return "delayed"
	case contractx.StatusException:
		return "held up by an exception"
	default:
		return "in an unknown state"
	}
}

func statusWord(s contractx.ShipmentStatus) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

func latestEvent(rec contractx.ShipmentRecord) (contractx.TrackingEvent, bool) {
	if len(rec.Events) == 0 {
		return contractx.TrackingEvent{}, false
	}
	return rec.Events[len(rec.Events)-1], true
}
