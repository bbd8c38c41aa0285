// Package escalation hands unresolved inquiries off to carriers and
// human agents. EMAIL renders the carrier template over SMTP, WEBHOOK
// publishes through the message queue, PHONE records a callback ticket
// for manual dialing. Delivery failure is a result, never an error:
// the orchestrator reports it in the turn response and moves on.
package escalation

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

//go:embed template/escalation_email.txt
var escalationEmailRaw string

var escalationEmailTmpl = template.Must(template.New("escalation_email").Parse(escalationEmailRaw))

// Publisher posts webhook payloads to the ops queue.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload any) (string, error)
}

type Config struct {
	SMTPHost     string `envconfig:"SMTP_HOST" split_words:"true"`
	SMTPPort     int    `envconfig:"SMTP_PORT" split_words:"true" default:"587"`
	SMTPUser     string `envconfig:"SMTP_USER" split_words:"true"`
	SMTPPass     string `envconfig:"SMTP_PASS" split_words:"true"`
	FromAddress  string `envconfig:"FROM_ADDRESS" split_words:"true" default:"escalations@freightdesk.example.com"`
	DefaultEmail string `envconfig:"DEFAULT_EMAIL" split_words:"true" default:"carrier-escalations@freightdesk.example.com"`

	// WebhookDestination receives WEBHOOK notifies; OpsDestination
	// additionally receives PHONE callback tickets when set.
	WebhookDestination string `envconfig:"WEBHOOK_DESTINATION" split_words:"true"`
	OpsDestination     string `envconfig:"OPS_DESTINATION" split_words:"true"`
}

// SinkOption customizes Sink construction.
type SinkOption func(*Sink)

// WithSendMail replaces the SMTP transport, for tests.
func WithSendMail(fn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error) SinkOption {
	return func(s *Sink) {
		if fn != nil {
			s.sendMail = fn
		}
	}
}

func WithPublisher(p Publisher) SinkOption {
	return func(s *Sink) { s.publisher = p }
}

type Sink struct {
	cfg       Config
	publisher Publisher
	sendMail  func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSink(cfg Config, opts ...SinkOption) *Sink {
	s := &Sink{
		cfg:      cfg,
		sendMail: smtp.SendMail,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Notify delivers the escalation over the requested channel. Reference
// IDs are minted here when the caller did not supply one.
func (s *Sink) Notify(ctx context.Context, ch contractx.NotifyChannel, p contractx.EscalationPayload) (contractx.DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return contractx.DeliveryResult{}, err
	}
	if p.ConversationID == "" {
		return contractx.DeliveryResult{}, fmt.Errorf("%w: escalation requires conversation id", contractx.ErrValidation)
	}
	if p.ReferenceID == "" {
		p.ReferenceID = newReferenceID(time.Now())
	}

	switch ch {
	case contractx.ChannelEmail:
		return s.notifyEmail(p), nil
	case contractx.ChannelWebhook:
		return s.notifyWebhook(ctx, s.cfg.WebhookDestination, p), nil
	case contractx.ChannelPhone:
		return s.notifyPhone(ctx, p), nil
	default:
		return contractx.DeliveryResult{}, fmt.Errorf("%w: unsupported channel %q", contractx.ErrValidation, ch)
	}
}

func (s *Sink) notifyEmail(p contractx.EscalationPayload) contractx.DeliveryResult {
	if s.cfg.SMTPHost == "" {
		return failed(p, "smtp host not configured")
	}

	var body bytes.Buffer
	if err := escalationEmailTmpl.Execute(&body, p); err != nil {
		return failed(p, fmt.Sprintf("render escalation email: %v", err))
	}

	contact := contactFor(p.Carrier, s.cfg.DefaultEmail)
	subject := fmt.Sprintf("Shipment Escalation - Ref %s", p.ReferenceID)
	if p.PRO != "" {
		subject = fmt.Sprintf("Shipment Escalation - PRO %s", p.PRO)
	}

	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		s.cfg.FromAddress, contact.Email, subject, body.String(),
	)

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPHost)
	}

	if err := s.sendMail(addr, auth, s.cfg.FromAddress, []string{contact.Email}, []byte(msg)); err != nil {
		log.Error().Err(err).Str("carrier", p.Carrier).Str("reference_id", p.ReferenceID).Msg("escalation email failed")
		return failed(p, fmt.Sprintf("send escalation email: %v", err))
	}

	log.Info().Str("carrier", p.Carrier).Str("to", contact.Email).Str("reference_id", p.ReferenceID).Msg("escalation email sent")
	return contractx.DeliveryResult{Status: contractx.DeliveryDelivered, MessageID: p.ReferenceID}
}

func (s *Sink) notifyWebhook(ctx context.Context, destination string, p contractx.EscalationPayload) contractx.DeliveryResult {
	if s.publisher == nil || strings.TrimSpace(destination) == "" {
		return failed(p, "webhook publisher not configured")
	}
	msgID, err := s.publisher.Publish(ctx, destination, p)
	if err != nil {
		log.Error().Err(err).Str("reference_id", p.ReferenceID).Msg("escalation webhook failed")
		return failed(p, fmt.Sprintf("publish escalation webhook: %v", err))
	}
	return contractx.DeliveryResult{Status: contractx.DeliveryDelivered, MessageID: msgID}
}

// notifyPhone records a callback ticket. Dialing is manual; the ticket
// lands in the log and, when configured, on the ops queue.
func (s *Sink) notifyPhone(ctx context.Context, p contractx.EscalationPayload) contractx.DeliveryResult {
	contact := contactFor(p.Carrier, s.cfg.DefaultEmail)
	log.Info().
		Str("carrier", p.Carrier).
		Str("phone", contact.Phone).
		Str("pro", p.PRO).
		Str("reference_id", p.ReferenceID).
		Bool("urgent", p.Urgent).
		Msg("phone escalation ticket recorded")

	if s.publisher != nil && strings.TrimSpace(s.cfg.OpsDestination) != "" {
		if res := s.notifyWebhook(ctx, s.cfg.OpsDestination, p); res.Status == contractx.DeliveryFailed {
			log.Warn().Str("reason", res.Reason).Msg("phone ticket webhook mirror failed")
		}
	}
	return contractx.DeliveryResult{Status: contractx.DeliveryDelivered, MessageID: p.ReferenceID}
}

// newReferenceID mints a ticket reference of the form WW<unix><hex6>.
func newReferenceID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("WW%d%s", now.Unix(), suffix)
}

func failed(p contractx.EscalationPayload, reason string) contractx.DeliveryResult {
	return contractx.DeliveryResult{
		Status:    contractx.DeliveryFailed,
		Reason:    reason,
		MessageID: p.ReferenceID,
	}
}
