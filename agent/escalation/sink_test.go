package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
	qstashx "github.com/wwexlabs/freightdesk/pkg/qstash"
)

func TestNotifyEmailDelivered(t *testing.T) {
	t.Parallel()

	var gotTo []string
	var gotMsg string
	sink := NewSink(
		Config{SMTPHost: "smtp.example.com", SMTPPort: 587, FromAddress: "escalations@freightdesk.example.com"},
		WithSendMail(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotTo = to
			gotMsg = string(msg)
			return nil
		}),
	)

	res, err := sink.Notify(context.Background(), contractx.ChannelEmail, contractx.EscalationPayload{
		ConversationID: "conv-1",
		Carrier:        "YRC Freight",
		PRO:            "WE987654321",
		Reason:         "shipment not found in carrier system",
		Urgent:         true,
	})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if res.Status != contractx.DeliveryDelivered {
		t.Fatalf("Status = %q, want delivered", res.Status)
	}
	if !strings.HasPrefix(res.MessageID, "WW") {
		t.Fatalf("MessageID = %q, want minted WW reference id", res.MessageID)
	}
	if len(gotTo) != 1 || gotTo[0] != "customerservice@yrc.com" {
		t.Fatalf("to = %v, want the YRC contact", gotTo)
	}
	if !strings.Contains(gotMsg, "PRO Number: WE987654321") {
		t.Fatalf("message missing PRO line:\n%s", gotMsg)
	}
	if !strings.Contains(gotMsg, "Priority: URGENT") {
		t.Fatalf("message missing urgency line:\n%s", gotMsg)
	}
	if !strings.Contains(gotMsg, "Subject: Shipment Escalation - PRO WE987654321") {
		t.Fatalf("message missing subject:\n%s", gotMsg)
	}
}

func TestNotifyEmailFailureIsResult(t *testing.T) {
	t.Parallel()

	sink := NewSink(
		Config{SMTPHost: "smtp.example.com"},
		WithSendMail(func(string, smtp.Auth, string, []string, []byte) error {
			return errors.New("connection refused")
		}),
	)

	res, err := sink.Notify(context.Background(), contractx.ChannelEmail, contractx.EscalationPayload{
		ConversationID: "conv-1",
		Carrier:        "FedEx Freight",
		Reason:         "lookup degraded",
	})
	if err != nil {
		t.Fatalf("Notify() error = %v, delivery failure must be a result", err)
	}
	if res.Status != contractx.DeliveryFailed || !strings.Contains(res.Reason, "connection refused") {
		t.Fatalf("result = %+v, want failed with reason", res)
	}
}

func TestNotifyUnknownCarrierFallsBack(t *testing.T) {
	t.Parallel()

	var gotTo []string
	sink := NewSink(
		Config{SMTPHost: "smtp.example.com", DefaultEmail: "carrier-escalations@freightdesk.example.com"},
		WithSendMail(func(_ string, _ smtp.Auth, _ string, to []string, _ []byte) error {
			gotTo = to
			return nil
		}),
	)

	if _, err := sink.Notify(context.Background(), contractx.ChannelEmail, contractx.EscalationPayload{
		ConversationID: "conv-1",
		Carrier:        "Unknown Lines",
		Reason:         "not found",
	}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if len(gotTo) != 1 || gotTo[0] != "carrier-escalations@freightdesk.example.com" {
		t.Fatalf("to = %v, want the default escalation address", gotTo)
	}
}

func TestNotifyWebhookPublishes(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody contractx.EscalationPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		fmt.Fprint(w, `{"messageId":"msg_123"}`)
	}))
	t.Cleanup(server.Close)

	publisher, err := qstashx.NewClient(qstashx.Config{URL: server.URL, Token: "token"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	sink := NewSink(
		Config{WebhookDestination: "https://ops.example.com/escalations"},
		WithPublisher(publisher),
	)

	res, err := sink.Notify(context.Background(), contractx.ChannelWebhook, contractx.EscalationPayload{
		ConversationID: "conv-1",
		ReferenceID:    "ref-1",
		Reason:         "degraded lookup",
	})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if res.Status != contractx.DeliveryDelivered || res.MessageID != "msg_123" {
		t.Fatalf("result = %+v, want delivered msg_123", res)
	}
	if !strings.HasPrefix(gotPath, "/v2/publish/") {
		t.Fatalf("path = %q, want /v2/publish prefix", gotPath)
	}
	if gotBody.ReferenceID != "ref-1" {
		t.Fatalf("published payload = %+v, want reference ref-1", gotBody)
	}
}

func TestNotifyPhoneRecordsTicket(t *testing.T) {
	t.Parallel()

	sink := NewSink(Config{})
	res, err := sink.Notify(context.Background(), contractx.ChannelPhone, contractx.EscalationPayload{
		ConversationID: "conv-1",
		Carrier:        "FedEx Freight",
		PRO:            "WE123456789",
		Reason:         "urgent delay",
		Urgent:         true,
	})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if res.Status != contractx.DeliveryDelivered {
		t.Fatalf("Status = %q, want delivered ticket", res.Status)
	}
}

func TestNotifyValidation(t *testing.T) {
	t.Parallel()

	sink := NewSink(Config{})
	if _, err := sink.Notify(context.Background(), contractx.ChannelEmail, contractx.EscalationPayload{}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Notify() error = %v, want ErrValidation for missing conversation id", err)
	}
	if _, err := sink.Notify(context.Background(), "pager", contractx.EscalationPayload{ConversationID: "c"}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Notify() error = %v, want ErrValidation for unknown channel", err)
	}
}
