package carrier

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

func TestValidatePRO(t *testing.T) {
	t.Parallel()

	v, err := NewValidator(nil)
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}

	cases := []struct {
		pro     string
		carrier string
		ok      bool
	}{
		{"WE123456789", "in_house", true},
		{"we123456789", "in_house", true},
		{"1Z999AA10123456784", "ups", true},
		{"123456789012", "fedex", true},
		{"1234567", "ltl", true},
		{"1234567890", "ltl", true},
		{"WE12345678", "", false},   // nine digits required after WE
		{"WE1234567890", "", false}, // too long
		{"123456", "", false},       // below LTL floor
		{"12345678901", "", false},  // between LTL and FedEx shapes
		{"hello", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		carrier, ok := v.ValidatePRO(tc.pro)
		if ok != tc.ok || carrier != tc.carrier {
			t.Fatalf("ValidatePRO(%q) = %q/%v, want %q/%v", tc.pro, carrier, ok, tc.carrier, tc.ok)
		}
	}
}

func TestGatewayLookupByPROFound(t *testing.T) {
	t.Parallel()

	gw, err := NewGateway(Config{MaxRequestsPerMinute: 60}, NewMockBackend())
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	res, err := gw.LookupByPRO(context.Background(), "WE123456789")
	if err != nil {
		t.Fatalf("LookupByPRO() error = %v", err)
	}
	if res.Status != contractx.LookupFound {
		t.Fatalf("Status = %q, want found", res.Status)
	}
	if res.Record.Carrier != "FedEx Freight" || res.Record.Status != contractx.StatusInTransit {
		t.Fatalf("Record = %+v, want the Atlanta-Miami FedEx shipment", res.Record)
	}
}

func TestGatewayLookupByPRONotFound(t *testing.T) {
	t.Parallel()

	gw, err := NewGateway(Config{MaxRequestsPerMinute: 60}, NewMockBackend())
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	res, err := gw.LookupByPRO(context.Background(), "WE000000000")
	if err != nil {
		t.Fatalf("LookupByPRO() error = %v, not found must not be an error", err)
	}
	if res.Status != contractx.LookupNotFound {
		t.Fatalf("Status = %q, want not_found", res.Status)
	}
}

type brokenBackend struct{}

func (brokenBackend) FetchByPRO(context.Context, string) (contractx.ShipmentRecord, bool, error) {
	return contractx.ShipmentRecord{}, false, errors.New("dial tcp: connection refused")
}

func (brokenBackend) Search(context.Context, contractx.Criteria) ([]contractx.ShipmentRecord, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestGatewayLookupByPROBackendFailure(t *testing.T) {
	t.Parallel()

	gw, err := NewGateway(Config{MaxRequestsPerMinute: 60}, brokenBackend{})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	res, err := gw.LookupByPRO(context.Background(), "WE123456789")
	if err != nil {
		t.Fatalf("LookupByPRO() error = %v, transport failure must be a result", err)
	}
	if res.Status != contractx.LookupError {
		t.Fatalf("Status = %q, want error", res.Status)
	}
	if !strings.Contains(res.Reason, contractx.ErrCarrierUnavailable.Error()) {
		t.Fatalf("Reason = %q, want carrier unavailable", res.Reason)
	}
}

func TestGatewayRateLimitSurfacesAsErrorResult(t *testing.T) {
	t.Parallel()

	gw, err := NewGateway(Config{MaxRequestsPerMinute: 1}, NewMockBackend())
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	if res, _ := gw.LookupByPRO(context.Background(), "WE123456789"); res.Status != contractx.LookupFound {
		t.Fatalf("first lookup Status = %q, want found", res.Status)
	}

	res, err := gw.LookupByPRO(context.Background(), "WE123456789")
	if err != nil {
		t.Fatalf("LookupByPRO() error = %v, throttling must be a result", err)
	}
	if res.Status != contractx.LookupError || !strings.Contains(res.Reason, contractx.ErrRateLimited.Error()) {
		t.Fatalf("result = %+v, want rate-limited error result", res)
	}
}

func TestGatewayLookupByCriteria(t *testing.T) {
	t.Parallel()

	gw, err := NewGateway(Config{MaxRequestsPerMinute: 60}, NewMockBackend())
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	recs, err := gw.LookupByCriteria(context.Background(), contractx.Criteria{Destination: "Houston"})
	if err != nil {
		t.Fatalf("LookupByCriteria() error = %v", err)
	}
	if len(recs) != 1 || recs[0].PRO != "WE987654321" {
		t.Fatalf("recs = %+v, want the Dallas-Houston shipment", recs)
	}

	if _, err := gw.LookupByCriteria(context.Background(), contractx.Criteria{}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("empty criteria error = %v, want ErrValidation", err)
	}
}

func TestTokenBucketRefill(t *testing.T) {
	t.Parallel()

	b := newTokenBucket(60)
	for i := 0; i < 60; i++ {
		if !b.allow() {
			t.Fatalf("allow() = false within burst, call %d", i)
		}
	}
	if b.allow() {
		t.Fatalf("allow() = true past burst, want throttled")
	}

	var nilBucket *tokenBucket
	if !nilBucket.allow() {
		t.Fatalf("nil bucket must never limit")
	}
}
