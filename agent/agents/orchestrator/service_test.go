package orchestrator

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wwexlabs/freightdesk/agent/carrier"
	composerx "github.com/wwexlabs/freightdesk/agent/composer"
	contractx "github.com/wwexlabs/freightdesk/agent/contract"
	"github.com/wwexlabs/freightdesk/agent/escalation"
	"github.com/wwexlabs/freightdesk/agent/extractor"
	memoryx "github.com/wwexlabs/freightdesk/agent/memory"
	statex "github.com/wwexlabs/freightdesk/agent/state"
)

type mailCounter struct {
	mu    sync.Mutex
	calls int
	last  []byte
}

func (m *mailCounter) send(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = append([]byte(nil), msg...)
	return nil
}

type flakyBackend struct {
	inner carrier.Backend
	fail  int
	calls int
}

func (f *flakyBackend) FetchByPRO(ctx context.Context, pro string) (contractx.ShipmentRecord, bool, error) {
	f.calls++
	if f.calls <= f.fail {
		return contractx.ShipmentRecord{}, false, errors.New("carrier timeout")
	}
	return f.inner.FetchByPRO(ctx, pro)
}

func (f *flakyBackend) Search(ctx context.Context, c contractx.Criteria) ([]contractx.ShipmentRecord, error) {
	return f.inner.Search(ctx, c)
}

// failingStore rejects the first fail Save calls before delegating.
type failingStore struct {
	inner statex.Store
	fail  int
	saves int
}

func (s *failingStore) Load(ctx context.Context, id string) (*statex.ConversationState, error) {
	return s.inner.Load(ctx, id)
}

func (s *failingStore) Save(ctx context.Context, st *statex.ConversationState) error {
	s.saves++
	if s.saves <= s.fail {
		return errors.New("state store unavailable")
	}
	return s.inner.Save(ctx, st)
}

func (s *failingStore) Delete(ctx context.Context, id string) error {
	return s.inner.Delete(ctx, id)
}

type testHarness struct {
	orch    *Orchestrator
	engine  *memoryx.Engine
	backend *carrier.MockBackend
	mail    *mailCounter
}

func newHarness(t *testing.T, backend carrier.Backend) *testHarness {
	t.Helper()
	return newHarnessStore(t, backend, nil)
}

func newHarnessStore(t *testing.T, backend carrier.Backend, store statex.Store) *testHarness {
	t.Helper()

	mock := carrier.NewMockBackend()
	if backend == nil {
		backend = mock
	}
	if store == nil {
		store = statex.NewMemoryStore()
	}

	gw, err := carrier.NewGateway(carrier.Config{MaxRequestsPerMinute: 1000}, backend)
	if err != nil {
		t.Fatal(err)
	}

	engine := memoryx.NewEngine(memoryx.Config{
		RetentionDays:          30,
		MaxConversationHistory: 50,
		LearningRate:           0.1,
		MaxWeight:              1,
		InitialWeight:          0.5,
		SimilarityThreshold:    0.67,
		DecayPerDay:            0.01,
	})

	mail := &mailCounter{}
	sink := escalation.NewSink(escalation.Config{
		SMTPHost:     "smtp.test.local",
		SMTPPort:     587,
		FromAddress:  "escalations@test.local",
		DefaultEmail: "ops@test.local",
	}, escalation.WithSendMail(mail.send))

	orch, err := New(
		store,
		engine,
		extractor.NewRuleBased(),
		gw,
		sink,
		composerx.New(composerx.Config{}, nil),
		Config{ConfidenceThreshold: 0.5, LookupRetryDelay: time.Millisecond},
	)
	if err != nil {
		t.Fatal(err)
	}
	return &testHarness{orch: orch, engine: engine, backend: mock, mail: mail}
}

func TestHandleTurnTracksKnownPRO(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	resp, err := h.orch.HandleTurn(context.Background(), "conv-1", "Where is my shipment WE123456789?")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Action != contractx.ActionProvideStatus || resp.Outcome != contractx.OutcomeResolved {
		t.Fatalf("action/outcome = %s/%s, want provide_status/resolved", resp.Action, resp.Outcome)
	}
	for _, want := range []string{"WE123456789", "FedEx Freight", "in transit"} {
		if !strings.Contains(resp.Reply, want) {
			t.Errorf("reply %q missing %q", resp.Reply, want)
		}
	}
	if resp.State.CurrentPRO != "WE123456789" {
		t.Errorf("current PRO = %q", resp.State.CurrentPRO)
	}
}

func TestHandleTurnLowConfidenceRequestsInfo(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	resp, err := h.orch.HandleTurn(context.Background(), "conv-1", "hello there")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Action != contractx.ActionRequestInfo || resp.Outcome != contractx.OutcomeNeedsInfo {
		t.Fatalf("action/outcome = %s/%s, want request_info/needs_info", resp.Action, resp.Outcome)
	}
	if h.mail.calls != 0 {
		t.Errorf("escalation emails = %d, want 0", h.mail.calls)
	}
}

func TestHandleTurnAnaphoraReusesPriorPRO(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.orch.HandleTurn(ctx, "conv-1", "Track WE123456789 please"); err != nil {
		t.Fatal(err)
	}
	resp, err := h.orch.HandleTurn(ctx, "conv-1", "where is it now?")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Action != contractx.ActionProvideStatus {
		t.Fatalf("action = %s, want provide_status from antecedent", resp.Action)
	}
	if !strings.Contains(resp.Reply, "WE123456789") {
		t.Errorf("reply %q does not reference the prior shipment", resp.Reply)
	}
}

func TestHandleTurnUnknownPROEscalatesOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	resp, err := h.orch.HandleTurn(context.Background(), "conv-1", "Track WE999999999, it's urgent!")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Action != contractx.ActionEscalate || resp.Outcome != contractx.OutcomeEscalated {
		t.Fatalf("action/outcome = %s/%s, want escalate/escalated", resp.Action, resp.Outcome)
	}
	if h.mail.calls != 1 {
		t.Fatalf("escalation emails = %d, want exactly 1", h.mail.calls)
	}
	msg := string(h.mail.last)
	if !strings.Contains(msg, "WE999999999") || !strings.Contains(msg, "URGENT") {
		t.Errorf("escalation email missing PRO or urgency flag:\n%s", msg)
	}
	if !strings.Contains(resp.Reply, "reference number") {
		t.Errorf("reply %q does not give a reference", resp.Reply)
	}
}

func TestHandleTurnCarrierOutageDegrades(t *testing.T) {
	t.Parallel()

	fb := &flakyBackend{inner: carrier.NewMockBackend(), fail: 5}
	h := newHarness(t, fb)

	resp, err := h.orch.HandleTurn(context.Background(), "conv-1", "Track WE123456789")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Action != contractx.ActionDegraded || resp.Outcome != contractx.OutcomeDegraded {
		t.Fatalf("action/outcome = %s/%s, want degraded/degraded", resp.Action, resp.Outcome)
	}
	if !resp.FollowUp {
		t.Error("FollowUp = false, want manual follow-up flag")
	}
	if fb.calls != 2 {
		t.Errorf("backend calls = %d, want exactly 2", fb.calls)
	}
	if h.mail.calls != 0 {
		t.Errorf("escalation emails = %d, want 0 for a degraded turn", h.mail.calls)
	}
}

func TestHandleTurnCarrierRecoversOnRetry(t *testing.T) {
	t.Parallel()

	fb := &flakyBackend{inner: carrier.NewMockBackend(), fail: 1}
	h := newHarness(t, fb)

	resp, err := h.orch.HandleTurn(context.Background(), "conv-1", "Track WE123456789")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Action != contractx.ActionProvideStatus {
		t.Fatalf("action = %s, want provide_status after retry", resp.Action)
	}
	if fb.calls != 2 {
		t.Errorf("backend calls = %d, want 2", fb.calls)
	}
}

func TestHandleTurnDisambiguationFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.backend.Add(contractx.ShipmentRecord{
		PRO:         "WE222333444",
		Carrier:     "FedEx Freight",
		Origin:      "Dallas, TX",
		Destination: "Houston, TX",
		Status:      contractx.StatusInTransit,
	})

	ctx := context.Background()
	resp, err := h.orch.HandleTurn(ctx, "conv-1", "Track my freight from Dallas to Houston")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Action != contractx.ActionDisambiguate || resp.Outcome != contractx.OutcomeDisambiguating {
		t.Fatalf("action/outcome = %s/%s, want disambiguate/disambiguating", resp.Action, resp.Outcome)
	}
	if resp.State.CandidateCount != 2 {
		t.Fatalf("candidates = %d, want 2 stored", resp.State.CandidateCount)
	}
	if !resp.State.OutstandingQuestion {
		t.Error("outstanding question not recorded")
	}

	// sorted by PRO: WE222333444 first, WE987654321 second
	resp, err = h.orch.HandleTurn(ctx, "conv-1", "the second one")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Action != contractx.ActionProvideStatus {
		t.Fatalf("action = %s, want provide_status after pick", resp.Action)
	}
	if !strings.Contains(resp.Reply, "WE987654321") {
		t.Errorf("reply %q, want the second candidate's status", resp.Reply)
	}
	if resp.State.CandidateCount != 0 || resp.State.OutstandingQuestion {
		t.Errorf("state %+v, want candidates cleared", resp.State)
	}
}

func TestHandleTurnCriteriaSingleMatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	resp, err := h.orch.HandleTurn(context.Background(), "conv-1", "Track my freight from Memphis to Nashville")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Action != contractx.ActionProvideStatus {
		t.Fatalf("action = %s, want provide_status for a unique lane", resp.Action)
	}
	if !strings.Contains(resp.Reply, "WE555444333") {
		t.Errorf("reply %q, want the Memphis shipment", resp.Reply)
	}
}

func TestHandleTurnPreferenceIsRememberedForEscalation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()

	resp, err := h.orch.HandleTurn(ctx, "conv-1", "Please call me at 555-867-5309 with any updates")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Action != contractx.ActionAcknowledge {
		t.Fatalf("action = %s, want acknowledge", resp.Action)
	}

	fact, ok := h.engine.ReadSemantic(ctx, "conversation:conv-1", "prefers_channel")
	if !ok || fact.Object != "phone" {
		t.Fatalf("stored preference = %+v ok=%v, want phone", fact, ok)
	}

	// the stored preference routes the next escalation away from email
	resp, err = h.orch.HandleTurn(ctx, "conv-1", "Track WE999999999")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Action != contractx.ActionEscalate {
		t.Fatalf("action = %s, want escalate", resp.Action)
	}
	if h.mail.calls != 0 {
		t.Errorf("escalation emails = %d, want 0 when the customer asked for phone", h.mail.calls)
	}
}

func TestHandleTurnEpisodesAccumulateMonotonically(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	turns := []string{
		"Track WE123456789",
		"where is it now?",
		"thanks, is it delayed?",
	}
	for _, text := range turns {
		if _, err := h.orch.HandleTurn(ctx, "conv-1", text); err != nil {
			t.Fatal(err)
		}
	}

	eps := h.engine.QueryEpisodes(ctx, "conv-1", 10)
	if len(eps) != 3 {
		t.Fatalf("episodes = %d, want 3", len(eps))
	}
	// most recent first
	for i, wantIdx := range []int{2, 1, 0} {
		if eps[i].TurnIndex != wantIdx {
			t.Errorf("episode %d turn index = %d, want %d", i, eps[i].TurnIndex, wantIdx)
		}
	}
}

func TestHandleTurnRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	if _, err := h.orch.HandleTurn(context.Background(), "conv-1", "   "); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if _, err := h.orch.HandleTurn(context.Background(), "", "hi"); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestHandleTurnSaveFailureLeavesMemoryUntouched(t *testing.T) {
	t.Parallel()

	h := newHarnessStore(t, nil, &failingStore{inner: statex.NewMemoryStore(), fail: 1})
	ctx := context.Background()

	if _, err := h.orch.HandleTurn(ctx, "conv-1", "Where is my shipment WE123456789?"); err == nil {
		t.Fatal("HandleTurn() should surface the state save failure")
	}
	if eps := h.engine.QueryEpisodes(ctx, "conv-1", 10); len(eps) != 0 {
		t.Fatalf("episodes after failed turn = %d, want none", len(eps))
	}

	// retrying the whole turn converges once the store recovers
	resp, err := h.orch.HandleTurn(ctx, "conv-1", "Where is my shipment WE123456789?")
	if err != nil {
		t.Fatalf("retried HandleTurn() error = %v", err)
	}
	if resp.Action != contractx.ActionProvideStatus {
		t.Fatalf("action = %s, want provide_status", resp.Action)
	}
	eps := h.engine.QueryEpisodes(ctx, "conv-1", 10)
	if len(eps) != 1 || eps[0].TurnIndex != 0 {
		t.Fatalf("episodes = %+v, want exactly turn 0", eps)
	}

	if _, err := h.orch.HandleTurn(ctx, "conv-1", "Where is it now?"); err != nil {
		t.Fatalf("follow-up HandleTurn() error = %v", err)
	}
	eps = h.engine.QueryEpisodes(ctx, "conv-1", 10)
	if len(eps) != 2 || eps[0].TurnIndex != 1 {
		t.Fatalf("episodes = %+v, want turns 1,0 most recent first", eps)
	}
}

func TestHandleTurnSerializesConversation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.orch.HandleTurn(ctx, "conv-1", "Track WE123456789"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	eps := h.engine.QueryEpisodes(ctx, "conv-1", 20)
	if len(eps) != 8 {
		t.Fatalf("episodes = %d, want 8", len(eps))
	}
	seen := make(map[int]bool)
	for _, ep := range eps {
		if seen[ep.TurnIndex] {
			t.Fatalf("duplicate turn index %d", ep.TurnIndex)
		}
		seen[ep.TurnIndex] = true
	}
}
