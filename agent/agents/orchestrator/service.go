// Package orchestrator runs the per-turn conversation pipeline. Each
// turn flows through an eino graph; turns within one conversation are
// strictly serialized so every turn decides against the state the
// previous turn committed.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"golang.org/x/sync/semaphore"

	composerx "github.com/wwexlabs/freightdesk/agent/composer"
	contractx "github.com/wwexlabs/freightdesk/agent/contract"
	nodex "github.com/wwexlabs/freightdesk/agent/nodes/orchestrator"
	statex "github.com/wwexlabs/freightdesk/agent/state"
)

type Config struct {
	ConfidenceThreshold        float64       `envconfig:"CONFIDENCE_THRESHOLD" split_words:"true" default:"0.5"`
	MaxConcurrentConversations int64         `envconfig:"MAX_CONCURRENT_CONVERSATIONS" split_words:"true" default:"16"`
	TurnTimeout                time.Duration `envconfig:"TURN_TIMEOUT" split_words:"true" default:"30s"`
	LookupRetryDelay           time.Duration `envconfig:"LOOKUP_RETRY_DELAY" split_words:"true" default:"200ms"`
}

type Orchestrator struct {
	cfg Config

	store     statex.Store
	engine    nodex.MemoryEngine
	extractor contractx.Extractor
	gateway   contractx.CarrierGateway
	sink      contractx.EscalationSink
	composer  *composerx.Composer

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	// sem bounds concurrently active turns across all conversations;
	// convMu serializes turns within one conversation.
	sem       *semaphore.Weighted
	convMu    sync.Mutex
	convLocks map[string]*sync.Mutex

	now func() time.Time
}

func New(
	store statex.Store,
	engine nodex.MemoryEngine,
	extractor contractx.Extractor,
	gateway contractx.CarrierGateway,
	sink contractx.EscalationSink,
	composer *composerx.Composer,
	cfg Config,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if engine == nil {
		return nil, errors.New("memory engine is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if gateway == nil {
		return nil, errors.New("carrier gateway is required")
	}
	if sink == nil {
		return nil, errors.New("escalation sink is required")
	}
	if composer == nil {
		return nil, errors.New("composer is required")
	}

	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.5
	}
	if cfg.MaxConcurrentConversations <= 0 {
		cfg.MaxConcurrentConversations = 16
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 30 * time.Second
	}
	if cfg.LookupRetryDelay < 0 {
		cfg.LookupRetryDelay = 0
	}

	o := &Orchestrator{
		cfg:       cfg,
		store:     store,
		engine:    engine,
		extractor: extractor,
		gateway:   gateway,
		sink:      sink,
		composer:  composer,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrentConversations),
		convLocks: make(map[string]*sync.Mutex),
		now:       time.Now,
	}

	graphRunner, err := o.compileHandleTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleTurn processes one customer utterance and returns the agent's
// response. Degraded lookups and failed escalation deliveries are
// reported inside the response; the error return is reserved for
// invalid input, memory-commit failures, and context cancellation.
func (o *Orchestrator) HandleTurn(ctx context.Context, conversationID, text string) (contractx.AgentResponse, error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return contractx.AgentResponse{}, err
	}
	defer o.sem.Release(1)

	mu := o.conversationLock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		ConversationID: conversationID,
		Text:           text,
	})
	if err != nil {
		return contractx.AgentResponse{}, err
	}
	return out, nil
}

func (o *Orchestrator) conversationLock(conversationID string) *sync.Mutex {
	o.convMu.Lock()
	defer o.convMu.Unlock()
	mu, ok := o.convLocks[conversationID]
	if !ok {
		mu = &sync.Mutex{}
		o.convLocks[conversationID] = mu
	}
	return mu
}
