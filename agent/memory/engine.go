package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

// Snapshot is the full durable content of the engine, used to warm the
// in-memory stores on start.
type Snapshot struct {
	Facts    []Fact
	Episodes []EpisodeRecord
	Rules    []ProcedureRule
}

// Persister mirrors the engine's collections into a durable store.
// SaveTurn must be transactional: either everything it is handed lands
// or nothing does.
type Persister interface {
	LoadAll(ctx context.Context) (Snapshot, error)
	SaveTurn(ctx context.Context, facts []Fact, episode *EpisodeRecord, rule *ProcedureRule) error
	PruneEpisodes(ctx context.Context, cutoff time.Time) error
}

// keyedMutex hands out one mutex per key so writes to different
// subjects or conversations never contend.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// EngineOption customizes Engine construction.
type EngineOption func(*Engine)

func WithPersister(p Persister) EngineOption {
	return func(e *Engine) { e.persister = p }
}

// Engine is the facade over the three stores. All cross-store
// coordination happens at CommitTurn.
type Engine struct {
	cfg        Config
	semantic   *semanticStore
	episodic   *episodicStore
	procedural *proceduralStore
	persister  Persister

	subjectLocks keyedMutex
	convLocks    keyedMutex
	procMu       sync.Mutex

	pruneMu   sync.Mutex
	lastPrune time.Time
}

func NewEngine(cfg Config, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:        cfg,
		semantic:   newSemanticStore(),
		episodic:   newEpisodicStore(),
		procedural: newProceduralStore(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Warm loads the persisted snapshot into the in-memory stores. No-op
// without a persister.
func (e *Engine) Warm(ctx context.Context) error {
	if e.persister == nil {
		return nil
	}
	snap, err := e.persister.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load memory snapshot: %w", err)
	}
	e.semantic.replaceAll(snap.Facts)
	e.episodic.replaceAll(snap.Episodes)
	e.procedural.replaceAll(snap.Rules)
	log.Info().
		Int("facts", len(snap.Facts)).
		Int("episodes", len(snap.Episodes)).
		Int("rules", len(snap.Rules)).
		Msg("memory engine warmed from persistence")
	return nil
}

// ReadSemantic returns the fact stored for (subject, predicate), if
// any.
func (e *Engine) ReadSemantic(_ context.Context, subject, predicate string) (Fact, bool) {
	return e.semantic.get(subject, predicate)
}

// FactsBySubject returns every fact about the subject, predicate
// ordered.
func (e *Engine) FactsBySubject(_ context.Context, subject string) []Fact {
	return e.semantic.bySubject(subject)
}

// WriteSemantic upserts one fact. A write with lower confidence than
// the stored fact does not supersede it; applied reports whether the
// store changed.
func (e *Engine) WriteSemantic(ctx context.Context, f Fact) (applied bool, err error) {
	if f.Subject == "" || f.Predicate == "" {
		return false, fmt.Errorf("%w: fact requires subject and predicate", contractx.ErrValidation)
	}

	unlock := e.subjectLocks.lock(f.Subject)
	defer unlock()

	now := time.Now()
	if !e.semantic.wouldApply(f) {
		return false, nil
	}
	f.UpdatedAt = now.UTC()
	if e.persister != nil {
		if perr := e.persister.SaveTurn(ctx, []Fact{f}, nil, nil); perr != nil {
			return false, fmt.Errorf("%w: persist semantic fact: %v", contractx.ErrMemoryWrite, perr)
		}
	}
	e.semantic.upsert(f, now)
	return true, nil
}

// AppendEpisode appends one turn record. Out-of-order indices are
// rejected.
func (e *Engine) AppendEpisode(ctx context.Context, rec EpisodeRecord) error {
	unlock := e.convLocks.lock(rec.ConversationID)
	defer unlock()

	rec = e.stampEpisode(rec, time.Now())
	if err := e.episodic.checkAppend(rec); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrMemoryWrite, err)
	}
	if e.persister != nil {
		if perr := e.persister.SaveTurn(ctx, nil, &rec, nil); perr != nil {
			return fmt.Errorf("%w: persist episode: %v", contractx.ErrMemoryWrite, perr)
		}
	}
	if err := e.episodic.append(rec); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrMemoryWrite, err)
	}
	return nil
}

// QueryEpisodes returns the conversation's most recent episodes first,
// capped by MaxConversationHistory. Retention pruning runs lazily here.
func (e *Engine) QueryEpisodes(ctx context.Context, conversationID string, limit int) []EpisodeRecord {
	e.pruneIfDue(ctx, time.Now())
	if limit <= 0 || (e.cfg.MaxConversationHistory > 0 && limit > e.cfg.MaxConversationHistory) {
		limit = e.cfg.MaxConversationHistory
	}
	return e.episodic.query(conversationID, limit)
}

// MatchProcedures returns the rules matching the trigger, best weight
// first.
func (e *Engine) MatchProcedures(_ context.Context, trigger Trigger) []ProcedureRule {
	return e.procedural.match(trigger, time.Now(), e.cfg)
}

// UpdateProcedure applies one feedback step and returns the rule after
// the update.
func (e *Engine) UpdateProcedure(ctx context.Context, fb ProcedureFeedback) (ProcedureRule, error) {
	e.procMu.Lock()
	defer e.procMu.Unlock()

	now := time.Now()
	rule, _ := e.procedural.preview(fb, now, e.cfg)
	if e.persister != nil {
		if perr := e.persister.SaveTurn(ctx, nil, nil, &rule); perr != nil {
			return ProcedureRule{}, fmt.Errorf("%w: persist procedure rule: %v", contractx.ErrMemoryWrite, perr)
		}
	}
	e.procedural.applyRule(rule)
	return rule, nil
}

// CommitTurn is the write barrier: the turn's semantic upserts, one
// episode append, and the procedural nudge land together or not at
// all. Any failure surfaces as ErrMemoryWrite with no partial state
// left behind.
func (e *Engine) CommitTurn(ctx context.Context, batch TurnBatch) error {
	if batch.ConversationID == "" {
		return fmt.Errorf("%w: turn batch without conversation id", contractx.ErrMemoryWrite)
	}
	if batch.Episode.ConversationID == "" {
		batch.Episode.ConversationID = batch.ConversationID
	}
	if batch.Episode.ConversationID != batch.ConversationID {
		return fmt.Errorf("%w: episode conversation %q does not match batch %q",
			contractx.ErrMemoryWrite, batch.Episode.ConversationID, batch.ConversationID)
	}

	unlockConv := e.convLocks.lock(batch.ConversationID)
	defer unlockConv()
	e.procMu.Lock()
	defer e.procMu.Unlock()

	now := time.Now()

	// Stage everything first; nothing below may mutate a store until
	// all checks and the persister write have succeeded.
	episode := e.stampEpisode(batch.Episode, now)
	if err := e.episodic.checkAppend(episode); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrMemoryWrite, err)
	}

	var unlockSubjects []func()
	defer func() {
		for _, u := range unlockSubjects {
			u()
		}
	}()

	applied := make([]Fact, 0, len(batch.Facts))
	seen := make(map[string]struct{}, len(batch.Facts))
	for _, f := range batch.Facts {
		if f.Subject == "" || f.Predicate == "" {
			return fmt.Errorf("%w: fact requires subject and predicate", contractx.ErrMemoryWrite)
		}
		if _, ok := seen[f.Subject]; !ok {
			seen[f.Subject] = struct{}{}
			unlockSubjects = append(unlockSubjects, e.subjectLocks.lock(f.Subject))
		}
		if !e.semantic.wouldApply(f) {
			continue
		}
		f.UpdatedAt = now.UTC()
		applied = append(applied, f)
	}

	var rule *ProcedureRule
	if batch.Feedback != nil {
		staged, _ := e.procedural.preview(*batch.Feedback, now, e.cfg)
		rule = &staged
	}

	if e.persister != nil {
		if perr := e.persister.SaveTurn(ctx, applied, &episode, rule); perr != nil {
			return fmt.Errorf("%w: persist turn: %v", contractx.ErrMemoryWrite, perr)
		}
	}

	for _, f := range applied {
		e.semantic.upsert(f, now)
	}
	if err := e.episodic.append(episode); err != nil {
		// unreachable while the conversation lock is held
		return fmt.Errorf("%w: %v", contractx.ErrMemoryWrite, err)
	}
	if rule != nil {
		e.procedural.applyRule(*rule)
	}
	return nil
}

func (e *Engine) stampEpisode(rec EpisodeRecord, now time.Time) EpisodeRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now.UTC()
	}
	return rec
}

// pruneIfDue enforces the episodic retention window, at most once per
// hour.
func (e *Engine) pruneIfDue(ctx context.Context, now time.Time) {
	if e.cfg.RetentionDays <= 0 {
		return
	}
	e.pruneMu.Lock()
	defer e.pruneMu.Unlock()
	if now.Sub(e.lastPrune) < time.Hour {
		return
	}
	e.lastPrune = now

	cutoff := now.Add(-time.Duration(e.cfg.RetentionDays) * 24 * time.Hour)
	removed := e.episodic.prune(cutoff)
	if e.persister != nil {
		if err := e.persister.PruneEpisodes(ctx, cutoff); err != nil {
			log.Warn().Err(err).Msg("prune persisted episodes")
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Time("cutoff", cutoff).Msg("pruned expired episodes")
	}
}
