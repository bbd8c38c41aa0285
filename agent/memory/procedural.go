package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// proceduralStore holds learned strategy weights. Rules decay toward
// zero as they age but are never deleted, so a cold strategy can still
// be rediscovered.
type proceduralStore struct {
	mu    sync.RWMutex
	rules []*ProcedureRule
}

func newProceduralStore() *proceduralStore {
	return &proceduralStore{}
}

// decayedWeight is the rule's weight after linear decay toward zero,
// computed lazily from the last update time.
func decayedWeight(r *ProcedureRule, now time.Time, cfg Config) float64 {
	w := r.Weight
	days := now.Sub(r.UpdatedAt).Hours() / 24
	if days <= 0 || cfg.DecayPerDay <= 0 {
		return clampWeight(w, cfg)
	}
	step := cfg.DecayPerDay * days
	switch {
	case w > 0:
		w -= step
		if w < 0 {
			w = 0
		}
	case w < 0:
		w += step
		if w > 0 {
			w = 0
		}
	}
	return clampWeight(w, cfg)
}

func clampWeight(w float64, cfg Config) float64 {
	if w < cfg.MinWeight {
		return cfg.MinWeight
	}
	if w > cfg.MaxWeight {
		return cfg.MaxWeight
	}
	return w
}

// match returns rules whose trigger similarity meets the threshold,
// ordered by decayed weight descending.
func (s *proceduralStore) match(trigger Trigger, now time.Time, cfg Config) []ProcedureRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		rule   ProcedureRule
		weight float64
	}
	var hits []scored
	for _, r := range s.rules {
		if trigger.Similarity(r.Trigger) < cfg.SimilarityThreshold {
			continue
		}
		cp := *r
		cp.Weight = decayedWeight(r, now, cfg)
		hits = append(hits, scored{rule: cp, weight: cp.Weight})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].weight > hits[j].weight })

	out := make([]ProcedureRule, len(hits))
	for i, h := range hits {
		out[i] = h.rule
	}
	return out
}

// preview computes the rule one feedback step would produce, without
// mutating the store. The best-matching rule above the similarity
// threshold gets a fixed learning-rate nudge, positive for success and
// negative for failure; with no match a new rule is minted. The caller
// lands the result with applyRule once it is safe to commit.
func (s *proceduralStore) preview(fb ProcedureFeedback, now time.Time, cfg Config) (ProcedureRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *ProcedureRule
	bestSim := 0.0
	for _, r := range s.rules {
		sim := fb.Trigger.Similarity(r.Trigger)
		if sim > bestSim {
			bestSim = sim
			best = r
		}
	}

	step := cfg.LearningRate
	if !fb.Success {
		step = -step
	}

	if best == nil || bestSim < cfg.SimilarityThreshold {
		return ProcedureRule{
			ID:        uuid.NewString(),
			Trigger:   fb.Trigger,
			Channel:   fb.Channel,
			Weight:    clampWeight(cfg.InitialWeight+step, cfg),
			UpdatedAt: now.UTC(),
		}, true
	}

	cp := *best
	cp.Weight = clampWeight(decayedWeight(best, now, cfg)+step, cfg)
	cp.UpdatedAt = now.UTC()
	return cp, false
}

// applyRule lands a previewed rule, replacing by ID or appending.
func (s *proceduralStore) applyRule(rule ProcedureRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.ID == rule.ID {
			*r = rule
			return
		}
	}
	cp := rule
	s.rules = append(s.rules, &cp)
}

func (s *proceduralStore) all() []ProcedureRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ProcedureRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, *r)
	}
	return out
}

func (s *proceduralStore) replaceAll(rules []ProcedureRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = make([]*ProcedureRule, 0, len(rules))
	for i := range rules {
		cp := rules[i]
		s.rules = append(s.rules, &cp)
	}
}
