package memory

import (
	"sort"
	"sync"
	"time"
)

// semanticStore holds facts keyed by (subject, predicate). A write only
// supersedes the stored fact when its confidence is at least as high;
// a weaker observation is dropped here (it still lands in the episodic
// log through the turn batch).
type semanticStore struct {
	mu    sync.RWMutex
	facts map[string]Fact
}

func newSemanticStore() *semanticStore {
	return &semanticStore{facts: make(map[string]Fact)}
}

func factKey(subject, predicate string) string {
	return subject + "\x00" + predicate
}

// wouldApply reports whether upsert would change the store, without
// mutating anything. Used by the commit barrier to stage writes.
func (s *semanticStore) wouldApply(f Fact) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing, ok := s.facts[factKey(f.Subject, f.Predicate)]
	if !ok {
		return true
	}
	return f.Confidence >= existing.Confidence
}

func (s *semanticStore) upsert(f Fact, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := factKey(f.Subject, f.Predicate)
	if existing, ok := s.facts[key]; ok && f.Confidence < existing.Confidence {
		return false
	}
	f.UpdatedAt = now.UTC()
	s.facts[key] = f
	return true
}

func (s *semanticStore) get(subject, predicate string) (Fact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[factKey(subject, predicate)]
	return f, ok
}

func (s *semanticStore) bySubject(subject string) []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Fact
	for _, f := range s.facts {
		if f.Subject == subject {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Predicate < out[j].Predicate })
	return out
}

func (s *semanticStore) replaceAll(facts []Fact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = make(map[string]Fact, len(facts))
	for _, f := range facts {
		s.facts[factKey(f.Subject, f.Predicate)] = f
	}
}
