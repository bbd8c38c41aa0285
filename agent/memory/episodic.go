package memory

import (
	"fmt"
	"sync"
	"time"
)

// episodicStore is the append-only turn history, ordered by
// (conversation_id, turn_index) ascending. Records are never reordered
// or mutated; pruning drops whole records past the retention window.
type episodicStore struct {
	mu     sync.RWMutex
	byConv map[string][]EpisodeRecord
}

func newEpisodicStore() *episodicStore {
	return &episodicStore{byConv: make(map[string][]EpisodeRecord)}
}

// checkAppend validates ordering without mutating the store.
func (s *episodicStore) checkAppend(rec EpisodeRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkAppendLocked(rec)
}

func (s *episodicStore) checkAppendLocked(rec EpisodeRecord) error {
	if rec.ConversationID == "" {
		return fmt.Errorf("episode without conversation id")
	}
	if rec.TurnIndex < 0 {
		return fmt.Errorf("episode turn index %d is negative", rec.TurnIndex)
	}
	eps := s.byConv[rec.ConversationID]
	if len(eps) > 0 && rec.TurnIndex <= eps[len(eps)-1].TurnIndex {
		return fmt.Errorf("episode turn index %d not after %d", rec.TurnIndex, eps[len(eps)-1].TurnIndex)
	}
	return nil
}

func (s *episodicStore) append(rec EpisodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAppendLocked(rec); err != nil {
		return err
	}
	s.byConv[rec.ConversationID] = append(s.byConv[rec.ConversationID], rec)
	return nil
}

// query returns the most recent episodes first, capped at limit.
func (s *episodicStore) query(conversationID string, limit int) []EpisodeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eps := s.byConv[conversationID]
	if limit <= 0 || limit > len(eps) {
		limit = len(eps)
	}
	out := make([]EpisodeRecord, 0, limit)
	for i := len(eps) - 1; i >= len(eps)-limit; i-- {
		out = append(out, eps[i])
	}
	return out
}

// prune drops episodes created before the cutoff. Returns how many were
// removed.
func (s *episodicStore) prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for conv, eps := range s.byConv {
		i := 0
		for i < len(eps) && eps[i].CreatedAt.Before(cutoff) {
			i++
		}
		if i == 0 {
			continue
		}
		removed += i
		if i == len(eps) {
			delete(s.byConv, conv)
			continue
		}
		kept := make([]EpisodeRecord, len(eps)-i)
		copy(kept, eps[i:])
		s.byConv[conv] = kept
	}
	return removed
}

func (s *episodicStore) replaceAll(records []EpisodeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byConv = make(map[string][]EpisodeRecord)
	for _, rec := range records {
		s.byConv[rec.ConversationID] = append(s.byConv[rec.ConversationID], rec)
	}
}
