package cooldown

import (
	"context"
	"sync"
	"time"

	"restricted-promotion/models"
)

// MemStore is an in-process Store. State is lost on restart.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]*models.CooldownRecord
}

var _ Store = (*MemStore)(nil)
var _ Pruner = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*models.CooldownRecord)}
}

func (s *MemStore) Get(ctx context.Context, serverID string) (*models.CooldownRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[serverID].Clone(), nil
}

func (s *MemStore) Upsert(ctx context.Context, serverID, authorID string, msg models.MessageRef, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[serverID]
	if !ok {
		rec = &models.CooldownRecord{
			ServerID: serverID,
			Authors:  make(map[string]time.Time),
			Messages: make(map[string]models.MessageRef),
		}
		s.records[serverID] = rec
	}
	rec.LastAdvertisedAt = at
	rec.Authors[authorID] = at
	rec.Messages[authorID] = msg
	return nil
}

func (s *MemStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.records {
		for author, at := range rec.Authors {
			if at.Before(before) {
				delete(rec.Authors, author)
				delete(rec.Messages, author)
				n++
			}
		}
		if rec.LastAdvertisedAt.Before(before) && len(rec.Authors) == 0 {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *MemStore) Close() error {
	return nil
}
