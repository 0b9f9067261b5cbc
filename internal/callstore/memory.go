package callstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type roomLease struct {
	callID  string
	expires time.Time
}

// MemoryStore keeps records in process memory. It is used for development
// and tests, and when no redis address is configured.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*CallRecord
	rooms   map[string]roomLease
	roomTTL time.Duration
}

func NewMemoryStore(roomTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*CallRecord),
		rooms:   make(map[string]roomLease),
		roomTTL: roomTTL,
	}
}

func (s *MemoryStore) Create(_ context.Context, rec *CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("call %s: %w", rec.ID, ErrExists)
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("call %s: %w", id, ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*CallRecord) error) (*CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("call %s: %w", id, ErrNotFound)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	s.records[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]*CallRecord, error) {
	s.mu.Lock()
	out := make([]*CallRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ReserveRoom(_ context.Context, room, callID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if lease, ok := s.rooms[room]; ok && (s.roomTTL <= 0 || now.Before(lease.expires)) {
		return lease.callID == callID, nil
	}
	s.rooms[room] = roomLease{callID: callID, expires: now.Add(s.roomTTL)}
	return true, nil
}

func (s *MemoryStore) ReleaseRoom(_ context.Context, room, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lease, ok := s.rooms[room]; ok && lease.callID == callID {
		delete(s.rooms, room)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
