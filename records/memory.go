package records

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory behind a single mutex.
// It implements Store, Rotator and OneTimeStore.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	refresh  map[string]*Record
	byID     map[int64]string
	oneTime  map[string]*OneTimeRecord
	nextOTID int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		refresh: make(map[string]*Record),
		byID:    make(map[int64]string),
		oneTime: make(map[string]*OneTimeRecord),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(rec)
}

func (s *MemoryStore) insertLocked(rec *Record) error {
	if _, ok := s.refresh[rec.TokenHash]; ok {
		return ErrDuplicate
	}
	s.nextID++
	rec.ID = s.nextID
	stored := *rec
	s.refresh[rec.TokenHash] = &stored
	s.byID[rec.ID] = rec.TokenHash
	return nil
}

func (s *MemoryStore) FindByToken(ctx context.Context, tokenHash string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id int64) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := s.refresh[hash]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (s *MemoryStore) ConditionalMarkUsed(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[tokenHash]
	if !ok || !rec.Valid(now) {
		return false, nil
	}
	rec.Used = true
	return true, nil
}

func (s *MemoryStore) Rotate(ctx context.Context, oldHash string, next *Record, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[oldHash]
	if !ok {
		return ErrNotFound
	}
	if !rec.Valid(now) {
		return ErrNotValid
	}
	if err := s.insertLocked(next); err != nil {
		return err
	}
	rec.Used = true
	return nil
}

func (s *MemoryStore) MarkRevoked(ctx context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[tokenHash]
	if !ok || rec.Revoked {
		return false, nil
	}
	rec.Revoked = true
	return true, nil
}

func (s *MemoryStore) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, rec := range s.refresh {
		if rec.UserID == userID && !rec.Revoked {
			rec.Revoked = true
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for hash, rec := range s.refresh {
		if !rec.ExpiresAt.After(before) {
			delete(s.refresh, hash)
			delete(s.byID, rec.ID)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Delete(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.refresh[tokenHash]; ok {
		delete(s.byID, rec.ID)
		delete(s.refresh, tokenHash)
	}
	return nil
}

func (s *MemoryStore) InsertOneTime(ctx context.Context, rec *OneTimeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.oneTime[rec.TokenHash]; ok {
		return ErrDuplicate
	}
	s.nextOTID++
	rec.ID = s.nextOTID
	stored := *rec
	s.oneTime[rec.TokenHash] = &stored
	return nil
}

func (s *MemoryStore) FindOneTime(ctx context.Context, tokenHash string) (*OneTimeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.oneTime[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (s *MemoryStore) ConsumeOneTime(ctx context.Context, tokenHash, purpose string, now time.Time) (*OneTimeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.oneTime[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Purpose != purpose {
		return nil, ErrPurposeMismatch
	}
	if !rec.Valid(now) {
		return nil, ErrNotValid
	}
	rec.Used = true
	out := *rec
	return &out, nil
}

func (s *MemoryStore) DeleteExpiredOneTime(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for hash, rec := range s.oneTime {
		if !rec.ExpiresAt.After(before) {
			delete(s.oneTime, hash)
			count++
		}
	}
	return count, nil
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ Rotator      = (*MemoryStore)(nil)
	_ OneTimeStore = (*MemoryStore)(nil)
)
