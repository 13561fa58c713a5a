package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aimd54/streakd/internal/cache"
	"github.com/aimd54/streakd/internal/calendar"
)

// CursorTTL keeps an unfinished sweep resumable for two days.
const CursorTTL = 48 * time.Hour

// CursorStore remembers the last habit id of the last finished page of a sweep.
type CursorStore interface {
	Load(ctx context.Context, date calendar.Date) (string, error)
	Save(ctx context.Context, date calendar.Date, habitID string) error
	Clear(ctx context.Context, date calendar.Date) error
}

// CacheCursorStore keeps cursors in Redis so any instance can resume a sweep.
type CacheCursorStore struct {
	cache  cache.Cache
	prefix string
}

// NewCacheCursorStore creates a cursor store over c.
func NewCacheCursorStore(c cache.Cache, prefix string) *CacheCursorStore {
	return &CacheCursorStore{cache: c, prefix: prefix}
}

func (s *CacheCursorStore) key(date calendar.Date) string {
	return fmt.Sprintf("%ssweep:cursor:%s", s.prefix, date)
}

// Load returns "" when no cursor exists for date.
func (s *CacheCursorStore) Load(ctx context.Context, date calendar.Date) (string, error) {
	return s.cache.Get(ctx, s.key(date))
}

// Save stores habitID as the cursor for date.
func (s *CacheCursorStore) Save(ctx context.Context, date calendar.Date, habitID string) error {
	return s.cache.Set(ctx, s.key(date), habitID, CursorTTL)
}

// Clear drops the cursor for date.
func (s *CacheCursorStore) Clear(ctx context.Context, date calendar.Date) error {
	return s.cache.Del(ctx, s.key(date))
}

// MemoryCursorStore keeps cursors in process memory.
type MemoryCursorStore struct {
	mu      sync.Mutex
	cursors map[calendar.Date]string
}

// NewMemoryCursorStore creates an empty in-process cursor store.
func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[calendar.Date]string)}
}

// Load implements CursorStore.
func (s *MemoryCursorStore) Load(_ context.Context, date calendar.Date) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[date], nil
}

// Save implements CursorStore.
func (s *MemoryCursorStore) Save(_ context.Context, date calendar.Date, habitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[date] = habitID
	return nil
}

// Clear implements CursorStore.
func (s *MemoryCursorStore) Clear(_ context.Context, date calendar.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, date)
	return nil
}
