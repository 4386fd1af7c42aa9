package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"crawlmind/internal/model"
)

const defaultSessionTTL = 2 * time.Hour

// RedisSessionStore keeps session snapshots as JSON values that expire after
// ttl of inactivity.
type RedisSessionStore struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redisv9.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) Get(ctx context.Context, identity, sessionID string) (*model.SessionSnapshot, bool, error) {
	raw, err := s.client.Get(ctx, sessionKey(identity, sessionID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get session failed: %w", err)
	}

	var snap model.SessionSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached session failed: %w", err)
	}
	return &snap, true, nil
}

func (s *RedisSessionStore) Set(ctx context.Context, snap model.SessionSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(snap.Identity, snap.SessionID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session failed: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, identity, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(identity, sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete session failed: %w", err)
	}
	return nil
}

func sessionKey(identity, sessionID string) string {
	if identity == "" {
		identity = "_"
	}
	return fmt.Sprintf("crawlmind:session:%s:%s", identity, sessionID)
}

// MemorySessionStore is the single-process fallback used when Redis is not
// configured. Entries expire lazily on read.
type MemorySessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	snap    model.SessionSnapshot
	expires time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &MemorySessionStore{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemorySessionStore) Get(_ context.Context, identity, sessionID string) (*model.SessionSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(identity, sessionID)
	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if s.now().After(entry.expires) {
		delete(s.entries, key)
		return nil, false, nil
	}
	snap := entry.snap
	snap.Transcript = append([]model.ChatTurn(nil), entry.snap.Transcript...)
	return &snap, true, nil
}

func (s *MemorySessionStore) Set(_ context.Context, snap model.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.Transcript = append([]model.ChatTurn(nil), snap.Transcript...)
	s.entries[sessionKey(snap.Identity, snap.SessionID)] = memoryEntry{snap: snap, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, identity, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionKey(identity, sessionID))
	return nil
}
