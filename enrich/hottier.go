package enrich

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/coldpath/coldpath-backend/models"
)

// HotTier is an optional payload cache layered in front of the persistent
// store. It only short-circuits the read in the hit path; hit counting and
// search history always go to the persistent store, so losing the hot tier
// costs latency, never correctness.
type HotTier interface {
	Get(ctx context.Context, hash string) (*models.EmailCacheRecord, bool)
	Set(ctx context.Context, hash string, rec *models.EmailCacheRecord)
	Delete(ctx context.Context, hash string)
}

// ─── In-process tier ──────────────────────────────────────────────────────────

type memoryEntry struct {
	rec       models.EmailCacheRecord
	expiresAt time.Time
}

// MemoryTier is the default single-process hot tier: an RWMutex map with a
// short TTL.
type MemoryTier struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

func NewMemoryTier(ttl time.Duration) *MemoryTier {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryTier{ttl: ttl, entries: make(map[string]memoryEntry)}
}

func (m *MemoryTier) Get(_ context.Context, hash string) (*models.EmailCacheRecord, bool) {
	m.mu.RLock()
	e, ok := m.entries[hash]
	m.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	rec := e.rec
	return &rec, true
}

func (m *MemoryTier) Set(_ context.Context, hash string, rec *models.EmailCacheRecord) {
	m.mu.Lock()
	m.entries[hash] = memoryEntry{rec: *rec, expiresAt: time.Now().Add(m.ttl)}
	m.mu.Unlock()
}

func (m *MemoryTier) Delete(_ context.Context, hash string) {
	m.mu.Lock()
	delete(m.entries, hash)
	m.mu.Unlock()
}

// ─── Redis tier ───────────────────────────────────────────────────────────────

const redisKeyPrefix = "enrich:v1:"

// RedisTier shares the hot tier across server instances. Keys are versioned
// so a payload shape change can roll out without a flush.
type RedisTier struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTier(addr, password string, db int, ttl time.Duration) *RedisTier {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisTier{
		rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl: ttl,
	}
}

func (r *RedisTier) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisTier) Close() error { return r.rdb.Close() }

func (r *RedisTier) Get(ctx context.Context, hash string) (*models.EmailCacheRecord, bool) {
	raw, err := r.rdb.Get(ctx, redisKeyPrefix+hash).Bytes()
	if err != nil {
		// redis.Nil and infrastructure errors are both just a miss here.
		return nil, false
	}
	var rec models.EmailCacheRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func (r *RedisTier) Set(ctx context.Context, hash string, rec *models.EmailCacheRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = r.rdb.Set(ctx, redisKeyPrefix+hash, raw, r.ttl).Err()
}

func (r *RedisTier) Delete(ctx context.Context, hash string) {
	_ = r.rdb.Del(ctx, redisKeyPrefix+hash).Err()
}
