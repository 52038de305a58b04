// Package configstore provides the shared runtime configuration store backed
// by Postgres: scalar flags with a short-TTL local cache, a LISTEN/NOTIFY
// change channel, and lease-based distributed locks.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/paperpulse/analysis-service/internal/database"
)

// Channel is the Postgres NOTIFY channel for config changes.
const Channel = "runtime_config_changed"

// Well-known config keys.
const (
	KeyAIEnabled          = "ai_enabled"
	KeyV3AutoEnabled      = "v3_auto_enabled"
	KeyDailyBudgetCents   = "daily_budget_cents"
	KeyMonthlyBudgetCents = "monthly_budget_cents"
	KeyPaused             = "paused"
	KeyPauseReason        = "pause_reason"
)

// DefaultCacheTTL bounds how stale a cached read may be.
const DefaultCacheTTL = 5 * time.Second

// Clock abstracts time for deterministic cache tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Defaults are the process-level fallbacks used when the store is
// unreachable or a key is unset. Resolution order is store value, then
// default.
type Defaults struct {
	AIEnabled          bool
	V3AutoEnabled      bool
	DailyBudgetCents   int64
	MonthlyBudgetCents int64
}

type cacheEntry struct {
	value     string
	found     bool
	fetchedAt time.Time
}

// Store reads and writes runtime configuration flags. Reads are served from
// a per-key local cache with a short TTL; writes update the store, publish a
// change notification, and invalidate the local cache immediately.
type Store struct {
	db       database.DBTX
	defaults Defaults
	ttl      time.Duration
	clock    Clock
	logger   zerolog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewStore creates a Store. A zero ttl falls back to DefaultCacheTTL and a
// nil clock to the system clock.
func NewStore(db database.DBTX, defaults Defaults, ttl time.Duration, clock Clock, logger zerolog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Store{
		db:       db,
		defaults: defaults,
		ttl:      ttl,
		clock:    clock,
		logger:   logger.With().Str("component", "configstore").Logger(),
		cache:    make(map[string]cacheEntry),
	}
}

// Get returns the stored value for key. found is false when the key is
// unset. Values may be up to the cache TTL stale.
func (s *Store) Get(ctx context.Context, key string) (value string, found bool, err error) {
	now := s.clock.Now()

	s.mu.Lock()
	if entry, ok := s.cache[key]; ok && now.Sub(entry.fetchedAt) < s.ttl {
		s.mu.Unlock()
		return entry.value, entry.found, nil
	}
	s.mu.Unlock()

	var v string
	err = s.db.QueryRow(ctx, `SELECT value FROM runtime_config WHERE key = $1`, key).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.storeCache(key, "", false, now)
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read config key %q: %w", key, err)
	}

	s.storeCache(key, v, true, now)
	return v, true, nil
}

// Set writes a value with an audit timestamp, publishes a change
// notification on the config channel, and invalidates the local cache entry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO runtime_config (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	if _, err := s.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write config key %q: %w", key, err)
	}

	s.Invalidate(key)

	payload := key + "=" + value
	if _, err := s.db.Exec(ctx, `SELECT pg_notify($1, $2)`, Channel, payload); err != nil {
		// The write landed; other processes converge via their cache TTL.
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to publish config change")
	}
	return nil
}

// Invalidate drops the cached entry for key so the next read hits the store.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
}

// InvalidateAll drops every cached entry.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[string]cacheEntry)
	s.mu.Unlock()
}

func (s *Store) storeCache(key, value string, found bool, at time.Time) {
	s.mu.Lock()
	s.cache[key] = cacheEntry{value: value, found: found, fetchedAt: at}
	s.mu.Unlock()
}

func (s *Store) getBool(ctx context.Context, key string, fallback bool) bool {
	v, found, err := s.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("config read failed, using default")
		return fallback
	}
	if !found {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		s.logger.Warn().Str("key", key).Str("value", v).Msg("malformed boolean config value, using default")
		return fallback
	}
	return b
}

func (s *Store) getInt64(ctx context.Context, key string, fallback int64) int64 {
	v, found, err := s.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("config read failed, using default")
		return fallback
	}
	if !found {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		s.logger.Warn().Str("key", key).Str("value", v).Msg("malformed integer config value, using default")
		return fallback
	}
	return n
}

// Enabled reports whether AI analysis is globally enabled.
func (s *Store) Enabled(ctx context.Context) bool {
	return s.getBool(ctx, KeyAIEnabled, s.defaults.AIEnabled)
}

// SetEnabled writes the global AI toggle and publishes the change.
func (s *Store) SetEnabled(ctx context.Context, enabled bool) error {
	return s.Set(ctx, KeyAIEnabled, strconv.FormatBool(enabled))
}

// V3AutoEnabled reports whether the v3 pipeline may auto-start batches.
func (s *Store) V3AutoEnabled(ctx context.Context) bool {
	return s.getBool(ctx, KeyV3AutoEnabled, s.defaults.V3AutoEnabled)
}

// SetV3AutoEnabled writes the v3 auto-analysis toggle. Turning it off also
// clears any pause reason.
func (s *Store) SetV3AutoEnabled(ctx context.Context, enabled bool) error {
	if err := s.Set(ctx, KeyV3AutoEnabled, strconv.FormatBool(enabled)); err != nil {
		return err
	}
	if !enabled {
		return s.SetPaused(ctx, false, "")
	}
	return nil
}

// DailyBudgetCents returns the daily spend ceiling.
func (s *Store) DailyBudgetCents(ctx context.Context) int64 {
	return s.getInt64(ctx, KeyDailyBudgetCents, s.defaults.DailyBudgetCents)
}

// MonthlyBudgetCents returns the monthly spend ceiling.
func (s *Store) MonthlyBudgetCents(ctx context.Context) int64 {
	return s.getInt64(ctx, KeyMonthlyBudgetCents, s.defaults.MonthlyBudgetCents)
}

// Paused reports the pause flag and its reason.
func (s *Store) Paused(ctx context.Context) (bool, string) {
	paused := s.getBool(ctx, KeyPaused, false)
	if !paused {
		return false, ""
	}
	reason, _, err := s.Get(ctx, KeyPauseReason)
	if err != nil {
		reason = ""
	}
	return true, reason
}

// SetPaused writes the pause flag. Lifting the pause clears the reason.
func (s *Store) SetPaused(ctx context.Context, paused bool, reason string) error {
	if !paused {
		reason = ""
	}
	if err := s.Set(ctx, KeyPauseReason, reason); err != nil {
		return err
	}
	return s.Set(ctx, KeyPaused, strconv.FormatBool(paused))
}
