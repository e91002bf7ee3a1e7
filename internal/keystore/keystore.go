// Package keystore manages gateway API keys and enforces a precise sliding
// window rate limit per key, independent of the coarse global token-bucket
// guard layered in front of it by internal/middleware.
package keystore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"gcli2api-go/internal/jsonstore"
	"gcli2api-go/internal/monitoring"
)

// bucketWidth is the sliding-window granularity: usage is tracked in
// 10-second buckets and buckets older than the window are purged.
const bucketWidth = 10 * time.Second

// APIKey is a single issued gateway API key.
type APIKey struct {
	Key          string `json:"key"`
	Label        string `json:"label,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	RateLimitRPM int    `json:"rate_limit_rpm"`
}

type fileShape struct {
	Keys []*APIKey `json:"keys"`
}

// Keystore validates API keys and tracks their sliding-window rate limit
// usage in memory; the key list itself is persisted through jsonstore.
type Keystore struct {
	store *jsonstore.File[fileShape]

	mu      sync.Mutex
	buckets map[string]map[int64]int // key -> (bucket start unix -> count)
}

// Open loads (or creates) the backing api_keys.json file.
func Open(path string) (*Keystore, error) {
	store, err := jsonstore.Open[fileShape](path)
	if err != nil {
		return nil, err
	}
	return &Keystore{store: store, buckets: make(map[string]map[int64]int)}, nil
}

// Create mints a new random API key with the given label and per-minute
// rate limit, persists it, and returns the key.
func (k *Keystore) Create(label string, rateLimitRPM int) (*APIKey, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	key := &APIKey{
		Key:          "sk-gw-" + hex.EncodeToString(raw),
		Label:        label,
		CreatedAt:    time.Now(),
		RateLimitRPM: rateLimitRPM,
	}
	k.store.Update(func(v *fileShape) { v.Keys = append(v.Keys, key) })
	k.store.FlushLogged()
	return key, nil
}

// Delete removes an API key.
func (k *Keystore) Delete(key string) bool {
	removed := false
	k.store.Update(func(v *fileShape) {
		out := v.Keys[:0]
		for _, existing := range v.Keys {
			if existing.Key == key {
				removed = true
				continue
			}
			out = append(out, existing)
		}
		v.Keys = out
	})
	if removed {
		k.store.FlushLogged()
		k.mu.Lock()
		delete(k.buckets, key)
		monitoring.RateLimitKeysGauge.Set(float64(len(k.buckets)))
		k.mu.Unlock()
	}
	return removed
}

// Validate reports whether key is a known, currently-issued API key.
func (k *Keystore) Validate(key string) bool {
	found := false
	k.store.View(func(v fileShape) {
		for _, existing := range v.Keys {
			if existing.Key == key {
				found = true
				return
			}
		}
	})
	return found
}

// Stats reports every issued key's metadata, for admin listing.
func (k *Keystore) Stats() []APIKey {
	var out []APIKey
	k.store.View(func(v fileShape) {
		out = make([]APIKey, len(v.Keys))
		for i, existing := range v.Keys {
			out[i] = *existing
		}
	})
	return out
}

func (k *Keystore) rateLimitFor(key string) int {
	limit := 0
	k.store.View(func(v fileShape) {
		for _, existing := range v.Keys {
			if existing.Key == key {
				limit = existing.RateLimitRPM
				return
			}
		}
	})
	return limit
}

// CheckRateLimit reports whether key may make another request right now,
// without consuming a slot. It sums all buckets within the trailing minute
// against the key's configured per-minute limit. When denied, resetInSec is
// the number of seconds until the oldest bucket ages out of the window.
//
// This is a read-only probe, kept for callers that need to inspect a key's
// standing without consuming a slot; CheckAndConsume is what request
// handling uses, since check-then-separately-update leaves a gap two
// concurrent requests could both slip through.
func (k *Keystore) CheckRateLimit(ctx context.Context, key string) (allowed bool, resetInSec int, err error) {
	limit := k.rateLimitFor(key)
	if limit <= 0 {
		return true, 0, nil
	}

	now := time.Now()
	k.mu.Lock()
	defer k.mu.Unlock()

	buckets := k.purgeLocked(key, now)
	total := 0
	oldest := int64(0)
	for start, count := range buckets {
		total += count
		if oldest == 0 || start < oldest {
			oldest = start
		}
	}

	if total < limit {
		return true, 0, nil
	}
	return false, resetInSecLocked(now, oldest), nil
}

// UpdateRateLimit records one consumed request against key's current bucket.
func (k *Keystore) UpdateRateLimit(key string) {
	now := time.Now()
	bucketStart := now.Truncate(bucketWidth).Unix()

	k.mu.Lock()
	defer k.mu.Unlock()
	buckets := k.purgeLocked(key, now)
	buckets[bucketStart]++
	k.buckets[key] = buckets
}

// CheckAndConsume checks key's sliding-window limit and, if it allows
// another request, records that request in the same locked section the
// limit was evaluated in. This is the atomic counterpart to calling
// CheckRateLimit followed by UpdateRateLimit: those are two separate lock
// acquisitions, so under a cap=1 limit two concurrent callers could both
// observe "allowed" before either recorded its request. limit and remaining
// are also returned here so callers can surface X-RateLimit-Limit /
// X-RateLimit-Remaining without a second pass over the bucket set.
func (k *Keystore) CheckAndConsume(ctx context.Context, key string) (allowed bool, limit, remaining, resetInSec int, err error) {
	limit = k.rateLimitFor(key)
	if limit <= 0 {
		return true, 0, 0, 0, nil
	}

	now := time.Now()
	k.mu.Lock()
	defer k.mu.Unlock()

	buckets := k.purgeLocked(key, now)
	total := 0
	oldest := int64(0)
	for start, count := range buckets {
		total += count
		if oldest == 0 || start < oldest {
			oldest = start
		}
	}

	if total >= limit {
		return false, limit, 0, resetInSecLocked(now, oldest), nil
	}

	bucketStart := now.Truncate(bucketWidth).Unix()
	buckets[bucketStart]++
	k.buckets[key] = buckets
	monitoring.RateLimitKeysGauge.Set(float64(len(k.buckets)))

	remaining = limit - (total + 1)
	if remaining < 0 {
		remaining = 0
	}
	return true, limit, remaining, 0, nil
}

// resetInSecLocked computes the seconds until the oldest recorded bucket
// ages out of the trailing-minute window. oldest is 0 when no bucket was
// recorded, which should not happen alongside a full window but is guarded
// against rather than assumed impossible.
func resetInSecLocked(now time.Time, oldest int64) int {
	if oldest == 0 {
		return int(bucketWidth.Seconds())
	}
	windowEnd := time.Unix(oldest, 0).Add(time.Minute)
	resetInSec := int(windowEnd.Sub(now).Seconds())
	if resetInSec < 0 {
		resetInSec = 0
	}
	return resetInSec
}

// purgeLocked drops buckets older than the trailing minute and must be
// called with k.mu held.
func (k *Keystore) purgeLocked(key string, now time.Time) map[int64]int {
	buckets := k.buckets[key]
	if buckets == nil {
		buckets = make(map[int64]int)
		k.buckets[key] = buckets
		return buckets
	}
	cutoff := now.Add(-time.Minute).Unix()
	for start := range buckets {
		if start < cutoff {
			delete(buckets, start)
		}
	}
	return buckets
}
