package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	rpcIdempotencyHeader     = "X-Escrow-Idempotency-Key"
	rpcIdempotencyDefaultTTL = 10 * time.Minute
	rpcIdempotencyMaxEntries = 1024
)

type rpcIdempotencyEntry struct {
	requestHash string
	result      any
	createdAt   time.Time
}

// rpcIdempotencyCache replays successful results for a repeated key.
// Concurrent requests with the same key share one execution.
type rpcIdempotencyCache struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]rpcIdempotencyEntry
	flights singleflight.Group
}

type idempotentOutcome struct {
	requestHash string
	result      any
	rpcErr      *rpcError
}

func newRPCIdempotencyCache(ttl time.Duration) *rpcIdempotencyCache {
	if ttl <= 0 {
		ttl = rpcIdempotencyDefaultTTL
	}
	return &rpcIdempotencyCache{
		ttl:     ttl,
		entries: make(map[string]rpcIdempotencyEntry),
	}
}

var errIdempotencyKeyReuse = &rpcError{Code: codeIdempotencyReuse, Message: "idempotency key was used with different params"}

// do runs call at most once per live key. An empty key bypasses the cache.
// Failures are not cached so that a retry can succeed.
func (c *rpcIdempotencyCache) do(cacheKey, requestHash string, call func() (any, *rpcError)) (any, *rpcError) {
	if c == nil || cacheKey == "" {
		return call()
	}
	if result, hit, conflict := c.get(cacheKey, requestHash, time.Now()); conflict {
		return nil, errIdempotencyKeyReuse
	} else if hit {
		return result, nil
	}

	v, _, _ := c.flights.Do(cacheKey, func() (any, error) {
		if result, hit, conflict := c.get(cacheKey, requestHash, time.Now()); hit || conflict {
			if conflict {
				return idempotentOutcome{requestHash: "", rpcErr: errIdempotencyKeyReuse}, nil
			}
			return idempotentOutcome{requestHash: requestHash, result: result}, nil
		}
		result, rpcErr := call()
		if rpcErr == nil {
			c.set(cacheKey, requestHash, result, time.Now())
		}
		return idempotentOutcome{requestHash: requestHash, result: result, rpcErr: rpcErr}, nil
	})
	out := v.(idempotentOutcome)
	if out.rpcErr != nil {
		return nil, out.rpcErr
	}
	if out.requestHash != requestHash {
		return nil, errIdempotencyKeyReuse
	}
	return out.result, nil
}

func (c *rpcIdempotencyCache) get(cacheKey, requestHash string, now time.Time) (any, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(now)
	entry, ok := c.entries[cacheKey]
	if !ok {
		return nil, false, false
	}
	if entry.requestHash != requestHash {
		return nil, false, true
	}
	return entry.result, true, false
}

func (c *rpcIdempotencyCache) set(cacheKey, requestHash string, result any, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(now)
	c.entries[cacheKey] = rpcIdempotencyEntry{
		requestHash: requestHash,
		result:      result,
		createdAt:   now,
	}
	if len(c.entries) <= rpcIdempotencyMaxEntries {
		return
	}
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.createdAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.createdAt
		}
	}
	delete(c.entries, oldestKey)
}

func (c *rpcIdempotencyCache) pruneLocked(now time.Time) {
	for key, entry := range c.entries {
		if now.Sub(entry.createdAt) > c.ttl {
			delete(c.entries, key)
		}
	}
}

func (c *rpcIdempotencyCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// rpcIdempotencyKey scopes keys to the caller's token so two frontends
// cannot replay each other's results.
func rpcIdempotencyKey(raw string, authToken string) string {
	key := strings.TrimSpace(raw)
	if key == "" {
		return ""
	}
	return fingerprintToken(authToken) + "|" + key
}

func rpcRequestHash(req rpcRequest) string {
	payload := struct {
		Method     string          `json:"method"`
		Params     json.RawMessage `json:"params"`
		APIVersion *int            `json:"api_version,omitempty"`
	}{
		Method:     req.Method,
		Params:     req.Params,
		APIVersion: req.APIVersion,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte(req.Method + "|" + string(req.Params))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func fingerprintToken(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
