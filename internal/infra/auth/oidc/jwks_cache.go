package oidc

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"
)

const (
	defaultJWKSCacheTTL      = 5 * time.Minute
	defaultJWKSMaxStale      = 15 * time.Minute
	defaultJWKSFetchTimeout  = 5 * time.Second
	defaultJWKSRetryAttempts = 3
	defaultJWKSRetryBase     = 200 * time.Millisecond
	defaultJWKSRetryMax      = 2 * time.Second
	defaultJWKSMissInterval  = 10 * time.Second
	maxJWKSBodyBytes         = 1 << 20
)

var ErrKeyNotFound = errors.New("jwks key not found")

type keyState int

const (
	keyMissing keyState = iota
	keyFresh
	keyStale
)

// SnapshotStore shares the raw key set document between instances. Load
// returns nil with no error when nothing is stored.
type SnapshotStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, document []byte, ttl time.Duration) error
}

type jwksCache struct {
	url          string
	httpClient   *http.Client
	ttl          time.Duration
	maxStale     time.Duration
	fetchTimeout time.Duration
	retryBase    time.Duration
	retryMax     time.Duration
	missInterval time.Duration
	now          func() time.Time
	snapshots    SnapshotStore
	logger       *slog.Logger

	mu         sync.RWMutex
	keys        map[string]*rsa.PublicKey
	expiresAt   time.Time
	staleUntil  time.Time
	refreshedAt time.Time

	refreshMu sync.Mutex
	refreshCh chan struct{}
	lastErr   error
}

type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newJWKSCache(url string, httpClient *http.Client) *jwksCache {
	return &jwksCache{
		url:          url,
		httpClient:   httpClient,
		ttl:          defaultJWKSCacheTTL,
		maxStale:     defaultJWKSMaxStale,
		fetchTimeout: defaultJWKSFetchTimeout,
		retryBase:    defaultJWKSRetryBase,
		retryMax:     defaultJWKSRetryMax,
		missInterval: defaultJWKSMissInterval,
		now:          time.Now,
		logger:       slog.Default(),
		keys:         map[string]*rsa.PublicKey{},
	}
}

// setTTL with a non-positive ttl disables caching; every lookup refetches.
func (c *jwksCache) setTTL(ttl, maxStale time.Duration) {
	if ttl <= 0 {
		c.ttl = 0
		c.maxStale = 0
		return
	}
	c.ttl = ttl
	if maxStale < 0 {
		maxStale = 0
	}
	c.maxStale = maxStale
}

// getKey serves fresh keys from memory. A stale key is only used when a
// synchronous refresh fails, so a key the provider has dropped stops
// verifying at the next refresh. Unknown kids refetch at most once per
// missInterval while the cached set is fresh.
func (c *jwksCache) getKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, ErrKeyNotFound
	}
	now := c.now()
	cached, state := c.lookup(kid, now)
	switch state {
	case keyFresh:
		return cached, nil
	case keyMissing:
		if c.recentlyRefreshed(now) {
			return nil, ErrKeyNotFound
		}
	}
	for attempt := 0; attempt < 2; attempt++ {
		leader, err := c.refresh(ctx, kid)
		if err != nil {
			if state == keyStale {
				c.logger.Warn("jwks refresh failed, serving stale key", "error", err)
				return cached, nil
			}
			return nil, err
		}
		if key := c.peek(kid); key != nil {
			return key, nil
		}
		// A follower waited on a refresh started for a different kid.
		if leader {
			break
		}
	}
	return nil, ErrKeyNotFound
}

func (c *jwksCache) lookup(kid string, now time.Time) (*rsa.PublicKey, keyState) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[kid]
	if !ok {
		return nil, keyMissing
	}
	if now.Before(c.expiresAt) {
		return key, keyFresh
	}
	if !c.staleUntil.IsZero() && now.Before(c.staleUntil) {
		return key, keyStale
	}
	return nil, keyMissing
}

func (c *jwksCache) peek(kid string) *rsa.PublicKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys[kid]
}

func (c *jwksCache) recentlyRefreshed(now time.Time) bool {
	if c.missInterval <= 0 {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys) > 0 && now.Before(c.expiresAt) && now.Sub(c.refreshedAt) < c.missInterval
}

func (c *jwksCache) refresh(ctx context.Context, kid string) (bool, error) {
	ch, leader := c.beginRefresh()
	if !leader {
		return false, c.waitRefresh(ctx, ch)
	}
	// Another leader may have refreshed between our lookup and here.
	now := c.now()
	if _, state := c.lookup(kid, now); state == keyFresh || (state == keyMissing && c.recentlyRefreshed(now)) {
		c.finishRefresh(nil, ch)
		return true, nil
	}

	err := c.doRefresh(ctx, kid)
	c.finishRefresh(err, ch)
	return true, err
}

func (c *jwksCache) beginRefresh() (chan struct{}, bool) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if c.refreshCh != nil {
		return c.refreshCh, false
	}
	ch := make(chan struct{})
	c.refreshCh = ch
	return ch, true
}

func (c *jwksCache) waitRefresh(ctx context.Context, ch chan struct{}) error {
	select {
	case <-ch:
		c.refreshMu.Lock()
		defer c.refreshMu.Unlock()
		return c.lastErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *jwksCache) finishRefresh(err error, ch chan struct{}) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	c.lastErr = err
	close(ch)
	c.refreshCh = nil
}

func (c *jwksCache) doRefresh(ctx context.Context, kid string) error {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	if keys, ok := c.loadSnapshot(ctx, kid); ok {
		c.install(keys)
		return nil
	}

	document, keys, err := c.fetchWithRetry(ctx)
	if err != nil {
		return err
	}
	c.install(keys)
	c.saveSnapshot(ctx, document)
	return nil
}

func (c *jwksCache) install(keys map[string]*rsa.PublicKey) {
	now := c.now()
	c.mu.Lock()
	c.keys = keys
	c.refreshedAt = now
	c.expiresAt = now.Add(c.ttl)
	c.staleUntil = c.expiresAt.Add(c.maxStale)
	c.mu.Unlock()
}

// loadSnapshot only adopts a shared document that already knows kid, so a
// rotated key always reaches the upstream provider.
func (c *jwksCache) loadSnapshot(ctx context.Context, kid string) (map[string]*rsa.PublicKey, bool) {
	if c.snapshots == nil || c.ttl <= 0 {
		return nil, false
	}
	document, err := c.snapshots.Load(ctx)
	if err != nil {
		c.logger.Warn("jwks snapshot load failed", "error", err)
		return nil, false
	}
	if document == nil {
		return nil, false
	}
	keys, err := parseJWKS(document)
	if err != nil {
		c.logger.Warn("jwks snapshot discarded", "error", err)
		return nil, false
	}
	if _, ok := keys[kid]; !ok {
		return nil, false
	}
	return keys, true
}

func (c *jwksCache) saveSnapshot(ctx context.Context, document []byte) {
	if c.snapshots == nil || c.ttl <= 0 {
		return
	}
	if err := c.snapshots.Save(ctx, document, c.ttl); err != nil {
		c.logger.Warn("jwks snapshot save failed", "error", err)
	}
}

func (c *jwksCache) fetchWithRetry(ctx context.Context) ([]byte, map[string]*rsa.PublicKey, error) {
	delay := c.retryBase
	var lastErr error
	for attempt := 0; attempt < defaultJWKSRetryAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, nil, err
			}
			delay *= 2
			if delay > c.retryMax {
				delay = c.retryMax
			}
		}
		document, keys, err := c.fetchOnce(ctx)
		if err == nil {
			return document, keys, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
	}
	return nil, nil, lastErr
}

func (c *jwksCache) fetchOnce(ctx context.Context) ([]byte, map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("jwks fetch failed: status %d", resp.StatusCode)
	}
	document, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBodyBytes))
	if err != nil {
		return nil, nil, err
	}
	keys, err := parseJWKS(document)
	if err != nil {
		return nil, nil, err
	}
	return document, keys, nil
}

func parseJWKS(document []byte) (map[string]*rsa.PublicKey, error) {
	var payload jwksResponse
	if err := json.NewDecoder(bytes.NewReader(document)).Decode(&payload); err != nil {
		return nil, err
	}
	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, key := range payload.Keys {
		if key.Kty != "RSA" || key.Kid == "" {
			continue
		}
		if key.Use != "" && key.Use != "sig" {
			continue
		}
		pub, err := jwkToRSAPublicKey(key)
		if err != nil {
			continue
		}
		keys[key.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks contains no usable keys")
	}
	return keys, nil
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jwkToRSAPublicKey(key jwkKey) (*rsa.PublicKey, error) {
	if key.N == "" || key.E == "" {
		return nil, errors.New("missing rsa params")
	}
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes).Int64()
	if e <= 0 || e > int64(^uint32(0)) {
		return nil, errors.New("invalid rsa exponent")
	}
	return &rsa.PublicKey{
		N: n,
		E: int(e),
	}, nil
}
