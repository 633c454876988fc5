package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/skilllite/internal/skill"
)

// DefaultScanTTL bounds how long an unconfirmed scan stays valid.
const DefaultScanTTL = 300 * time.Second

// Scan cache errors surfaced to RPC callers.
var (
	ErrScanNotFound = errors.New("invalid or expired scan_id")
	ErrCodeChanged  = errors.New("code has changed since the scan")
)

// ScanCacheEntry records one completed static scan awaiting confirmation.
type ScanCacheEntry struct {
	ScanID    string
	CodeHash  string
	Language  skill.Language
	Code      string
	Result    *ScanResult
	CreatedAt time.Time
}

// ScanCache holds pending scan results for the two-phase scan/confirm
// protocol. It is process-local, guarded by a mutex, and entries are
// consumed one-time on confirmed execution to prevent replay.
type ScanCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*ScanCacheEntry
	now     func() time.Time
}

// NewScanCache builds a cache with the given TTL (DefaultScanTTL when 0).
func NewScanCache(ttl time.Duration) *ScanCache {
	if ttl <= 0 {
		ttl = DefaultScanTTL
	}
	return &ScanCache{
		ttl:     ttl,
		entries: make(map[string]*ScanCacheEntry),
		now:     time.Now,
	}
}

// CodeHash fingerprints a code snippet for swap-after-scan detection.
func CodeHash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Put stores a scan result and returns its scan id.
func (c *ScanCache) Put(code string, lang skill.Language, result *ScanResult) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked()

	id := uuid.NewString()
	c.entries[id] = &ScanCacheEntry{
		ScanID:    id,
		CodeHash:  CodeHash(code),
		Language:  lang,
		Code:      code,
		Result:    result,
		CreatedAt: c.now(),
	}
	return id
}

// Consume validates and removes a pending entry. The entry must exist, must
// not be expired, and its code hash must match the current input; a
// successful consume removes it so the scan id cannot be replayed.
func (c *ScanCache) Consume(scanID, code string) (*ScanCacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked()

	entry, ok := c.entries[scanID]
	if !ok {
		return nil, ErrScanNotFound
	}
	if entry.CodeHash != CodeHash(code) {
		return nil, ErrCodeChanged
	}
	delete(c.entries, scanID)
	return entry, nil
}

// Len reports the number of live entries.
func (c *ScanCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked()
	return len(c.entries)
}

func (c *ScanCache) evictExpiredLocked() {
	cutoff := c.now().Add(-c.ttl)
	for id, e := range c.entries {
		if e.CreatedAt.Before(cutoff) {
			delete(c.entries, id)
		}
	}
}
