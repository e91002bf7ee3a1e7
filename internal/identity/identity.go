// Package identity synthesizes the client-side project/session identifiers
// the upstream protocol expects on every request envelope. These are not
// real cloud resource identifiers; Upstream only needs something
// project-ID-shaped and a negative session integer scoped per caller.
package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

const (
	// ProjectTTL bounds how long a synthesized project_id is reused for a
	// given API key before being regenerated.
	ProjectTTL = 12 * time.Hour
	// SessionTTL bounds how long a synthesized session_id is reused.
	SessionTTL = 1 * time.Hour
)

// adjectives and nouns back the project_id shape ^[a-z]+-[a-z]+-[a-z0-9]{5}$.
var (
	adjectives = []string{"amber", "quiet", "brisk", "lucid", "coral"}
	nouns      = []string{"otter", "comet", "cedar", "delta", "heron"}

	base36 = []byte("0123456789abcdefghijklmnopqrstuvwxyz")
)

// Entry is a single cached identity, independently expiring its two fields.
type Entry struct {
	ProjectID     string
	ProjectExpiry time.Time
	SessionID     string
	SessionExpiry time.Time
}

// Cache maps an API key to its synthesized project/session identity,
// regenerating each field independently once it expires.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// New returns an empty identity cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*Entry)}
}

// Get returns the project_id and session_id for apiKey, synthesizing or
// refreshing whichever field has expired (or was never set).
func (c *Cache) Get(apiKey string) (projectID, sessionID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	e, ok := c.entries[apiKey]
	if !ok {
		e = &Entry{}
		c.entries[apiKey] = e
	}

	if e.ProjectID == "" || now.After(e.ProjectExpiry) {
		p, err := newProjectID()
		if err != nil {
			return "", "", fmt.Errorf("synthesize project id: %w", err)
		}
		e.ProjectID = p
		e.ProjectExpiry = now.Add(ProjectTTL)
	}

	if e.SessionID == "" || now.After(e.SessionExpiry) {
		s, err := newSessionID()
		if err != nil {
			return "", "", fmt.Errorf("synthesize session id: %w", err)
		}
		e.SessionID = s
		e.SessionExpiry = now.Add(SessionTTL)
	}

	return e.ProjectID, e.SessionID, nil
}

// newProjectID builds a string of the form adjective-noun-xxxxx, matching
// ^[a-z]+-[a-z]+-[a-z0-9]{5}$.
func newProjectID() (string, error) {
	adj, err := pick(adjectives)
	if err != nil {
		return "", err
	}
	noun, err := pick(nouns)
	if err != nil {
		return "", err
	}
	suffix := make([]byte, 5)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base36))))
		if err != nil {
			return "", err
		}
		suffix[i] = base36[n.Int64()]
	}
	return fmt.Sprintf("%s-%s-%s", adj, noun, suffix), nil
}

func pick(words []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return "", err
	}
	return words[n.Int64()], nil
}

// sessionSpan is the width of the negative int64 range [-2^63+1, 0) the
// upstream protocol expects session IDs to be drawn from.
var sessionSpan = new(big.Int).SetUint64(1<<63 - 1)

// newSessionID returns the decimal text of a uniformly random integer in
// [-2^63+1, 0).
func newSessionID() (string, error) {
	n, err := rand.Int(rand.Reader, sessionSpan)
	if err != nil {
		return "", err
	}
	// n is in [0, 2^63-1); negate and shift so 0 maps to -1, matching the
	// half-open range the protocol requires (never exactly 0).
	val := -(n.Int64() + 1)
	return fmt.Sprintf("%d", val), nil
}
