// Package pool manages the rotating set of OAuth credentials used to call
// the upstream backend. Unlike a health-scored/auto-banned credential
// system, rotation here is a flat round-robin over the enabled subsequence:
// a credential is either enabled (eligible for rotation) or permanently
// disabled after an upstream 403, with no intermediate scoring state.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"gcli2api-go/internal/jsonstore"
	"gcli2api-go/internal/monitoring"
	"gcli2api-go/internal/oauth"
)

// Credential is a single pooled OAuth credential plus bookkeeping the pool
// needs for rotation and reporting.
type Credential struct {
	ID          string    `json:"id"`
	Label       string    `json:"label,omitempty"`
	Enabled     bool      `json:"enabled"`
	Creds       oauth.Credentials `json:"credentials"`
	UsageCount  int64     `json:"usage_count"`
	LastUsedAt  time.Time `json:"last_used_at,omitempty"`
	DisabledAt  time.Time `json:"disabled_at,omitempty"`
	DisableNote string    `json:"disable_note,omitempty"`
}

type fileShape struct {
	Credentials []*Credential `json:"credentials"`
}

// Refresher refreshes a credential's access token. Satisfied by
// *oauth.Manager; an interface here keeps the pool independently testable.
type Refresher interface {
	RefreshToken(ctx context.Context, creds *oauth.Credentials) error
}

// Pool holds the rotating set of credentials, round-robining over the
// enabled subsequence and persisting state through jsonstore.
type Pool struct {
	mu       sync.Mutex
	store    *jsonstore.File[fileShape]
	refresher Refresher
	cursor   int
}

// New builds a Pool over a store opened with OpenStore.
func New(store *jsonstore.File[fileShape], refresher Refresher) *Pool {
	return &Pool{store: store, refresher: refresher}
}

// OpenStore opens the accounts.json file at path for use with New.
func OpenStore(path string) (*jsonstore.File[fileShape], error) {
	return jsonstore.Open[fileShape](path)
}

// Add appends a new credential to the pool and flushes it to disk.
func (p *Pool) Add(id, label string, creds oauth.Credentials) {
	p.store.Update(func(v *fileShape) {
		v.Credentials = append(v.Credentials, &Credential{
			ID: id, Label: label, Enabled: true, Creds: creds,
		})
	})
	p.store.FlushLogged()
	p.updateCredentialGauges()
}

// BulkAdd appends many credentials in one locked pass.
func (p *Pool) BulkAdd(entries []*Credential) {
	p.store.Update(func(v *fileShape) {
		v.Credentials = append(v.Credentials, entries...)
	})
	p.store.FlushLogged()
	p.updateCredentialGauges()
}

// Delete removes a credential by ID.
func (p *Pool) Delete(id string) bool {
	removed := false
	p.store.Update(func(v *fileShape) {
		out := v.Credentials[:0]
		for _, c := range v.Credentials {
			if c.ID == id {
				removed = true
				continue
			}
			out = append(out, c)
		}
		v.Credentials = out
	})
	if removed {
		p.store.FlushLogged()
		p.updateCredentialGauges()
	}
	return removed
}

// Toggle enables or disables a credential by ID.
func (p *Pool) Toggle(id string, enabled bool) bool {
	found := false
	p.store.Update(func(v *fileShape) {
		for _, c := range v.Credentials {
			if c.ID == id {
				c.Enabled = enabled
				if enabled {
					c.DisabledAt = time.Time{}
					c.DisableNote = ""
				}
				found = true
				return
			}
		}
	})
	if found {
		p.store.FlushLogged()
		p.updateCredentialGauges()
	}
	return found
}

// UsageSnapshot returns a shallow copy of every credential's bookkeeping
// fields, for admin reporting.
func (p *Pool) UsageSnapshot() []Credential {
	var out []Credential
	p.store.View(func(v fileShape) {
		out = make([]Credential, len(v.Credentials))
		for i, c := range v.Credentials {
			out[i] = *c
		}
	})
	return out
}

// ErrNoCredentials is returned when the pool has no enabled credentials.
var ErrNoCredentials = fmt.Errorf("no enabled credentials available")

// GetToken selects the next credential in round-robin order over the
// enabled subsequence, refreshing it first if its access token is expired
// (or within the 5-minute skew of expiring). The refresh HTTP call happens
// outside the pool's mutex; only the resulting mutation is committed under
// lock, so one slow refresh cannot stall unrelated selections.
//
// A refresh failure doesn't fail the call outright: GetToken retries with
// the next enabled credential, up to once per credential currently in the
// rotation, so a single forbidden or transiently-failing credential doesn't
// surface to the caller so long as another credential can serve the
// request. A 403 permanently disables the credential it came from (via
// OnUpstreamForbidden) before moving on; any other refresh error leaves the
// credential enabled and simply tries the next one, since it may recover on
// a later call.
func (p *Pool) GetToken(ctx context.Context) (credentialID, accessToken, projectID string, err error) {
	p.mu.Lock()
	_, _, total := p.pickLocked()
	p.mu.Unlock()
	if total == 0 {
		return "", "", "", ErrNoCredentials
	}

	var lastErr error
	for attempt := 0; attempt < total; attempt++ {
		p.mu.Lock()
		cred, idx, attemptTotal := p.pickLocked()
		p.mu.Unlock()
		if cred == nil {
			break
		}

		if cred.Creds.IsExpired() {
			if rerr := p.refresher.RefreshToken(ctx, &cred.Creds); rerr != nil {
				if fe, ok := rerr.(*oauth.ForbiddenError); ok {
					monitoring.CredentialRefreshesTotal.WithLabelValues(cred.ID, "forbidden").Inc()
					p.OnUpstreamForbidden(cred.ID, fmt.Sprintf("refresh forbidden: %v", fe))
					lastErr = fmt.Errorf("credential %s disabled during refresh: %w", cred.ID, fe)
					// OnUpstreamForbidden removed this credential from the
					// enabled subsequence; leaving the cursor at idx now
					// points at what used to be the next credential, since
					// everything after idx shifted down by one.
					continue
				}
				monitoring.CredentialRefreshesTotal.WithLabelValues(cred.ID, "error").Inc()
				monitoring.CredentialErrorsTotal.WithLabelValues(cred.ID, "refresh_failed").Inc()
				lastErr = fmt.Errorf("refresh credential %s: %w", cred.ID, rerr)
				p.mu.Lock()
				if attemptTotal > 0 {
					p.cursor = (idx + 1) % attemptTotal
				}
				p.mu.Unlock()
				continue
			}
			monitoring.CredentialRefreshesTotal.WithLabelValues(cred.ID, "ok").Inc()
		}

		p.mu.Lock()
		p.store.Update(func(v *fileShape) {
			for _, c := range v.Credentials {
				if c.ID == cred.ID {
					c.Creds = cred.Creds
					c.UsageCount++
					c.LastUsedAt = time.Now()
				}
			}
		})
		if attemptTotal > 0 {
			p.cursor = (idx + 1) % attemptTotal
		}
		p.mu.Unlock()
		p.store.FlushLogged()

		monitoring.CredentialRotationsTotal.WithLabelValues(cred.ID).Inc()
		return cred.ID, cred.Creds.AccessToken, cred.Creds.ProjectID, nil
	}

	if lastErr != nil {
		return "", "", "", lastErr
	}
	return "", "", "", ErrNoCredentials
}

// pickLocked returns a copy of the next enabled credential in rotation order
// plus its index within the enabled subsequence and the subsequence length.
func (p *Pool) pickLocked() (*Credential, int, int) {
	var enabled []*Credential
	p.store.View(func(v fileShape) {
		for _, c := range v.Credentials {
			if c.Enabled {
				cp := *c
				enabled = append(enabled, &cp)
			}
		}
	})
	if len(enabled) == 0 {
		return nil, 0, 0
	}
	idx := p.cursor % len(enabled)
	return enabled[idx], idx, len(enabled)
}

// OnUpstreamForbidden permanently disables a credential after the upstream
// backend rejects it with 403, which this pool treats as non-recoverable
// (unlike 429/5xx, which a caller should simply retry on the next rotation).
func (p *Pool) OnUpstreamForbidden(id, note string) {
	found := p.Toggle(id, false)
	if found {
		p.store.Update(func(v *fileShape) {
			for _, c := range v.Credentials {
				if c.ID == id {
					c.DisabledAt = time.Now()
					c.DisableNote = note
				}
			}
		})
		p.store.FlushLogged()
		monitoring.CredentialErrorsTotal.WithLabelValues(id, "forbidden").Inc()
		log.WithFields(log.Fields{"credential_id": id, "note": note}).Warn("credential disabled after upstream 403")
	}
}

// updateCredentialGauges recomputes the enabled/disabled credential gauges
// from the current store snapshot.
func (p *Pool) updateCredentialGauges() {
	var enabled, disabled int
	p.store.View(func(v fileShape) {
		for _, c := range v.Credentials {
			if c.Enabled {
				enabled++
			} else {
				disabled++
			}
		}
	})
	monitoring.ActiveCredentials.Set(float64(enabled))
	monitoring.DisabledCredentials.Set(float64(disabled))
}

// StartReloadLoop periodically re-reads the backing file from disk so that
// credentials added or toggled out-of-process (or via an admin surface in
// another instance) become visible without a restart.
func (p *Pool) StartReloadLoop(ctx context.Context, interval time.Duration, path string) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.reloadFrom(path)
			}
		}
	}()
}

// reloadFrom re-reads path from disk and replaces the in-memory snapshot.
func (p *Pool) reloadFrom(path string) {
	fresh, err := jsonstore.Open[fileShape](path)
	if err != nil {
		log.WithError(err).Warn("pool reload failed")
		return
	}
	var snapshot fileShape
	fresh.View(func(v fileShape) { snapshot = v })
	p.store.Update(func(v *fileShape) { *v = snapshot })
}
