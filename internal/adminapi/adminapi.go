// Package adminapi is the interface surface an admin HTTP/UI layer would
// sit on top of. Admin routes themselves are out of scope here: this
// package stops at the core boundary, exposing exactly the pool/keystore
// operations an admin surface would call, with the credential/key secrets
// sanitized out of every snapshot, and it does not itself register any
// route.
package adminapi

import (
	"gcli2api-go/internal/keystore"
	"gcli2api-go/internal/oauth"
	"gcli2api-go/internal/pool"
)

// CredentialView is a credential's admin-facing snapshot with its OAuth
// secrets and tokens stripped.
type CredentialView struct {
	ID          string `json:"id"`
	Label       string `json:"label,omitempty"`
	Enabled     bool   `json:"enabled"`
	ProjectID   string `json:"project_id,omitempty"`
	UsageCount  int64  `json:"usage_count"`
	DisableNote string `json:"disable_note,omitempty"`
}

// KeyView is an API key's admin-facing snapshot with the key value redacted
// to its trailing 4 characters.
type KeyView struct {
	KeySuffix    string `json:"key_suffix"`
	Label        string `json:"label,omitempty"`
	RateLimitRPM int    `json:"rate_limit_rpm"`
}

// AdminAPI wraps the pool and keystore with the narrow set of operations an
// admin surface needs, never exposing a raw *pool.Pool/*keystore.Keystore
// (and so never a raw oauth.Credentials or APIKey.Key) past this boundary.
type AdminAPI struct {
	pool *pool.Pool
	keys *keystore.Keystore
}

// New builds an AdminAPI over the gateway's running pool and keystore.
func New(p *pool.Pool, keys *keystore.Keystore) *AdminAPI {
	return &AdminAPI{pool: p, keys: keys}
}

// AddCredential registers a new OAuth credential into the pool, enabled by
// default, under the given id/label.
func (a *AdminAPI) AddCredential(id, label string, creds oauth.Credentials) {
	a.pool.Add(id, label, creds)
}

// RemoveCredential deletes a credential from the pool by id.
func (a *AdminAPI) RemoveCredential(id string) bool {
	return a.pool.Delete(id)
}

// SetCredentialEnabled toggles a credential's eligibility for rotation.
func (a *AdminAPI) SetCredentialEnabled(id string, enabled bool) bool {
	return a.pool.Toggle(id, enabled)
}

// ListCredentials returns every pooled credential's sanitized snapshot.
func (a *AdminAPI) ListCredentials() []CredentialView {
	snapshot := a.pool.UsageSnapshot()
	views := make([]CredentialView, len(snapshot))
	for i, c := range snapshot {
		views[i] = CredentialView{
			ID: c.ID, Label: c.Label, Enabled: c.Enabled,
			ProjectID: c.Creds.ProjectID, UsageCount: c.UsageCount, DisableNote: c.DisableNote,
		}
	}
	return views
}

// IssueKey mints a new API key with the given label and per-minute rate
// limit (0 means unlimited).
func (a *AdminAPI) IssueKey(label string, rateLimitRPM int) (*keystore.APIKey, error) {
	return a.keys.Create(label, rateLimitRPM)
}

// RevokeKey deletes an issued API key.
func (a *AdminAPI) RevokeKey(key string) bool {
	return a.keys.Delete(key)
}

// ListKeys returns every issued key's sanitized snapshot (no raw key value).
func (a *AdminAPI) ListKeys() []KeyView {
	stats := a.keys.Stats()
	views := make([]KeyView, len(stats))
	for i, k := range stats {
		views[i] = KeyView{KeySuffix: suffix(k.Key, 4), Label: k.Label, RateLimitRPM: k.RateLimitRPM}
	}
	return views
}

func suffix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
