package pool

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gcli2api-go/internal/oauth"
)

type fakeRefresher struct {
	forbidID string
	calls    int
}

func (f *fakeRefresher) RefreshToken(ctx context.Context, creds *oauth.Credentials) error {
	f.calls++
	if creds.RefreshToken == f.forbidID {
		return &oauth.ForbiddenError{StatusCode: 403}
	}
	creds.AccessToken = "refreshed-" + creds.RefreshToken
	creds.ExpiresAt = time.Now().Add(time.Hour)
	return nil
}

func newTestPool(t *testing.T, refresher Refresher) *Pool {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "accounts.json"))
	require.NoError(t, err)
	return New(store, refresher)
}

// transientThenOKRefresher fails with a plain (non-forbidden) error for one
// specific refresh token and succeeds for everything else, simulating a
// transient upstream hiccup that shouldn't disable the credential it hit.
type transientThenOKRefresher struct {
	failFor string
}

func (f *transientThenOKRefresher) RefreshToken(ctx context.Context, creds *oauth.Credentials) error {
	if creds.RefreshToken == f.failFor {
		return errors.New("transient refresh failure")
	}
	creds.AccessToken = "refreshed-" + creds.RefreshToken
	creds.ExpiresAt = time.Now().Add(time.Hour)
	return nil
}

func freshCredential(refreshToken string) oauth.Credentials {
	return oauth.Credentials{RefreshToken: refreshToken, AccessToken: "tok-" + refreshToken, ExpiresAt: time.Now().Add(time.Hour)}
}

func TestGetTokenRotatesFairlyOverThreeCredentials(t *testing.T) {
	p := newTestPool(t, &fakeRefresher{})
	p.Add("c1", "", freshCredential("r1"))
	p.Add("c2", "", freshCredential("r2"))
	p.Add("c3", "", freshCredential("r3"))

	seen := map[string]int{}
	for i := 0; i < 9; i++ {
		id, _, _, err := p.GetToken(context.Background())
		require.NoError(t, err)
		seen[id]++
	}
	assert.Equal(t, 3, seen["c1"])
	assert.Equal(t, 3, seen["c2"])
	assert.Equal(t, 3, seen["c3"])
}

func TestGetTokenRefreshesExpiredCredential(t *testing.T) {
	refresher := &fakeRefresher{}
	p := newTestPool(t, refresher)
	expired := oauth.Credentials{RefreshToken: "r1"}
	p.Add("c1", "", expired)

	_, token, _, err := p.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed-r1", token)
	assert.Equal(t, 1, refresher.calls)
}

func TestOnUpstreamForbiddenDisablesAndSkipsCredential(t *testing.T) {
	p := newTestPool(t, &fakeRefresher{})
	p.Add("c1", "", freshCredential("r1"))
	p.Add("c2", "", freshCredential("r2"))

	p.OnUpstreamForbidden("c1", "saw 403")

	for i := 0; i < 4; i++ {
		id, _, _, err := p.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "c2", id, "only c2 should remain in rotation")
	}

	snapshot := p.UsageSnapshot()
	require.Len(t, snapshot, 2)
	for _, c := range snapshot {
		if c.ID == "c1" {
			assert.False(t, c.Enabled)
			assert.False(t, c.DisabledAt.IsZero())
		}
	}
}

func TestGetTokenReturnsErrWhenNoCredentials(t *testing.T) {
	p := newTestPool(t, &fakeRefresher{})
	_, _, _, err := p.GetToken(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestGetTokenRetriesNextCredentialAfterForbiddenRefresh(t *testing.T) {
	refresher := &fakeRefresher{forbidID: "r1"}
	p := newTestPool(t, refresher)
	p.Add("c1", "", oauth.Credentials{RefreshToken: "r1"})
	p.Add("c2", "", freshCredential("r2"))

	id, _, _, err := p.GetToken(context.Background())
	require.NoError(t, err, "a single call should transparently retry past the forbidden credential")
	assert.Equal(t, "c2", id)

	snapshot := p.UsageSnapshot()
	require.Len(t, snapshot, 2)
	for _, c := range snapshot {
		if c.ID == "c1" {
			assert.False(t, c.Enabled, "c1 should be disabled after its 403")
		}
	}
}

func TestGetTokenReturnsErrorWhenAllCredentialsFailRefresh(t *testing.T) {
	refresher := &fakeRefresher{forbidID: "all"}
	p := newTestPool(t, refresher)
	p.Add("c1", "", oauth.Credentials{RefreshToken: "all"})
	p.Add("c2", "", oauth.Credentials{RefreshToken: "all"})

	_, _, _, err := p.GetToken(context.Background())
	require.Error(t, err)

	snapshot := p.UsageSnapshot()
	for _, c := range snapshot {
		assert.False(t, c.Enabled)
	}
}

func TestGetTokenRetriesPastTransientRefreshError(t *testing.T) {
	refresher := &transientThenOKRefresher{failFor: "r1"}
	p := newTestPool(t, refresher)
	p.Add("c1", "", oauth.Credentials{RefreshToken: "r1"})
	p.Add("c2", "", oauth.Credentials{RefreshToken: "r2"})

	id, _, _, err := p.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c2", id)

	snapshot := p.UsageSnapshot()
	for _, c := range snapshot {
		if c.ID == "c1" {
			assert.True(t, c.Enabled, "a transient refresh failure must not disable the credential")
		}
	}
}
