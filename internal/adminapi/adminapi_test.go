package adminapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gcli2api-go/internal/keystore"
	"gcli2api-go/internal/oauth"
	"gcli2api-go/internal/pool"
)

type stubRefresher struct{}

func (stubRefresher) RefreshToken(ctx context.Context, creds *oauth.Credentials) error {
	return nil
}

func newTestAdminAPI(t *testing.T) *AdminAPI {
	t.Helper()
	dir := t.TempDir()
	poolStore, err := pool.OpenStore(dir + "/accounts.json")
	require.NoError(t, err)
	p := pool.New(poolStore, stubRefresher{})

	keys, err := keystore.Open(dir + "/api_keys.json")
	require.NoError(t, err)

	return New(p, keys)
}

func TestListCredentialsSanitizesSecrets(t *testing.T) {
	a := newTestAdminAPI(t)
	a.AddCredential("cred-1", "primary", oauth.Credentials{
		ClientSecret: "super-secret", RefreshToken: "refresh-secret", ProjectID: "proj-a",
	})

	views := a.ListCredentials()
	require.Len(t, views, 1)
	assert.Equal(t, "cred-1", views[0].ID)
	assert.Equal(t, "proj-a", views[0].ProjectID)
	assert.True(t, views[0].Enabled)
}

func TestSetCredentialEnabledTogglesRotation(t *testing.T) {
	a := newTestAdminAPI(t)
	a.AddCredential("cred-1", "primary", oauth.Credentials{ProjectID: "proj-a"})

	require.True(t, a.SetCredentialEnabled("cred-1", false))
	views := a.ListCredentials()
	require.Len(t, views, 1)
	assert.False(t, views[0].Enabled)
}

func TestRemoveCredentialDeletesIt(t *testing.T) {
	a := newTestAdminAPI(t)
	a.AddCredential("cred-1", "primary", oauth.Credentials{ProjectID: "proj-a"})
	require.True(t, a.RemoveCredential("cred-1"))
	assert.Empty(t, a.ListCredentials())
}

func TestIssueAndListKeysRedactsValue(t *testing.T) {
	a := newTestAdminAPI(t)
	key, err := a.IssueKey("ci", 60)
	require.NoError(t, err)

	views := a.ListKeys()
	require.Len(t, views, 1)
	assert.Equal(t, "ci", views[0].Label)
	assert.Equal(t, 60, views[0].RateLimitRPM)
	assert.Len(t, views[0].KeySuffix, 4)
	assert.Equal(t, key.Key[len(key.Key)-4:], views[0].KeySuffix)
}

func TestRevokeKeyRemovesIt(t *testing.T) {
	a := newTestAdminAPI(t)
	key, err := a.IssueKey("ci", 0)
	require.NoError(t, err)
	require.True(t, a.RevokeKey(key.Key))
	assert.Empty(t, a.ListKeys())
}
