package pool

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchFilePicksUpExternalEdit(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/accounts.json"

	store, err := OpenStore(path)
	require.NoError(t, err)
	p := New(store, &fakeRefresher{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.WatchFile(ctx, path, 20*time.Millisecond))

	// Simulate an external process (e.g. an admin surface) editing the file
	// directly on disk.
	external, err := OpenStore(path)
	require.NoError(t, err)
	external.Update(func(v *fileShape) {
		v.Credentials = append(v.Credentials, &Credential{ID: "ext-1", Enabled: true})
	})
	require.NoError(t, external.Flush())

	require.Eventually(t, func() bool {
		return len(p.UsageSnapshot()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "ext-1", p.UsageSnapshot()[0].ID)
}
