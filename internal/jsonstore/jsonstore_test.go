package jsonstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Count int      `json:"count"`
	Names []string `json:"names"`
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	f, err := Open[sample](filepath.Join(dir, "sub", "sample.json"))
	require.NoError(t, err)

	var got sample
	f.View(func(v sample) { got = v })
	assert.Equal(t, 0, got.Count)
}

func TestUpdateAndFlushPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.json")
	f, err := Open[sample](path)
	require.NoError(t, err)

	f.Update(func(v *sample) {
		v.Count = 3
		v.Names = append(v.Names, "a", "b")
	})
	require.NoError(t, f.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk sample
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, 3, onDisk.Count)
	assert.Equal(t, []string{"a", "b"}, onDisk.Names)

	// No temp file should remain.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFlushIsNoopWhenNotDirty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.json")
	f, err := Open[sample](path)
	require.NoError(t, err)

	require.NoError(t, f.Flush())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "flush with no updates should not create the file")
}

func TestReopenLoadsPersistedValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.json")
	f, err := Open[sample](path)
	require.NoError(t, err)
	f.Update(func(v *sample) { v.Count = 42 })
	require.NoError(t, f.Flush())

	f2, err := Open[sample](path)
	require.NoError(t, err)
	var got sample
	f2.View(func(v sample) { got = v })
	assert.Equal(t, 42, got.Count)
}
