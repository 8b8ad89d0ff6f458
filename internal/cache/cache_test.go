package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetGet(t *testing.T) {
	s := openStore(t)

	value, err := s.Set("List/Note", []map[string]any{{"name": "n1"}})
	require.NoError(t, err)
	assert.NotNil(t, value)

	got, ok := s.Get("List/Note")
	require.True(t, ok)
	assert.Equal(t, []any{map[string]any{"name": "n1"}}, got)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestGetFallsBackToRawString(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.put("legacy", []byte("not json")))

	got, ok := s.Get("legacy")
	require.True(t, ok)
	assert.Equal(t, "not json", got)
}

func TestHasRequiresNonEmptyValue(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.put("empty", []byte{}))
	_, err := s.Set("zero", 0)
	require.NoError(t, err)

	assert.False(t, s.Has("empty"))
	assert.False(t, s.Has("absent"))
	assert.True(t, s.Has("zero"), "JSON 0 is a non-empty value")
}

func TestRemoveClearKeys(t *testing.T) {
	s := openStore(t)
	for _, k := range []string{"b", "a", "c"} {
		_, err := s.Set(k, k)
		require.NoError(t, err)
	}

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	require.NoError(t, s.Remove("b"))
	require.NoError(t, s.Remove("never-set"))

	items, err := s.Items()
	require.NoError(t, err)
	assert.Equal(t, []Item{{Key: "a", Value: "a"}, {Key: "c", Value: "c"}}, items)

	values, err := s.Values()
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "c"}, values)

	require.NoError(t, s.Clear())
	keys, err = s.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestBucketsAreIsolated(t *testing.T) {
	s := openStore(t)
	other, err := s.Bucket("other")
	require.NoError(t, err)

	_, err = other.Set("k", "v")
	require.NoError(t, err)
	assert.False(t, s.Has("k"))
	assert.True(t, other.Has("k"))
	assert.NoError(t, other.Close(), "shared stores do not close the database")
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Set("k", map[string]any{"n": 1})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"n": float64(1)}, got)
}

func TestSchemaCache(t *testing.T) {
	s := openStore(t)
	schemas := NewSchemaCache(s)

	_, err := schemas.Set("Note", map[string]any{"fields": []any{}})
	require.NoError(t, err)

	assert.True(t, schemas.Has("Note"))
	assert.True(t, schemas.Has("DocType/Note"))
	assert.True(t, s.Has("DocType/Note"))
	assert.False(t, s.Has("Note"))

	got, ok := schemas.Get("Note")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"fields": []any{}}, got)

	require.NoError(t, schemas.Remove("Note"))
	assert.False(t, schemas.Has("Note"))
}
