package observable

import (
	"errors"
	"testing"

	wisperrors "github.com/conneroisu/wisp/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	changes []Change
}

func (r *recorder) record(c Change) error {
	r.changes = append(r.changes, c)
	return nil
}

func (r *recorder) last(t *testing.T) Change {
	t.Helper()
	require.NotEmpty(t, r.changes)
	return r.changes[len(r.changes)-1]
}

func sampleData() map[string]any {
	return map[string]any{
		"title": "Todo",
		"profile": map[string]any{
			"name": "Ana",
			"age":  30,
		},
		"items": []any{"milk", "eggs"},
	}
}

func TestObserveRejectsLeaf(t *testing.T) {
	for _, target := range []any{nil, 42, "text", true} {
		_, err := Observe(target, nil)
		require.Error(t, err)
		assert.True(t, wisperrors.IsConfiguration(err))
		assert.True(t, wisperrors.HasErrorCode(err, wisperrors.ErrCodeNotComposite))
	}
}

func TestObserveNormalizesTypedContainers(t *testing.T) {
	v, err := Observe(map[string][]int{"n": {1, 2}}, nil)
	require.NoError(t, err)

	n, ok := v.Get("n").(*Value)
	require.True(t, ok)
	assert.Equal(t, KindList, n.Kind())
	assert.Equal(t, 2, n.Len())
	assert.Equal(t, 1, n.Index(0))
}

func TestGetReturnsChildWrappers(t *testing.T) {
	v, err := Observe(sampleData(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Todo", v.Get("title"))
	assert.Nil(t, v.Get("missing"))

	profile, ok := v.Get("profile").(*Value)
	require.True(t, ok)
	assert.Equal(t, []string{"profile"}, profile.Path())
	assert.Equal(t, KindMap, profile.Kind())
	assert.Equal(t, []string{"age", "name"}, profile.Keys())
}

func TestNestedWriteReportsFullPath(t *testing.T) {
	rec := &recorder{}
	v, err := Observe(sampleData(), rec.record)
	require.NoError(t, err)

	profile := v.Get("profile").(*Value)
	require.NoError(t, profile.Set("age", 31))

	c := rec.last(t)
	assert.Equal(t, []string{"profile", "age"}, c.Path)
	assert.Equal(t, "profile.age", c.Dotted())
	assert.Equal(t, 31, c.New)
	assert.Equal(t, 30, c.Old)

	got, ok := v.Lookup("profile", "age")
	require.True(t, ok)
	assert.Equal(t, 31, got)
}

func TestNewKeyReportsNilOld(t *testing.T) {
	rec := &recorder{}
	v, err := Observe(map[string]any{}, rec.record)
	require.NoError(t, err)

	require.NoError(t, v.Set("fresh", "value"))
	c := rec.last(t)
	assert.Equal(t, []string{"fresh"}, c.Path)
	assert.Nil(t, c.Old)
}

func TestListOperations(t *testing.T) {
	rec := &recorder{}
	v, err := Observe(sampleData(), rec.record)
	require.NoError(t, err)

	items := v.Get("items").(*Value)
	require.NoError(t, items.Append("bread"))
	assert.Equal(t, []string{"items", "2"}, rec.last(t).Path)
	assert.Equal(t, 3, items.Len())

	// A handle taken before the append still sees the grown list.
	again := v.Get("items").(*Value)
	assert.Equal(t, "bread", again.Index(2))

	require.NoError(t, items.Set("0", "oat milk"))
	assert.Equal(t, "milk", rec.last(t).Old)

	require.NoError(t, items.Delete("1"))
	c := rec.last(t)
	assert.Equal(t, []string{"items", "1"}, c.Path)
	assert.Nil(t, c.New)
	assert.Equal(t, "eggs", c.Old)
	assert.Equal(t, []any{"oat milk", "bread"}, items.Raw())

	err = items.Set("9", "x")
	assert.True(t, wisperrors.HasErrorCode(err, wisperrors.ErrCodeInvalidPath))
}

func TestSetAtLengthAppends(t *testing.T) {
	rec := &recorder{}
	v, err := Observe([]any{"a"}, rec.record)
	require.NoError(t, err)

	require.NoError(t, v.Set("1", "b"))
	assert.Equal(t, []any{"a", "b"}, v.Raw())
	assert.Len(t, rec.changes, 1)
}

func TestSetPath(t *testing.T) {
	rec := &recorder{}
	v, err := Observe(sampleData(), rec.record)
	require.NoError(t, err)

	require.NoError(t, v.SetPath("profile.name", "Bea"))
	assert.Equal(t, "profile.name", rec.last(t).Dotted())

	err = v.SetPath("nope.name", "x")
	assert.True(t, wisperrors.HasErrorCode(err, wisperrors.ErrCodeUnknownPath))

	err = v.SetPath("...", "x")
	assert.True(t, wisperrors.HasErrorCode(err, wisperrors.ErrCodeInvalidPath))
}

func TestDeleteMissingKeyIsSilent(t *testing.T) {
	rec := &recorder{}
	v, err := Observe(sampleData(), rec.record)
	require.NoError(t, err)

	require.NoError(t, v.Delete("ghost"))
	assert.Empty(t, rec.changes)
}

func TestCallbackErrorPropagates(t *testing.T) {
	boom := errors.New("render failed")
	v, err := Observe(sampleData(), func(Change) error { return boom })
	require.NoError(t, err)

	assert.ErrorIs(t, v.Set("title", "x"), boom)
	// The write itself still happened.
	assert.Equal(t, "x", v.Get("title"))
}

func TestStaleHandleReportsUnknownPath(t *testing.T) {
	v, err := Observe(sampleData(), nil)
	require.NoError(t, err)

	profile := v.Get("profile").(*Value)
	require.NoError(t, v.Set("profile", "gone"))

	err = profile.Set("age", 1)
	assert.True(t, wisperrors.HasErrorCode(err, wisperrors.ErrCodeUnknownPath))
	assert.Nil(t, profile.Raw())
}

func TestPathsEnumeration(t *testing.T) {
	data := map[string]any{
		"a": map[string]any{
			"b": 1,
			"c": map[string]any{"d": 2},
		},
	}

	assert.Equal(t, [][]string{
		{"a"},
		{"a", "b"},
		{"a", "c"},
		{"a", "c", "d"},
	}, Paths(data))

	assert.True(t, Includes(data, []string{"c", "d"}))
	assert.False(t, Includes(data, []string{"b", "d"}))
	assert.False(t, Includes(data, nil))

	assert.True(t, HasPath(data, []string{"a", "c", "d"}))
	assert.False(t, HasPath(data, []string{"c", "d"}))
	assert.False(t, HasPath(data, nil))
}

func TestPathsAcceptsWrapper(t *testing.T) {
	v, err := Observe(sampleData(), nil)
	require.NoError(t, err)

	assert.True(t, HasPath(v, []string{"items", "1"}))
	assert.Contains(t, Paths(v), []string{"profile", "name"})
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitPath(" a..b. "))
	assert.Empty(t, SplitPath(""))
}
