package patch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func decode[T any](t *testing.T, jsonText string) T {
	t.Helper()
	var raw any
	require.NoError(t, json.Unmarshal([]byte(jsonText), &raw))
	var out T
	require.NoError(t, Convert(raw, &out))
	return out
}

func TestFieldApply(t *testing.T) {
	var unset Field[string]
	require.False(t, unset.IsSet())
	require.Equal(t, "base", unset.Apply("base"))

	set := Set("override")
	require.True(t, set.IsSet())
	require.Equal(t, "override", set.Apply("base"))
}

func TestVecPatchReplace(t *testing.T) {
	p := decode[VecPatch[string]](t, `["a","b","c"]`)
	require.Equal(t, []string{"a", "b", "c"}, p.Apply([]string{"x"}))
}

func TestVecPatchSetInsertAppend(t *testing.T) {
	// base: [a, b, c] ; set index 1 to "B" ; append "d"
	p := decode[VecPatch[string]](t, `{"1":"B","+":["d"]}`)
	got := p.Apply([]string{"a", "b", "c"})
	require.Equal(t, []string{"a", "B", "c", "d"}, got)
}

func TestVecPatchInsertBeforeAfter(t *testing.T) {
	p := decode[VecPatch[string]](t, `{"+0":["before"],"0+":["after"]}`)
	got := p.Apply([]string{"a", "b"})
	require.Equal(t, []string{"before", "a", "after", "b"}, got)
}

func TestVecPatchRejectsMixedUnderscoreKey(t *testing.T) {
	var p VecPatch[string]
	var raw any
	require.NoError(t, json.Unmarshal([]byte(`{"_":["x"],"+":["y"]}`), &raw))
	require.Error(t, p.UnmarshalAny(raw))
}

func TestHashMapPatchSetAndDelete(t *testing.T) {
	p := decode[HashMapPatch[string, string]](t, `{"a":"1","b":null}`)
	base := map[string]string{"b": "old", "c": "keep"}
	got := p.Apply(base)
	require.Equal(t, map[string]string{"a": "1", "c": "keep"}, got)
}

func TestHashMapDeepPatchMerge(t *testing.T) {
	p := decode[HashMapDeepPatch[string, int, int]](t, `{"a":5,"b":null}`)
	base := map[string]int{"a": 1, "b": 2, "c": 3}
	got := p.Apply(base, func(base, patch int) int { return base + patch })
	require.Equal(t, map[string]int{"a": 6, "c": 3}, got)
}

func TestVecDeepPatchMergeAtIndex(t *testing.T) {
	p := decode[VecDeepPatch[int, int]](t, `{"1<":10,"+":[99]}`)
	got := p.Apply([]int{1, 2, 3}, func(base, patch int) int { return base + patch })
	require.Equal(t, []int{1, 12, 3, 99}, got)
}

func TestNestedMapMerge(t *testing.T) {
	base := NestedMap{"com": map[string]any{"example": map[string]any{"foo": "bar"}}}
	overlay := decode[NestedMap](t, `{"com":{"example":{"baz":"qux"}}}`)
	merged := overlay.Merge(base)

	var got []string
	merged.Flatten(".", func(path, value string) {
		got = append(got, path+"="+value)
	})
	require.ElementsMatch(t, []string{"com.example.foo=bar", "com.example.baz=qux"}, got)
}

func TestNestedMapMergeDeletesNull(t *testing.T) {
	base := NestedMap{"a": "1", "b": "2"}
	overlay := decode[NestedMap](t, `{"b":null}`)
	merged := overlay.Merge(base)
	require.Equal(t, NestedMap{"a": "1"}, merged)
}
