package dofigen

import (
	"context"
	"testing"

	"github.com/dofigen/dofigen/dofigentest"
	"github.com/stretchr/testify/require"
)

func TestLoaderFoldsSingleExtend(t *testing.T) {
	fs := dofigentest.NewMapFS(map[string][]byte{
		"base.yml": []byte(`
from: { fromImage: alpine:3.19 }
env:
  FOO: bar
`),
		"app.yml": []byte(`
extend: [base.yml]
workdir: /app
env:
  BAZ: qux
`),
	})
	store := &LockStore{Mode: LockModeUpdate, Lock: NewLockFile()}
	loader := &Loader{Store: store, FS: fs}

	desc, err := loader.Load(context.Background(), Resource{Path: "app.yml"})
	require.NoError(t, err)
	require.Equal(t, "/app", desc.Workdir)
	require.Equal(t, "bar", desc.Env["FOO"])
	require.Equal(t, "qux", desc.Env["BAZ"])
	require.Equal(t, "alpine:3.19", desc.From.Image.String())
}

func TestLoaderAppliesSequencePatchAgainstBase(t *testing.T) {
	fs := dofigentest.NewMapFS(map[string][]byte{
		"base.yml": []byte("fromImage: alpine\nrun: [a, b, c]\n"),
		"app.yml":  []byte("extend: [base.yml]\nrun: { \"1\": B, \"+\": [d] }\n"),
	})
	store := &LockStore{Mode: LockModeUnlocked, Lock: NewLockFile()}
	loader := &Loader{Store: store, FS: fs}

	desc, err := loader.Load(context.Background(), Resource{Path: "app.yml"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "B", "c", "d"}, desc.Run.Run)
}

func TestLoaderResolvesNestedExtendRelatively(t *testing.T) {
	fs := dofigentest.NewMapFS(map[string][]byte{
		"conf/base.yml":   []byte("extend: [common.yml]\nworkdir: /app\n"),
		"conf/common.yml": []byte("env:\n  FOO: bar\n"),
		"app.yml":         []byte("extend: [conf/base.yml]\n"),
	})
	store := &LockStore{Mode: LockModeUnlocked, Lock: NewLockFile()}
	loader := &Loader{Store: store, FS: fs}

	desc, err := loader.Load(context.Background(), Resource{Path: "app.yml"})
	require.NoError(t, err)
	require.Equal(t, "/app", desc.Workdir)
	require.Equal(t, "bar", desc.Env["FOO"])
}

func TestLoaderDetectsCycle(t *testing.T) {
	fs := dofigentest.NewMapFS(map[string][]byte{
		"a.yml": []byte("extend: [b.yml]\n"),
		"b.yml": []byte("extend: [a.yml]\n"),
	})
	store := &LockStore{Mode: LockModeUpdate, Lock: NewLockFile()}
	loader := &Loader{Store: store, FS: fs}

	_, err := loader.Load(context.Background(), Resource{Path: "a.yml"})
	require.Error(t, err)
	var cyc *ExtendCycleError
	require.ErrorAs(t, err, &cyc)
}

func TestLoaderFetchesURLExtendsThroughLockStore(t *testing.T) {
	fetcher := dofigentest.NewMapFetcher(map[string][]byte{
		"https://example.com/base.yml": []byte("env:\n  FOO: bar\n"),
	})
	fs := dofigentest.NewMapFS(map[string][]byte{
		"app.yml": []byte("extend: [https://example.com/base.yml]\nworkdir: /app\n"),
	})
	store := &LockStore{Mode: LockModeUpdate, Lock: NewLockFile(), Fetcher: fetcher}
	loader := &Loader{Store: store, FS: fs}

	desc, err := loader.Load(context.Background(), Resource{Path: "app.yml"})
	require.NoError(t, err)
	require.Equal(t, "bar", desc.Env["FOO"])
	require.Contains(t, store.Lock.Resources, "https://example.com/base.yml")
}
