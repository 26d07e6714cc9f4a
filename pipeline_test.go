package dofigen_test

import (
	"context"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"

	"github.com/dofigen/dofigen"
	"github.com/dofigen/dofigen/dofigentest"
	"github.com/dofigen/dofigen/emit"
)

// compile runs the full pipeline (load, resolve, emit) over an
// in-memory filesystem, the way the CLI does against the real one.
func compile(t *testing.T, files map[string]string, entry string) (string, string) {
	t.Helper()

	fsFiles := map[string][]byte{}
	for name, content := range files {
		fsFiles[name] = []byte(content)
	}
	store := &dofigen.LockStore{Mode: dofigen.LockModeUnlocked, Lock: dofigen.NewLockFile()}
	loader := &dofigen.Loader{Store: store, FS: dofigentest.NewMapFS(fsFiles)}

	ctx := context.Background()
	desc, err := loader.Load(ctx, dofigen.Resource{Path: entry})
	require.NoError(t, err)

	resolver := &dofigen.Resolver{Store: store}
	order, err := resolver.Resolve(ctx, desc)
	require.NoError(t, err)

	dockerfile, err := emit.Dockerfile(desc, order)
	require.NoError(t, err)
	ignore, err := emit.Dockerignore(desc)
	require.NoError(t, err)
	return dockerfile, ignore
}

func TestMinimalImage(t *testing.T) {
	dockerfile, ignore := compile(t, map[string]string{
		"dofigen.yml": "fromImage: alpine\n",
	}, "dofigen.yml")

	want := `# syntax=docker/dockerfile:1.11
# generated by dofigen v0.1.0; do not edit by hand

# runtime
FROM alpine
USER 1000
`
	require.Equal(t, want, dockerfile)
	require.Empty(t, ignore)
}

func TestBuilderAndCopy(t *testing.T) {
	dockerfile, _ := compile(t, map[string]string{
		"dofigen.yml": `
builders:
  b:
    fromImage: {path: rust, tag: "1.80"}
    workdir: /src
    run: cargo build --release
fromImage: {path: debian, tag: bookworm-slim}
copy:
  - {fromBuilder: b, paths: "/src/target/release/app", target: "/bin/app"}
entrypoint: "/bin/app"
`,
	}, "dofigen.yml")

	want := `# syntax=docker/dockerfile:1.11
# generated by dofigen v0.1.0; do not edit by hand

# b
FROM rust:1.80 AS b
WORKDIR /src
USER 1000
RUN cargo build --release

# runtime
FROM debian:bookworm-slim
USER 1000
COPY --link --from=b "/src/target/release/app" "/bin/app"
ENTRYPOINT ["/bin/app"]
`
	require.Equal(t, want, dockerfile)
}

func TestCacheMountSingleRunLine(t *testing.T) {
	dockerfile, _ := compile(t, map[string]string{
		"dofigen.yml": "fromImage: alpine\nrun: [\"npm ci\"]\ncache: [\"/root/.npm\"]\n",
	}, "dofigen.yml")
	require.Contains(t, dockerfile, "RUN --mount=type=cache,target=/root/.npm npm ci\n")
	require.Equal(t, 1, strings.Count(dockerfile, "RUN "))
}

func TestDeterministicOutput(t *testing.T) {
	files := map[string]string{
		"dofigen.yml": `
fromImage: alpine
env: {B: two, A: one, C: three}
label: {com.example.a: x, com.example.b: y}
arg: {Z: "26", M: "13"}
expose: [8080, "9090/udp"]
volume: [/data]
entrypoint: /bin/app
`,
	}
	first, firstIgnore := compile(t, files, "dofigen.yml")
	second, secondIgnore := compile(t, files, "dofigen.yml")
	require.Equal(t, first, second)
	require.Equal(t, firstIgnore, secondIgnore)
}

func TestEffectiveRoundTrip(t *testing.T) {
	files := map[string]string{
		"dofigen.yml": `
builders:
  deps:
    fromImage: golang:1.22
    workdir: /src
    run: go build ./...
fromImage: debian:bookworm-slim
env: {PORT: 8080}
copy:
  - {fromBuilder: deps, paths: /src/bin/app, target: /usr/local/bin/app}
expose: 8080
cmd: /usr/local/bin/app
`,
	}
	first, _ := compile(t, files, "dofigen.yml")

	store := &dofigen.LockStore{Mode: dofigen.LockModeUnlocked, Lock: dofigen.NewLockFile()}
	loader := &dofigen.Loader{Store: store, FS: dofigentest.NewMapFS(map[string][]byte{"dofigen.yml": []byte(files["dofigen.yml"])})}
	ctx := context.Background()
	desc, err := loader.Load(ctx, dofigen.Resource{Path: "dofigen.yml"})
	require.NoError(t, err)
	_, err = (&dofigen.Resolver{Store: store}).Resolve(ctx, desc)
	require.NoError(t, err)

	reparsed, err := dofigen.ParseAny(desc.EffectiveDoc())
	require.NoError(t, err)
	order, err := (&dofigen.Resolver{Store: store}).Resolve(ctx, reparsed)
	require.NoError(t, err)
	second, err := emit.Dockerfile(reparsed, order)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestLockedRunUsesCacheWithoutFetching(t *testing.T) {
	baseDoc := []byte("env:\n  FOO: bar\n")
	url := "https://example.com/base.yml"
	ctx := context.Background()

	// first run, unlocked: fetch, hash, record
	fetcher := dofigentest.NewMapFetcher(map[string][]byte{url: baseDoc})
	blobs := &dofigen.MemoryBlobCache{}
	lock := dofigen.NewLockFile()
	store := &dofigen.LockStore{Mode: dofigen.LockModeUnlocked, Lock: lock, Fetcher: fetcher, Blobs: blobs}
	loader := &dofigen.Loader{Store: store, FS: dofigentest.NewMapFS(map[string][]byte{
		"app.yml": []byte("extend: [" + url + "]\nfromImage: alpine\n"),
	})}
	_, err := loader.Load(ctx, dofigen.Resource{Path: "app.yml"})
	require.NoError(t, err)
	require.Len(t, fetcher.Calls, 1)
	wantSum := digest.FromBytes(baseDoc).Encoded()
	require.Equal(t, wantSum, lock.Resources[url].SHA256)

	// second run, locked with the cache warm: zero fetches
	secondFetcher := dofigentest.NewMapFetcher(nil)
	lockedStore := &dofigen.LockStore{Mode: dofigen.LockModeLocked, Lock: lock, Fetcher: secondFetcher, Blobs: blobs}
	lockedLoader := &dofigen.Loader{Store: lockedStore, FS: dofigentest.NewMapFS(map[string][]byte{
		"app.yml": []byte("extend: [" + url + "]\nfromImage: alpine\n"),
	})}
	desc, err := lockedLoader.Load(ctx, dofigen.Resource{Path: "app.yml"})
	require.NoError(t, err)
	require.Empty(t, secondFetcher.Calls)
	require.Equal(t, "bar", desc.Env["FOO"])
}

func TestLockedRunDetectsTampering(t *testing.T) {
	url := "https://example.com/base.yml"
	lock := dofigen.NewLockFile()
	lock.Resources[url] = dofigen.ResourceLock{SHA256: digest.FromBytes([]byte("env:\n  FOO: bar\n")).Encoded()}

	fetcher := dofigentest.NewMapFetcher(map[string][]byte{url: []byte("env:\n  FOO: evil\n")})
	store := &dofigen.LockStore{Mode: dofigen.LockModeLocked, Lock: lock, Fetcher: fetcher}
	loader := &dofigen.Loader{Store: store, FS: dofigentest.NewMapFS(map[string][]byte{
		"app.yml": []byte("extend: [" + url + "]\nfromImage: alpine\n"),
	})}

	_, err := loader.Load(context.Background(), dofigen.Resource{Path: "app.yml"})
	require.Error(t, err)
	var mismatch *dofigen.LockMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestRootBlockEmitsUserFence(t *testing.T) {
	dockerfile, _ := compile(t, map[string]string{
		"dofigen.yml": `
fromImage: alpine
root:
  run:
    - apk add curl
    - apk add git
run: echo ready
`,
	}, "dofigen.yml")
	require.Contains(t, dockerfile, "USER 0\nRUN <<EOF\napk add curl\napk add git\nEOF\nUSER 1000\nRUN echo ready\n")
}

func TestDockerignoreAllowlist(t *testing.T) {
	_, ignore := compile(t, map[string]string{
		"dofigen.yml": "fromImage: alpine\ncontext: [src, go.mod]\nignore: [\"src/**/*_test.go\"]\n",
	}, "dofigen.yml")
	require.Equal(t, "**\n!src\n!go.mod\nsrc/**/*_test.go\n", ignore)
}
