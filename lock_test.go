package dofigen

import (
	"context"
	"testing"

	"github.com/dofigen/dofigen/dofigentest"
	"github.com/stretchr/testify/require"
)

func TestLockStoreRecordsOnUpdate(t *testing.T) {
	fetcher := dofigentest.NewMapFetcher(map[string][]byte{
		"https://example.com/f.txt": []byte("hello"),
	})
	store := &LockStore{Mode: LockModeUpdate, Lock: NewLockFile(), Fetcher: fetcher}

	data, err := store.FetchLocked(context.Background(), "https://example.com/f.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	require.Contains(t, store.Lock.Resources, "https://example.com/f.txt")
}

func TestLockStoreDetectsMismatchWhenLocked(t *testing.T) {
	lock := NewLockFile()
	lock.Resources["https://example.com/f.txt"] = ResourceLock{SHA256: "deadbeef"}
	fetcher := dofigentest.NewMapFetcher(map[string][]byte{
		"https://example.com/f.txt": []byte("tampered content"),
	})
	store := &LockStore{Mode: LockModeLocked, Lock: lock, Fetcher: fetcher}

	_, err := store.FetchLocked(context.Background(), "https://example.com/f.txt")
	require.Error(t, err)
	var mismatch *LockMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "deadbeef", mismatch.Expected)
}

func TestLockStoreOfflineRequiresExistingEntry(t *testing.T) {
	store := &LockStore{Mode: LockModeOffline, Lock: NewLockFile()}
	_, err := store.FetchLocked(context.Background(), "https://example.com/missing.txt")
	require.Error(t, err)
	var missing *LockMissingError
	require.ErrorAs(t, err, &missing)
}

func TestLockStorePinImageSkipsAlreadyDigested(t *testing.T) {
	store := &LockStore{Mode: LockModeUpdate, Lock: NewLockFile()}
	ref := ImageName{Path: "alpine", Digest: "sha256:abc"}
	pinned, err := store.PinImage(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, ref, pinned)
}

func TestLockStorePinImageResolvesAndRecords(t *testing.T) {
	store := &LockStore{
		Mode: LockModeUpdate,
		Lock: NewLockFile(),
		Resolve: func(ctx context.Context, ref ImageName) (string, error) {
			return "sha256:resolved", nil
		},
	}
	ref := ImageName{Path: "alpine", Tag: "3.19"}
	pinned, err := store.PinImage(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, "sha256:resolved", pinned.Digest)
	require.Equal(t, ImageLock{Tag: "3.19", Digest: "sha256:resolved"}, store.Lock.Images["alpine:3.19"])
}

func TestParseLockFileRoundTrip(t *testing.T) {
	lock := NewLockFile()
	lock.Resources["https://example.com/f.txt"] = ResourceLock{SHA256: "abc"}
	data, err := lock.Marshal()
	require.NoError(t, err)

	parsed, err := ParseLockFile(data)
	require.NoError(t, err)
	require.Equal(t, "abc", parsed.Resources["https://example.com/f.txt"].SHA256)
}
