package dofigen

import (
	"context"
	"sort"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	goyaml "github.com/goccy/go-yaml"
)

// LockMode controls how the Lock Store reconciles recorded digests
// against freshly observed ones.
type LockMode int

const (
	// LockModeUnlocked is the default: present entries are honored,
	// missing entries are fetched, hashed, and recorded.
	LockModeUnlocked LockMode = iota
	// LockModeLocked trusts the lock file only: a mismatch is an
	// error, and a missing entry is an error instead of a fetch.
	LockModeLocked
	// LockModeUpdate re-resolves everything and overwrites the lock
	// file with whatever is observed now.
	LockModeUpdate
	// LockModeOffline refuses any network fetch; a missing entry is an
	// error instead of triggering a resolve.
	LockModeOffline
)

// ResourceLock pins a fetched resource to its content hash.
type ResourceLock struct {
	SHA256 string `yaml:"sha256" json:"sha256"`
}

// ImageLock pins an image reference's floating tag to the digest it
// resolved to at lock time.
type ImageLock struct {
	Tag    string `yaml:"tag,omitempty" json:"tag,omitempty"`
	Digest string `yaml:"digest" json:"digest"`
}

// LockFile is the `dofigen.lock` side-car: a snapshot of every
// resource and image digest the build description resolved to.
type LockFile struct {
	Resources map[string]ResourceLock `yaml:"resources,omitempty" json:"resources,omitempty"`
	Images    map[string]ImageLock    `yaml:"images,omitempty" json:"images,omitempty"`
}

// NewLockFile returns an empty, initialized LockFile.
func NewLockFile() *LockFile {
	return &LockFile{
		Resources: map[string]ResourceLock{},
		Images:    map[string]ImageLock{},
	}
}

// Marshal renders the lock file with sorted keys so repeated runs over
// unchanged inputs produce byte-identical output.
func (l *LockFile) Marshal() ([]byte, error) {
	sorted := &struct {
		Resources map[string]ResourceLock `yaml:"resources,omitempty"`
		Images    map[string]ImageLock    `yaml:"images,omitempty"`
	}{Resources: l.Resources, Images: l.Images}
	data, err := goyaml.MarshalWithOptions(sorted, goyaml.UseLiteralStyleIfMultiline(true))
	if err != nil {
		return nil, errors.Wrap(err, "marshaling lock file")
	}
	return data, nil
}

// ParseLockFile decodes a `dofigen.lock` document.
func ParseLockFile(data []byte) (*LockFile, error) {
	l := NewLockFile()
	if err := goyaml.Unmarshal(data, l); err != nil {
		return nil, errors.Wrap(err, "parsing lock file")
	}
	if l.Resources == nil {
		l.Resources = map[string]ResourceLock{}
	}
	if l.Images == nil {
		l.Images = map[string]ImageLock{}
	}
	return l, nil
}

// SortedResourceKeys returns the lock file's resource URLs in sorted
// order, mirroring the deterministic-iteration convention used
// throughout the emitter.
func (l *LockFile) SortedResourceKeys() []string {
	keys := make([]string, 0, len(l.Resources))
	for k := range l.Resources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BlobCache stores fetched resource bytes keyed by their SHA-256, so a
// locked run can serve a previously fetched resource without touching
// the network.
type BlobCache interface {
	Get(sha256 string) ([]byte, bool)
	Put(sha256 string, data []byte) error
}

// MemoryBlobCache is an in-process BlobCache whose blobs live only as
// long as the value; the tests use it.
type MemoryBlobCache struct {
	blobs map[string][]byte
}

func (c *MemoryBlobCache) Get(sha256 string) ([]byte, bool) {
	data, ok := c.blobs[sha256]
	return data, ok
}

func (c *MemoryBlobCache) Put(sha256 string, data []byte) error {
	if c.blobs == nil {
		c.blobs = map[string][]byte{}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.blobs[sha256] = cp
	return nil
}

// LockStore mediates every network fetch and image-digest resolution
// through the lock file's recorded state, per mode.
type LockStore struct {
	Mode    LockMode
	Lock    *LockFile
	Fetcher Fetcher
	Resolve ImageDigestResolver
	Blobs   BlobCache
}

// ImageDigestResolver resolves a tagged image reference to its current
// registry digest. Production wiring wraps a registry client; tests
// supply a canned map.
type ImageDigestResolver func(ctx context.Context, ref ImageName) (string, error)

// FetchLocked returns the bytes behind url, consulting the lock file
// and the blob cache per mode. A locked entry whose content is cached
// is served without any network traffic; a locked entry that must be
// re-fetched is verified against the recorded hash before use.
func (s *LockStore) FetchLocked(ctx context.Context, url string) ([]byte, error) {
	existing, known := s.Lock.Resources[url]

	if known && s.Mode != LockModeUpdate && s.Blobs != nil {
		if data, ok := s.Blobs.Get(existing.SHA256); ok {
			return data, nil
		}
	}

	if s.Mode == LockModeOffline {
		if !known {
			return nil, &LockMissingError{Key: url}
		}
		return nil, &ResourceError{Resource: url, Err: errors.New("offline mode: content not cached")}
	}
	if s.Mode == LockModeLocked && !known {
		return nil, &LockMissingError{Key: url}
	}

	data, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	sum := digest.FromBytes(data).Encoded()

	if known && s.Mode != LockModeUpdate {
		if sum != existing.SHA256 {
			return nil, &LockMismatchError{Key: url, Expected: existing.SHA256, Actual: sum}
		}
	} else {
		s.Lock.Resources[url] = ResourceLock{SHA256: sum}
	}

	if s.Blobs != nil {
		if err := s.Blobs.Put(sum, data); err != nil {
			return nil, errors.Wrapf(err, "caching %s", url)
		}
	}
	return data, nil
}

func (s *LockStore) fetch(ctx context.Context, url string) ([]byte, error) {
	if s.Fetcher == nil {
		return nil, &ResourceError{Resource: url, Err: errors.New("no fetcher configured")}
	}
	data, err := s.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, &ResourceError{Resource: url, Err: err}
	}
	return data, nil
}

// PinImage resolves ref's digest through the lock file, recording or
// verifying per mode. A reference that already carries a digest is
// returned unchanged.
func (s *LockStore) PinImage(ctx context.Context, ref ImageName) (ImageName, error) {
	if ref.Digest != "" {
		return ref, nil
	}

	key := ref.String()
	existing, known := s.Lock.Images[key]

	if s.Mode == LockModeOffline {
		if !known {
			return ImageName{}, &LockMissingError{Key: key}
		}
		pinned := ref
		pinned.Digest = existing.Digest
		return pinned, nil
	}

	if known && s.Mode != LockModeUpdate {
		pinned := ref
		pinned.Digest = existing.Digest
		return pinned, nil
	}
	if s.Mode == LockModeLocked {
		return ImageName{}, &LockMissingError{Key: key}
	}

	// No registry resolver wired means the reference stays floating;
	// the emitted FROM keeps whatever tag the author wrote.
	if s.Resolve == nil {
		return ref, nil
	}

	digestStr, err := s.Resolve(ctx, ref)
	if err != nil {
		return ImageName{}, errors.Wrapf(err, "resolving digest for %s", key)
	}
	if digestStr == "" {
		return ref, nil
	}
	s.Lock.Images[key] = ImageLock{Tag: ref.Tag, Digest: digestStr}
	pinned := ref
	pinned.Digest = digestStr
	return pinned, nil
}
