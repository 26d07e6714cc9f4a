package dofigen

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Fetcher retrieves the bytes behind a remote Resource. Implementations
// are injected so tests can swap in an in-memory double instead of
// touching the network.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FS abstracts the filesystem operations the loader and emitter need,
// again so tests can run against an in-memory double. WriteFile must be
// atomic: on failure the destination keeps its previous content.
type FS interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Exists(path string) bool
	Canonicalize(path string) (string, error)
}

const defaultFetchTimeout = 30 * time.Second
const maxRedirects = 10

// HTTPFetcher fetches resources over the network with a bounded
// redirect chain and a default timeout applied when ctx carries none.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher builds an HTTPFetcher with a redirect-limited client.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errors.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultFetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", url)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading response body for %s", url)
	}
	return data, nil
}

// OSFilesystem implements FS against the real filesystem, writing
// through a temp-file-then-rename so a crash mid-write never leaves a
// truncated output file.
type OSFilesystem struct{}

func (OSFilesystem) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return data, nil
}

func (OSFilesystem) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".dofigen-tmp-*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "writing %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "closing %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "renaming %s to %s", tmpName, path)
	}
	return nil
}

func (OSFilesystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFilesystem) Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "resolving %s", path)
	}
	return filepath.Clean(abs), nil
}

// FileBlobCache persists fetched resource content under a cache
// directory, one file per SHA-256, so locked runs can be served without
// network access across process invocations.
type FileBlobCache struct {
	Dir string
}

func (c FileBlobCache) Get(sha256 string) ([]byte, bool) {
	data, err := os.ReadFile(filepath.Join(c.Dir, sha256))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c FileBlobCache) Put(sha256 string, data []byte) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating cache dir %s", c.Dir)
	}
	return OSFilesystem{}.WriteFile(filepath.Join(c.Dir, sha256), data)
}
