package dofigen

import (
	"encoding/json"
	"net/url"
	"path/filepath"

	"github.com/pkg/errors"
)

// Resource is a reference to another build description, either a local
// filesystem path or a remote URL, used by `extend`.
type Resource struct {
	Path string // set when the resource is a local filesystem path
	URL  string // set when the resource is a remote URL
}

// IsURL reports whether the resource is fetched over the network.
func (r Resource) IsURL() bool {
	return r.URL != ""
}

func (r *Resource) UnmarshalAny(v any) error {
	s, ok := v.(string)
	if !ok {
		return errors.Errorf("cannot decode resource from %T", v)
	}
	if looksLikeURL(s) {
		r.URL = s
		r.Path = ""
		return nil
	}
	r.Path = s
	r.URL = ""
	return nil
}

func (r *Resource) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return r.UnmarshalAny(v)
}

func looksLikeURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Resolve computes the resource obtained by following `rel` from the
// location of `base`: a local-relative path resolves against base's
// parent directory, a URL-relative path resolves against base's parent
// path, and an absolute path or fully qualified URL in `rel` is
// returned unchanged.
func (base Resource) Resolve(rel Resource) (Resource, error) {
	if rel.IsURL() {
		return rel, nil
	}
	if filepath.IsAbs(rel.Path) {
		return rel, nil
	}

	if base.IsURL() {
		u, err := url.Parse(base.URL)
		if err != nil {
			return Resource{}, errors.Wrapf(err, "parsing base url %q", base.URL)
		}
		ref, err := url.Parse(rel.Path)
		if err != nil {
			return Resource{}, errors.Wrapf(err, "parsing relative reference %q", rel.Path)
		}
		resolved := u.ResolveReference(ref)
		return Resource{URL: resolved.String()}, nil
	}

	dir := filepath.Dir(base.Path)
	return Resource{Path: filepath.Join(dir, rel.Path)}, nil
}

func (r Resource) String() string {
	if r.IsURL() {
		return r.URL
	}
	return r.Path
}
