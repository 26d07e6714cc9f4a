package dofigen

import (
	"context"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Loader resolves a document's `extend` chain. Each document decodes to
// a DescriptorPatch; the loader flattens the chain depth-first (every
// entry's own chain first, then that entry, then the extending
// document) and folds the resulting patch list left-to-right onto an
// empty descriptor.
type Loader struct {
	Store *LockStore
	FS    FS
}

// Load parses the document at source, resolves its extend chain, and
// returns the folded Descriptor.
func (l *Loader) Load(ctx context.Context, source Resource) (*Descriptor, error) {
	patches, err := l.collect(ctx, source, nil, sets.New[string]())
	if err != nil {
		return nil, err
	}
	desc := &Descriptor{}
	for _, p := range patches {
		desc = p.Apply(desc)
	}
	return desc, nil
}

// LoadBytes resolves a document already held in memory (stdin input);
// relative extend entries resolve against base's location.
func (l *Loader) LoadBytes(ctx context.Context, data []byte, base Resource) (*Descriptor, error) {
	key := base.String()
	patches, err := l.collectData(ctx, data, base, []string{key}, sets.New(key))
	if err != nil {
		return nil, err
	}
	desc := &Descriptor{}
	for _, p := range patches {
		desc = p.Apply(desc)
	}
	return desc, nil
}

// collect walks the extend chain rooted at source depth-first and
// returns the patches in fold order. ancestors tracks the chain from
// the entry document down to source for cycle reporting; visiting is
// the same chain as a set for the O(1) membership check.
func (l *Loader) collect(ctx context.Context, source Resource, ancestors []string, visiting sets.Set[string]) ([]*DescriptorPatch, error) {
	key := source.String()
	if visiting.Has(key) {
		return nil, &ExtendCycleError{Chain: append(append([]string{}, ancestors...), key)}
	}
	visiting.Insert(key)
	defer visiting.Delete(key)
	ancestors = append(ancestors, key)

	data, err := l.read(ctx, source)
	if err != nil {
		return nil, err
	}
	return l.collectData(ctx, data, source, ancestors, visiting)
}

func (l *Loader) collectData(ctx context.Context, data []byte, source Resource, ancestors []string, visiting sets.Set[string]) ([]*DescriptorPatch, error) {
	overlay, err := ParsePatch(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", source.String())
	}

	var patches []*DescriptorPatch
	for _, entry := range overlay.Extend {
		resolved, err := source.Resolve(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving extend entry in %s", source.String())
		}
		children, err := l.collect(ctx, resolved, ancestors, visiting)
		if err != nil {
			return nil, err
		}
		patches = append(patches, children...)
	}
	return append(patches, overlay), nil
}

func (l *Loader) read(ctx context.Context, source Resource) ([]byte, error) {
	if source.IsURL() {
		return l.Store.FetchLocked(ctx, source.URL)
	}
	data, err := l.FS.ReadFile(source.Path)
	if err != nil {
		return nil, &ResourceError{Resource: source.Path, Err: err}
	}
	return data, nil
}
