package main

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/dofigen/dofigen"
)

// defaultInputCandidates is the search order used when -f is not given.
var defaultInputCandidates = []string{"dofigen.yml", "dofigen.yaml", "dofigen.json"}

func resolveInputPath(input string) string {
	if input != "" {
		return input
	}
	fs := dofigen.OSFilesystem{}
	for _, candidate := range defaultInputCandidates {
		if fs.Exists(candidate) {
			return candidate
		}
	}
	return defaultInputCandidates[0]
}

// lockPathFor places the lock file next to the entry descriptor.
func lockPathFor(input string) string {
	if input == "-" {
		return "dofigen.lock"
	}
	return filepath.Join(filepath.Dir(input), "dofigen.lock")
}

func cachePathFor(lockPath string) string {
	return filepath.Join(filepath.Dir(lockPath), ".dofigen-cache")
}

// loadAndResolve runs the full pipeline shared by generate/update/
// effective: load the document and its extend chain through the lock
// store, then resolve stage order, defaults, and image pins.
func loadAndResolve(ctx context.Context, input string, mode dofigen.LockMode) (*dofigen.Descriptor, []string, *dofigen.LockFile, string, error) {
	lockPath := lockPathFor(input)
	lock, err := readLockFile(lockPath)
	if err != nil {
		return nil, nil, nil, "", err
	}

	store := &dofigen.LockStore{
		Mode:    mode,
		Lock:    lock,
		Fetcher: dofigen.NewHTTPFetcher(),
		Blobs:   dofigen.FileBlobCache{Dir: cachePathFor(lockPath)},
	}

	loader := &dofigen.Loader{Store: store, FS: dofigen.OSFilesystem{}}

	var desc *dofigen.Descriptor
	if input == "-" {
		data, readErr := io.ReadAll(os.Stdin)
		if readErr != nil {
			return nil, nil, nil, "", readErr
		}
		desc, err = loader.LoadBytes(ctx, data, dofigen.Resource{Path: "dofigen.yml"})
	} else {
		desc, err = loader.Load(ctx, dofigen.Resource{Path: input})
	}
	if err != nil {
		return nil, nil, nil, "", err
	}

	resolver := &dofigen.Resolver{Store: store}
	order, err := resolver.Resolve(ctx, desc)
	if err != nil {
		return nil, nil, nil, "", err
	}

	return desc, order, lock, lockPath, nil
}

func readLockFile(path string) (*dofigen.LockFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return dofigen.NewLockFile(), nil
		}
		return nil, err
	}
	return dofigen.ParseLockFile(data)
}

func writeLockFile(path string, lock *dofigen.LockFile) error {
	data, err := lock.Marshal()
	if err != nil {
		return err
	}
	return dofigen.OSFilesystem{}.WriteFile(path, data)
}
