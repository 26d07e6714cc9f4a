package main

import (
	"context"
	"flag"

	"github.com/dofigen/dofigen"
)

func runUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	var input string
	fs.StringVar(&input, "f", "", "path to the build description (default: first of dofigen.{yml,yaml,json})")
	if err := fs.Parse(args); err != nil {
		return err
	}
	input = resolveInputPath(input)

	ctx := context.Background()
	_, _, lock, lockPath, err := loadAndResolve(ctx, input, dofigen.LockModeUpdate)
	if err != nil {
		return err
	}

	return writeLockFile(lockPath, lock)
}
