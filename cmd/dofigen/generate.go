package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dofigen/dofigen"
	"github.com/dofigen/dofigen/emit"
)

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	var input, output string
	var locked, offline, noIgnore bool
	fs.StringVar(&input, "f", "", "path to the build description ('-' reads stdin; default: first of dofigen.{yml,yaml,json})")
	fs.StringVar(&output, "o", "Dockerfile", "path to write the generated Dockerfile ('-' writes stdout)")
	fs.BoolVar(&locked, "l", false, "require every fetch and image pin to be present in the lock file")
	fs.BoolVar(&locked, "locked", false, "alias for -l")
	fs.BoolVar(&offline, "offline", false, "like --locked, and refuse any network access outright")
	fs.BoolVar(&noIgnore, "no-ignore", false, "skip generating the .dockerignore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	input = resolveInputPath(input)

	mode := dofigen.LockModeUnlocked
	switch {
	case offline:
		mode = dofigen.LockModeOffline
	case locked:
		mode = dofigen.LockModeLocked
	}

	ctx := context.Background()
	desc, order, lock, lockPath, err := loadAndResolve(ctx, input, mode)
	if err != nil {
		return err
	}

	dockerfile, err := emit.Dockerfile(desc, order)
	if err != nil {
		return err
	}
	if output == "-" {
		fmt.Fprint(os.Stdout, dockerfile)
	} else if err := (dofigen.OSFilesystem{}).WriteFile(output, []byte(dockerfile)); err != nil {
		return err
	}

	if !noIgnore {
		ignore, err := emit.Dockerignore(desc)
		if err != nil {
			return err
		}
		if ignore != "" {
			ignorePath := ".dockerignore"
			if output != "-" {
				ignorePath = filepath.Join(filepath.Dir(output), ".dockerignore")
			}
			if err := (dofigen.OSFilesystem{}).WriteFile(ignorePath, []byte(ignore)); err != nil {
				return err
			}
		}
	}

	if mode == dofigen.LockModeUnlocked {
		return writeLockFile(lockPath, lock)
	}
	return nil
}
