// Command dofigen compiles a declarative build description into a
// Dockerfile, its .dockerignore side-car, and a dofigen.lock file.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

const (
	exitOK            = 0
	exitGenericError  = 1
	exitInvalidInput  = 2
	exitLockViolation = 3
	exitIOError       = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	if len(args) == 0 {
		usage()
		return exitGenericError
	}

	sub, rest := args[0], args[1:]
	var err error
	switch sub {
	case "generate", "gen":
		err = runGenerate(rest)
	case "update":
		err = runUpdate(rest)
	case "effective":
		err = runEffective(rest)
	case "schema":
		err = runSchema(rest)
	case "-h", "--help", "help":
		usage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "dofigen: unknown subcommand %q\n", sub)
		usage()
		return exitGenericError
	}

	if err == nil {
		return exitOK
	}
	logrus.Error(err)
	return exitCodeFor(err)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: dofigen <command> [flags]

commands:
  generate, gen   compile a build description into a Dockerfile and .dockerignore
  update          re-resolve and rewrite the lock file
  effective       print the fully merged and resolved build description
  schema          print the JSON Schema for the build description format`)
}
