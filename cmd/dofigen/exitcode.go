package main

import (
	"errors"

	"github.com/dofigen/dofigen"
)

// exitCodeFor maps an error returned from a subcommand to the
// documented process exit codes: invalid input (parse, schema, cycles,
// bad references) is 2, a lock policy violation is 3, and network or
// filesystem failures are 4.
func exitCodeFor(err error) int {
	var parseErr *dofigen.ParseError
	var shortcutErr *dofigen.InvalidShortcutError
	var schemaErr *dofigen.SchemaViolationError
	var extendCycle *dofigen.ExtendCycleError
	var stageCycle *dofigen.StageCycleError
	var unknownRef *dofigen.UnknownReferenceError
	if errors.As(err, &parseErr) || errors.As(err, &shortcutErr) || errors.As(err, &schemaErr) ||
		errors.As(err, &extendCycle) || errors.As(err, &stageCycle) || errors.As(err, &unknownRef) {
		return exitInvalidInput
	}

	var lockMissing *dofigen.LockMissingError
	var lockMismatch *dofigen.LockMismatchError
	if errors.As(err, &lockMissing) || errors.As(err, &lockMismatch) {
		return exitLockViolation
	}

	var resourceErr *dofigen.ResourceError
	if errors.As(err, &resourceErr) {
		return exitIOError
	}

	return exitGenericError
}
