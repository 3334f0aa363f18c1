package gps

import (
	"bytes"
	"fmt"
)

// NoVersionsError reports that no version of a package satisfied the
// constraints placed on it. Solver.Solve does not return it: an empty pick
// becomes a no-versions incompatibility, and an unsolvable problem ends in a
// ConflictError.
type NoVersionsError struct {
	Identity Identity
	Required VersionSetSpecifier
}

func (e *NoVersionsError) Error() string {
	return fmt.Sprintf("no version of %s satisfies %s", e.Identity, e.Required)
}

// ConflictError reports that conflict resolution walked all the way back to
// a root-level decision without finding a resolution - the solve is
// unsatisfiable as stated, and Incompatibility records the minimal derived
// clause explaining why.
type ConflictError struct {
	Incompatibility *Incompatibility
}

func (e *ConflictError) Error() string {
	return "no solution satisfies all constraints: " + e.Incompatibility.String()
}

// ToolsVersionError reports a package whose declared minimum tools version
// is incompatible with the running toolchain.
type ToolsVersionError struct {
	Identity Identity
	Version  Version
}

func (e *ToolsVersionError) Error() string {
	return fmt.Sprintf("%s@%s requires a newer tools version than is available", e.Identity, e.Version)
}

// BranchAlreadyExistsError is returned when entering edit mode for a
// dependency whose local checkout already has the requested branch.
type BranchAlreadyExistsError struct {
	Identity Identity
	Branch   Branch
}

func (e *BranchAlreadyExistsError) Error() string {
	return fmt.Sprintf("branch %q already exists for %s", e.Branch, e.Identity)
}

// RevisionDoesNotExistError is returned when entering edit mode for a
// dependency at a revision the source control history doesn't contain.
type RevisionDoesNotExistError struct {
	Identity Identity
	Revision Revision
}

func (e *RevisionDoesNotExistError) Error() string {
	return fmt.Sprintf("revision %s does not exist for %s", e.Revision, e.Identity)
}

// DependencyNotInEditModeError is returned when leave-edit is requested for
// a dependency that was never put into edit mode.
type DependencyNotInEditModeError struct {
	Identity Identity
}

func (e *DependencyNotInEditModeError) Error() string {
	return fmt.Sprintf("%s is not currently in edit mode", e.Identity)
}

// UncommittedChangesError guards the reconciler against discarding local
// work: the on-disk checkout has modifications that were never committed.
type UncommittedChangesError struct {
	Identity Identity
	Path     string
}

func (e *UncommittedChangesError) Error() string {
	return fmt.Sprintf("%s has uncommitted changes at %s", e.Identity, e.Path)
}

// UnpushedChangesError guards the reconciler against discarding commits
// that exist only in the local checkout.
type UnpushedChangesError struct {
	Identity Identity
	Path     string
}

func (e *UnpushedChangesError) Error() string {
	return fmt.Sprintf("%s has unpushed commits at %s", e.Identity, e.Path)
}

// MalformedLockfileError reports a pins file that could not be parsed at
// all: an unrecognized or missing schema version, a JSON parse failure, or
// a pin missing a field its kind requires.
type MalformedLockfileError struct {
	Path   string
	Reason string
}

func (e *MalformedLockfileError) Error() string {
	return fmt.Sprintf("pins file %s is corrupted or malformed (%s); fix or delete it to continue", e.Path, e.Reason)
}

// CancelledError reports a cooperative cancellation: the caller's context
// was done before or during a solve, and the resolver unwound without
// mutating any persistent state (spec §5).
type CancelledError struct {
	Stage string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("cancelled during %s", e.Stage)
}

// MultiError aggregates several errors encountered in a batch operation
// (e.g. classifying a tree with several malformed directories), printed one
// per line.
type MultiError struct {
	Errors []error
}

func (e *MultiError) Error() string {
	var buf bytes.Buffer
	for i, err := range e.Errors {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(err.Error())
	}
	return buf.String()
}

// Unwrap exposes the wrapped errors to errors.Is/As style handling.
func (e *MultiError) Unwrap() []error {
	return e.Errors
}
