package entity

import (
	"errors"
	"fmt"
)

// Stage names the pipeline stage that produced a failure.
type Stage string

const (
	StageResolve   Stage = "resolve"
	StageExtract   Stage = "extract"
	StageReconcile Stage = "reconcile"
	StageClasses   Stage = "classes"
	StageConfigure Stage = "configure"
	StagePackage   Stage = "package"
)

type stager interface {
	Stage() Stage
}

// StageOf reports the stage recorded anywhere in err's chain.
func StageOf(err error) (Stage, bool) {
	var s stager
	if errors.As(err, &s) {
		return s.Stage(), true
	}
	return "", false
}

// StageError attaches a stage to an untyped failure (I/O, encoding, ...).
type StageError struct {
	Op  Stage
	Err error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }
func (e *StageError) Stage() Stage  { return e.Op }

// WrapStage returns nil for a nil err.
func WrapStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var s stager
	if errors.As(err, &s) {
		return err
	}
	return &StageError{Op: stage, Err: err}
}

// InvalidSourceError is a malformed video reference. Never retried.
type InvalidSourceError struct {
	Reference string
	Reason    string
}

func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("resolve: invalid source %q: %s", e.Reference, e.Reason)
}

func (e *InvalidSourceError) Stage() Stage { return StageResolve }

// SourceUnavailableError means a well-formed source could not be opened.
type SourceUnavailableError struct {
	Source VideoSource
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("extract: source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }
func (e *SourceUnavailableError) Stage() Stage  { return StageExtract }

// Transient is true for cameras and streams; a missing file stays missing.
func (e *SourceUnavailableError) Transient() bool {
	return e.Source.Kind != SourceFile
}

// InvalidDirectoryError is a job directory that escapes the worker's images root.
type InvalidDirectoryError struct {
	Op        Stage
	Directory string
}

func (e *InvalidDirectoryError) Error() string {
	return fmt.Sprintf("%s: directory %q must be a relative path inside the images directory", e.Op, e.Directory)
}

func (e *InvalidDirectoryError) Stage() Stage { return e.Op }

type EmptyClassListError struct{}

func (e *EmptyClassListError) Error() string { return "classes: class list is empty" }
func (e *EmptyClassListError) Stage() Stage  { return StageClasses }

// BlankClassNameError is an entry that is empty once trimmed.
type BlankClassNameError struct {
	Position int
}

func (e *BlankClassNameError) Error() string {
	return fmt.Sprintf("classes: blank class name at position %d", e.Position)
}

func (e *BlankClassNameError) Stage() Stage { return StageClasses }

type DuplicateClassError struct {
	Name  string
	First int
	Again int
}

func (e *DuplicateClassError) Error() string {
	return fmt.Sprintf("classes: duplicate class %q at positions %d and %d", e.Name, e.First, e.Again)
}

func (e *DuplicateClassError) Stage() Stage { return StageClasses }

type ClassFileNotFoundError struct {
	Path string
}

func (e *ClassFileNotFoundError) Error() string {
	return fmt.Sprintf("classes: class file not found: %s", e.Path)
}

func (e *ClassFileNotFoundError) Stage() Stage { return StageClasses }

type InvalidClassCountError struct {
	Count int
}

func (e *InvalidClassCountError) Error() string {
	return fmt.Sprintf("configure: class count must be positive, got %d", e.Count)
}

func (e *InvalidClassCountError) Stage() Stage { return StageConfigure }

type NoCompletePairsError struct {
	Directory string
	Images    int
	Labels    int
}

func (e *NoCompletePairsError) Error() string {
	return fmt.Sprintf("package: no complete image/label pairs in %s (%d images, %d labels)", e.Directory, e.Images, e.Labels)
}

func (e *NoCompletePairsError) Stage() Stage { return StagePackage }

// InvalidLabelError is a label line that cannot be used with the current class list.
type InvalidLabelError struct {
	Path   string
	Line   int
	Reason string
}

func (e *InvalidLabelError) Error() string {
	return fmt.Sprintf("package: %s:%d: %s", e.Path, e.Line, e.Reason)
}

func (e *InvalidLabelError) Stage() Stage { return StagePackage }

// IsRetryable reports whether an orchestrator may retry the failed run.
func IsRetryable(err error) bool {
	var e *SourceUnavailableError
	if errors.As(err, &e) {
		return e.Transient()
	}
	return false
}
