package job

import (
	"errors"

	"imagerelay/models"
)

// Error tags a pipeline failure with its kind and the stage it occurred in.
type Error struct {
	Kind  models.ErrorKind
	Stage Stage
	Err   error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func fail(kind models.ErrorKind, stage Stage, err error) error {
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// KindOf returns the kind of err, or "" when err did not come from a pipeline.
func KindOf(err error) models.ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
