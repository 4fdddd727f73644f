package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrPassageNotFound = errors.New("passage not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrTemporary       = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Retrieval stages reported by StageError.
const (
	StageRewrite = "rewrite"
	StageSearch  = "search"
	StageLookup  = "lookup"
	StageRerank  = "rerank"
)

// StageError reports which stage of a turn failed and, when the failure is
// tied to one rewrite strategy, which one.
type StageError struct {
	Stage    string
	Strategy string
	Err      error
}

func (e *StageError) Error() string {
	if e == nil {
		return "retrieval stage error"
	}
	if e.Strategy == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Stage, e.Strategy, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewStageError(stage, strategy string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Strategy: strategy, Err: err}
}

// FailedStage returns the stage recorded in err, or "" when err carries none.
func FailedStage(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}
