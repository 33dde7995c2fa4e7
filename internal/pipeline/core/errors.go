package core

import (
	"errors"
	"fmt"
)

var (
	ErrNoSources              = errors.New("no stream sources attached to proxy")
	ErrNoChannels             = errors.New("no channels loaded")
	ErrPipelineAlreadyRunning = errors.New("pipeline already running for this proxy")
	ErrStageNotFound          = errors.New("stage not found")
	ErrInvalidConfiguration   = errors.New("invalid pipeline configuration")
)

// StageError carries the stage identity alongside the failure.
type StageError struct {
	StageID   string
	StageName string

	Err error
}

func NewStageError(stageID, stageName string, err error) *StageError {
	return &StageError{StageID: stageID, StageName: stageName, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.StageName, e.StageID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ConfigurationError reports an invalid pipeline config field.
type ConfigurationError struct {
	Field   string
	Message string
}

func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}
