package internal

import (
	"errors"

	"github.com/NYCU-SDC/summer/pkg/problem"
)

var (
	// Generic Errors
	ErrValidationFailed = errors.New("validation failed")

	// Workflow Errors
	ErrInvalidWorkflowFile = errors.New("invalid workflow file")
	ErrStoreNotInitialized = errors.New("workflow store used before initialization")
	ErrImportCancelled     = errors.New("workflow import cancelled")

	// Persistence Errors
	ErrSlotNotFound       = errors.New("persistence slot not found")
	ErrUnsupportedBackend = errors.New("unsupported storage backend")
	ErrCorruptSnapshot    = errors.New("persisted workflow could not be decoded")
)

func NewProblemWriter() *problem.HttpWriter {
	return problem.NewWithMapping(ErrorHandler)
}

func ErrorHandler(err error) problem.Problem {
	switch {
	case errors.Is(err, ErrValidationFailed):
		return problem.NewValidateProblem("validation failed")

	// Workflow Errors
	case errors.Is(err, ErrInvalidWorkflowFile):
		return problem.NewValidateProblem("invalid workflow file")
	case errors.Is(err, ErrImportCancelled):
		return problem.NewValidateProblem("workflow import cancelled")

	// Persistence Errors
	case errors.Is(err, ErrSlotNotFound):
		return problem.NewNotFoundProblem("no saved workflow")
	case errors.Is(err, ErrCorruptSnapshot):
		return problem.NewInternalServerProblem("persisted workflow could not be decoded")
	}
	return problem.Problem{}
}
