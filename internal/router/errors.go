package router

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSourceMissing is returned when the working file disappears before it
// could be archived for validation.
var ErrSourceMissing = errors.New("working file missing")

// Stage names the step of the pipeline an error came from
type Stage string

// Pipeline stages that can fail a file
const (
	StageValidation Stage = "validation"
	StageCleanup    Stage = "cleanup"
	StageArchive    Stage = "archive"
)

// FileError is a failure that stopped one file from reaching a terminal state
type FileError struct {
	File  string // Working file path
	Stage Stage  // Where processing stopped
	Err   error  // Underlying error
}

// NewFileError creates a FileError
func NewFileError(file string, stage Stage, err error) *FileError {
	return &FileError{File: file, Stage: stage, Err: err}
}

func (e *FileError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s", e.Stage, e.File))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error
func (e *FileError) Unwrap() error {
	return e.Err
}

// IsFileError reports whether err is or wraps a FileError
func IsFileError(err error) bool {
	var fe *FileError
	return errors.As(err, &fe)
}
