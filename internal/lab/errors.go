package lab

import (
	"errors"
	"fmt"
)

// ValidationError is a request the orchestrator refused before connecting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ExitError is a clab command that ran and exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command '%s' exited with status %d", e.Command, e.ExitCode)
}

func isValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
