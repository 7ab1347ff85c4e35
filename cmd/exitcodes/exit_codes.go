package exitcodes

import "github.com/pkg/errors"

const (
	// ================================
	// Platform-universal exit codes
	// ================================

	// ExitCodeSuccess indicates no errors or failures had occurred.
	ExitCodeSuccess = 0

	// ExitCodeGeneralError indicates some type of general error occurred.
	ExitCodeGeneralError = 1

	// ================================
	// Application-specific exit codes
	// ================================
	// Note: Despite not being standardized, exit codes 2-5 are often used for common use cases, so we avoid them.

	// ExitCodeHandledError indicates that there was an error during a detection or replay run that was already logged.
	// Note that an error with error code ExitCodeGeneralError and ExitCodeHandledError are mutually exclusive errors
	ExitCodeHandledError = 6

	// ExitCodeLeakFound indicates a control leak was detected.
	ExitCodeLeakFound = 7
)

// ErrorWithExitCode wraps an error with the exit code the process should terminate with once the error reaches the
// top-level. The wrapped error may be nil when only the exit code carries information (eg a leak was found).
type ErrorWithExitCode struct {
	err      error
	exitCode int
}

// NewErrorWithExitCode creates a new ErrorWithExitCode wrapping err.
func NewErrorWithExitCode(err error, exitCode int) *ErrorWithExitCode {
	return &ErrorWithExitCode{
		err:      err,
		exitCode: exitCode,
	}
}

// Error returns the message of the wrapped error, or an empty string if there is none.
func (e *ErrorWithExitCode) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

// Unwrap returns the wrapped error.
func (e *ErrorWithExitCode) Unwrap() error {
	return e.err
}

// ExitCode returns the exit code associated with the error.
func (e *ErrorWithExitCode) ExitCode() int {
	return e.exitCode
}

// GetInnerErrorAndExitCode returns the error the application should report and the exit code it should exit with:
// ExitCodeSuccess for a nil error, the carried code if an ErrorWithExitCode is found in the chain of err, and
// ExitCodeGeneralError otherwise.
func GetInnerErrorAndExitCode(err error) (error, int) {
	if err == nil {
		return nil, ExitCodeSuccess
	}
	var withExitCode *ErrorWithExitCode
	if errors.As(err, &withExitCode) {
		return withExitCode.err, withExitCode.exitCode
	}
	return err, ExitCodeGeneralError
}
