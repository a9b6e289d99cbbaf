package cli

import (
	"errors"
	"fmt"

	"github.com/kubilitics/kubilitics-gate/internal/policy"
)

// ExitError carries a process exit status out of a command. A nil Err means
// the status is the outcome itself and there is nothing to print.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps the error returned by Execute to a process status. Errors
// that carry no status (bad flags, unknown commands) exit like configuration
// errors.
func ExitCode(err error) int {
	if err == nil {
		return policy.ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return policy.ExitInternal
}

// Silent reports whether err only carries an exit status.
func Silent(err error) bool {
	var ee *ExitError
	return errors.As(err, &ee) && ee.Err == nil
}

func exitWith(code int) error {
	if code == policy.ExitOK {
		return nil
	}
	return &ExitError{Code: code}
}

// failed marks err as a configuration or internal error: no decision was made.
func failed(err error) error {
	return &ExitError{Code: policy.ExitInternal, Err: err}
}
