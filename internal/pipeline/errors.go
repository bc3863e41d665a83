package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// processFailure reports a stage that could not start or exited non-zero.
type processFailure struct {
	stage  string
	code   int
	stderr string
	cause  error
}

func (e *processFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.stage)
	if e.code != 0 {
		fmt.Fprintf(&b, " with exit code %d", e.code)
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	if e.stderr != "" {
		fmt.Fprintf(&b, "; stderr tail: %s", e.stderr)
	}
	return b.String()
}

func (e *processFailure) Unwrap() error { return e.cause }

// IsProcessFailure reports whether err indicates a failed stage process.
func IsProcessFailure(err error) bool {
	var pf *processFailure
	return errors.As(err, &pf)
}

// timeoutError signals a framed exchange that did not complete in time.
// The pipeline that returned it is marked stuck.
type timeoutError struct{ after time.Duration }

func (e timeoutError) Error() string {
	return fmt.Sprintf("pipeline did not respond within %s", e.after)
}

// IsTimeout reports whether err is a framed-exchange timeout.
func IsTimeout(err error) bool {
	var te timeoutError
	return errors.As(err, &te)
}

// inputTooFragmentedError is returned by Split when input remains after the
// maximum number of rounds.
type inputTooFragmentedError struct {
	rounds    int
	remaining int
}

func (e inputTooFragmentedError) Error() string {
	return fmt.Sprintf("input too large: %d bytes left after %d chunks", e.remaining, e.rounds)
}

// IsInputTooFragmented reports whether err came from the splitter cap.
func IsInputTooFragmented(err error) bool {
	var fe inputTooFragmentedError
	return errors.As(err, &fe)
}
