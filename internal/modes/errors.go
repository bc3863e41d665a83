package modes

import (
	"errors"
	"fmt"
)

// parseError reports a mode file that cannot become a pipeline. Callers
// surface it as "not installed".
type parseError struct {
	path   string
	reason string
	stage  int
	cause  error
}

func (e *parseError) Error() string {
	msg := fmt.Sprintf("could not parse mode file %s: %s", e.path, e.reason)
	if e.stage > 0 {
		msg += fmt.Sprintf(" (stage %d)", e.stage)
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *parseError) Unwrap() error { return e.cause }

// IsParseError reports whether err came from parsing a mode file.
func IsParseError(err error) bool {
	var pe *parseError
	return errors.As(err, &pe)
}
