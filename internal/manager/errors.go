package manager

import "errors"

// notInstalledError reports a pair or mode that is not installed, even after
// fallback resolution.
type notInstalledError struct{ what string }

func (e notInstalledError) Error() string { return "not installed: " + e.what }

// ErrNotInstalled constructs a notInstalledError.
func ErrNotInstalled(what string) error { return notInstalledError{what: what} }

// IsNotInstalled reports whether err indicates a missing pair or mode.
func IsNotInstalled(err error) bool {
	var e notInstalledError
	return errors.As(err, &e)
}

// emptyServerConfigurationError signals that nothing is installed at all.
type emptyServerConfigurationError struct{ dirs []string }

func (e emptyServerConfigurationError) Error() string {
	if len(e.dirs) == 0 {
		return "no modes directories configured"
	}
	return "no pairs or modes found under the configured directories"
}

// ErrEmptyServerConfiguration constructs an emptyServerConfigurationError.
func ErrEmptyServerConfiguration(dirs []string) error {
	return emptyServerConfigurationError{dirs: dirs}
}

// IsEmptyServerConfiguration reports whether err means nothing is installed.
func IsEmptyServerConfiguration(err error) bool {
	var e emptyServerConfigurationError
	return errors.As(err, &e)
}

// invalidPairError reports a malformed pair parameter.
type invalidPairError struct{ cause error }

func (e invalidPairError) Error() string { return "invalid pair: " + e.cause.Error() }
func (e invalidPairError) Unwrap() error { return e.cause }

// IsInvalidPair reports whether err came from a malformed pair parameter.
func IsInvalidPair(err error) bool {
	var e invalidPairError
	return errors.As(err, &e)
}
