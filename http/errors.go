package http

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidArgument marks contract violations caused by malformed arguments.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState marks contract violations caused by calls made out of order.
	ErrInvalidState = errors.New("invalid state")
)

// InvalidArgument returns a new error marked as ErrInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidArgument)
}

// InvalidState returns a new error marked as ErrInvalidState.
func InvalidState(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidState)
}

func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}
