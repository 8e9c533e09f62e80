package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArg      = errors.New("invalid argument")
	ErrInvalidFunction = errors.New("invalid function")
	ErrInternalError   = errors.New("internal server error")
)

// CheckError converts a non-Ok result code into an error that callers can
// test with errors.Is.
func CheckError(r ResultCode) error {
	switch r {
	case ResultOk:
		return nil
	case ResultInvalidArg:
		return ErrInvalidArg
	case ResultServerInvalidFunction:
		return ErrInvalidFunction
	case ResultServerInternalError:
		return ErrInternalError
	}
	return fmt.Errorf("%w: %d", ErrUnknownResult, uint64(r))
}
