package protocol

import (
	"errors"
	"fmt"
)

// BadHandleMessage is the err text a worker returns when a handle no longer
// refers to a live window.
const BadHandleMessage = "bad hwnd"

var (
	// ErrBadHandle means the target window is gone. Not retried.
	ErrBadHandle = errors.New(BadHandleMessage)

	// ErrUnknownOp is returned for an op outside the catalogue.
	ErrUnknownOp = errors.New("unknown op")

	// ErrMalformed is matched by every *DecodeError.
	ErrMalformed = errors.New("malformed protocol line")
)

const maxQuotedLine = 200

// DecodeError describes a line that failed schema validation.
type DecodeError struct {
	Line string
	Err  error
}

func newDecodeError(line []byte, err error) *DecodeError {
	s := string(line)
	if len(s) > maxQuotedLine {
		s = s[:maxQuotedLine]
	}
	return &DecodeError{Line: s, Err: err}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("bad json: %v: %s", e.Err, e.Line)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrMalformed }
