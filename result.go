package copyout

import (
	"fmt"

	copyerr "github.com/copyout/copyout-go/errors"
	"github.com/pkg/errors"
)

// Status is the outcome of a single NextRow call.
type Status int

const (
	// A row was found and handed to the handler.
	StatusDelivered Status = iota
	// Non-blocking mode only: no complete row is buffered yet.
	StatusWouldBlock
	// The server finished sending rows. Terminal.
	StatusEndOfStream
	// The stream failed. Terminal.
	StatusFailed
)

var statusNames = []string{"Delivered", "WouldBlock", "EndOfStream", "Failed"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Reason classifies a failed result.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonHandlerAborted
	ReasonRowTooLarge
	ReasonFramingViolation
	ReasonIOError
	ReasonServerError
)

var reasonNames = []string{"None", "HandlerAborted", "RowTooLarge", "FramingViolation", "IOError", "ServerError"}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return fmt.Sprintf("Reason(%d)", int(r))
	}
	return reasonNames[r]
}

// reasonOf maps an error built by internal/errors to its Reason.
func reasonOf(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, copyerr.HandlerAborted):
		return ReasonHandlerAborted
	case errors.Is(err, copyerr.RowTooLarge):
		return ReasonRowTooLarge
	case errors.Is(err, copyerr.FramingViolation):
		return ReasonFramingViolation
	case errors.Is(err, copyerr.ServerError):
		return ReasonServerError
	default:
		return ReasonIOError
	}
}

// Result is the tagged outcome of NextRow.
//
// N is the length of the delivered row and is only meaningful for
// StatusDelivered. Reason and Err are set only for StatusFailed.
type Result struct {
	Status Status
	N      int
	Reason Reason
	Err    error
}

func delivered(n int) Result {
	return Result{Status: StatusDelivered, N: n}
}

func failed(err error) Result {
	return Result{Status: StatusFailed, Reason: reasonOf(err), Err: err}
}

var (
	wouldBlock  = Result{Status: StatusWouldBlock}
	endOfStream = Result{Status: StatusEndOfStream}
)

// Terminal reports whether no further rows can follow this result.
func (r Result) Terminal() bool {
	return r.Status == StatusEndOfStream || r.Status == StatusFailed
}

func (r Result) String() string {
	switch r.Status {
	case StatusDelivered:
		return fmt.Sprintf("Delivered(%d)", r.N)
	case StatusFailed:
		return fmt.Sprintf("Failed(%s): %v", r.Reason, r.Err)
	default:
		return r.Status.String()
	}
}
