package errors

import "github.com/pkg/errors"

// value to be used with errors.Is() to determine if an error chain contains a handler abort
var HandlerAborted error = errors.New("Handler Aborted")

// value to be used with errors.Is() to determine if an error chain contains an oversized row
var RowTooLarge error = errors.New("Row Too Large")

// value to be used with errors.Is() to determine if an error chain contains a framing violation
var FramingViolation error = errors.New("Framing Violation")

// value to be used with errors.Is() to determine if an error chain contains an I/O error from the byte source
var IOError error = errors.New("IO Error")

// value to be used with errors.Is() to determine if an error chain contains an error reported by the server
var ServerError error = errors.New("Server Error")

// Base interface for copy errors
type CopyError interface {
	// Descriptive message describing the error
	Error() string

	// User specified id to track what happens under a request.
	// Appears in log messages as field corrId.  See copyctx.NewContextWithCorrelationId()
	CorrelationId() string

	// Id of the connection the COPY stream was read from.
	// Appears in log messages as field connId.
	ConnectionId() string

	// Number of rows delivered before the failure occurred, -1 when the
	// failure was detected outside the dispatcher.
	RowNumber() int64

	// Stack trace associated with the error.  May be nil.
	StackTrace() errors.StackTrace

	// Underlying causative error. May be nil.
	Cause() error
}

// The handler returned an error and the stream was abandoned.
type CopyHandlerAborted interface {
	CopyError
}

// A row exceeded the configured maximum row size.
type CopyRowTooLarge interface {
	CopyError

	// Configured maximum row size in bytes.
	Limit() int

	// Number of bytes seen for the offending row. For an unterminated row this
	// is a lower bound.
	Size() int
}

// The byte stream did not follow the expected framing.
type CopyFramingViolation interface {
	CopyError

	// Offset of the offending bytes relative to the start of the stream.
	Offset() int64
}

// The byte source failed.
type CopyIOError interface {
	CopyError
}

// The server aborted the COPY with an ErrorResponse.
type CopyServerError interface {
	CopyError

	Severity() string

	// Portable SQLSTATE error code.
	SqlState() string

	Detail() string
}
