package errors

import (
	"context"
	"fmt"

	"github.com/copyout/copyout-go/copyctx"
	copyerr "github.com/copyout/copyout-go/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// Error messages
const (
	ErrHandlerAborted      = "handler aborted the stream"
	ErrRowTooLarge         = "row exceeds maximum row size"
	ErrUnterminatedRow     = "stream ended inside an unterminated row"
	ErrSourceRead          = "failed to read from source"
	ErrNoProgress          = "source returned no data and no error repeatedly"
	ErrReadAfterClose      = "stream closed by caller"
	ErrServerAbortedCopy   = "server aborted the copy"
	ErrInvalidFramedStream = "invalid copy stream"
)

type copyError struct {
	err           error
	correlationId string
	connectionId  string
	rowNumber     int64
	errType       string
}

var _ error = (*copyError)(nil)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func newCopyError(ctx context.Context, msg string, err error, rowNumber int64) copyError {
	// create an error with the new message
	if err == nil {
		err = errors.New(msg)
	} else {
		err = errors.WithMessage(err, msg)
	}

	// if the source error does not have a stack trace in its
	// error chain add a stack trace
	var st stackTracer
	if ok := errors.As(err, &st); !ok {
		err = errors.WithStack(err)
	}

	return copyError{
		err:           err,
		correlationId: copyctx.CorrelationIdFromContext(ctx),
		connectionId:  copyctx.ConnIdFromContext(ctx),
		rowNumber:     rowNumber,
		errType:       "unknown",
	}
}

func (e copyError) Error() string {
	return fmt.Sprintf("copyout: %s: %s", e.errType, e.err.Error())
}

func (e copyError) Cause() error {
	return e.err
}

func (e copyError) StackTrace() errors.StackTrace {
	var st stackTracer
	if ok := errors.As(e.err, &st); ok {
		return st.StackTrace()
	}

	return nil
}

func (e copyError) CorrelationId() string {
	return e.correlationId
}

func (e copyError) ConnectionId() string {
	return e.connectionId
}

func (e copyError) RowNumber() int64 {
	return e.rowNumber
}

// handlerAborted is returned when the row handler stops the stream
type handlerAborted struct {
	copyError
}

var _ copyerr.CopyHandlerAborted = (*handlerAborted)(nil)

func (e handlerAborted) Is(err error) bool {
	return err == copyerr.HandlerAborted
}

func (e handlerAborted) Unwrap() error {
	return e.err
}

func NewHandlerAborted(ctx context.Context, rowNumber int64, err error) *handlerAborted {
	cErr := newCopyError(ctx, ErrHandlerAborted, err, rowNumber)
	cErr.errType = "handler aborted"
	return &handlerAborted{copyError: cErr}
}

// rowTooLarge protects against rows growing the buffer without bound
type rowTooLarge struct {
	copyError
	limit int
	size  int
}

var _ copyerr.CopyRowTooLarge = (*rowTooLarge)(nil)

func (e rowTooLarge) Is(err error) bool {
	return err == copyerr.RowTooLarge
}

func (e rowTooLarge) Unwrap() error {
	return e.err
}

func (e rowTooLarge) Limit() int {
	return e.limit
}

func (e rowTooLarge) Size() int {
	return e.size
}

func NewRowTooLarge(ctx context.Context, rowNumber int64, limit, size int) *rowTooLarge {
	cErr := newCopyError(ctx, fmt.Sprintf("%s: %d > %d bytes", ErrRowTooLarge, size, limit), nil, rowNumber)
	cErr.errType = "row too large"
	return &rowTooLarge{copyError: cErr, limit: limit, size: size}
}

// framingViolation is returned when the stream does not follow the expected framing
type framingViolation struct {
	copyError
	offset int64
}

var _ copyerr.CopyFramingViolation = (*framingViolation)(nil)

func (e framingViolation) Is(err error) bool {
	return err == copyerr.FramingViolation
}

func (e framingViolation) Unwrap() error {
	return e.err
}

func (e framingViolation) Offset() int64 {
	return e.offset
}

func NewFramingViolation(ctx context.Context, msg string, err error, rowNumber, offset int64) *framingViolation {
	cErr := newCopyError(ctx, msg, err, rowNumber)
	cErr.errType = "framing violation"
	return &framingViolation{copyError: cErr, offset: offset}
}

// ioError wraps failures of the byte source
type ioError struct {
	copyError
}

var _ copyerr.CopyIOError = (*ioError)(nil)

func (e ioError) Is(err error) bool {
	return err == copyerr.IOError
}

func (e ioError) Unwrap() error {
	return e.err
}

func NewIOError(ctx context.Context, msg string, err error, rowNumber int64) *ioError {
	cErr := newCopyError(ctx, msg, err, rowNumber)
	cErr.errType = "io error"
	return &ioError{copyError: cErr}
}

// serverError carries the fields of an ErrorResponse sent in place of the remaining rows
type serverError struct {
	copyError
	severity string
	sqlState string
	detail   string
}

var _ copyerr.CopyServerError = (*serverError)(nil)

func (e serverError) Is(err error) bool {
	return err == copyerr.ServerError
}

func (e serverError) Unwrap() error {
	return e.err
}

func (e serverError) Severity() string {
	return e.severity
}

func (e serverError) SqlState() string {
	return e.sqlState
}

func (e serverError) Detail() string {
	return e.detail
}

// ServerFields is the subset of ErrorResponse fields kept on a server error.
type ServerFields struct {
	Severity string
	SqlState string
	Message  string
	Detail   string
}

func NewServerError(ctx context.Context, fields ServerFields, err error, rowNumber int64) *serverError {
	msg := ErrServerAbortedCopy
	if fields.Message != "" {
		msg = fmt.Sprintf("%s: %s (SQLSTATE %s)", ErrServerAbortedCopy, fields.Message, fields.SqlState)
	}
	cErr := newCopyError(ctx, msg, err, rowNumber)
	cErr.errType = "server error"
	return &serverError{
		copyError: cErr,
		severity:  fields.Severity,
		sqlState:  fields.SqlState,
		detail:    fields.Detail,
	}
}

// NewPgServerError keeps pgErr as the cause so errors.As still reaches the
// *pgconn.PgError; its text already carries the message and SQLSTATE.
func NewPgServerError(ctx context.Context, pgErr *pgconn.PgError, rowNumber int64) *serverError {
	fields := ServerFields{
		Severity: pgErr.Severity,
		SqlState: pgErr.Code,
		Detail:   pgErr.Detail,
	}
	return NewServerError(ctx, fields, pgErr, rowNumber)
}

// IsCopyError reports whether err was already built by this package, so
// callers do not wrap it twice.
func IsCopyError(err error) bool {
	var ce copyerr.CopyError
	return errors.As(err, &ce)
}

// wraps an error and adds trace if not already present
func WrapErr(err error, msg string) error {
	var st stackTracer
	if ok := errors.As(err, &st); ok {
		// wrap passed in error in a new error with the message
		return errors.WithMessage(err, msg)
	}

	// wrap passed in error in errors with the message and a stack trace
	return errors.Wrap(err, msg)
}

// adds a stack trace if not already present
func WrapErrf(err error, format string, args ...interface{}) error {
	var st stackTracer
	if ok := errors.As(err, &st); ok {
		// wrap passed in error in a new error with the formatted message
		return errors.WithMessagef(err, format, args...)
	}

	// wrap passed in error in errors with the formatted message and a stack trace
	return errors.Wrapf(err, format, args...)
}
