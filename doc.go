/*
Package copyout reads the data stream of a COPY ... TO STDOUT statement and
hands each row to a handler through a single reusable buffer.

# Usage

Wrap the connection's byte stream in a Source and create a Dispatcher:

	import (
		"github.com/copyout/copyout-go"
	)

	func main() {
		d, err := copyout.New(copyout.NewReaderSource(conn))
		if err != nil {
			log.Fatal(err)
		}
		defer d.Close()

		res := d.RunToCompletion(copyout.HandlerFunc(func(row []byte) error {
			_, err := os.Stdout.Write(row)
			return err
		}))
		if res.Status == copyout.StatusFailed {
			log.Fatal(res.Err)
		}
	}

The row passed to the handler aliases the dispatcher's buffer. It does not
include the terminator and is only valid until the handler returns. A handler
returning an error stops the stream; no further bytes are read.

For PostgreSQL connections see package pgsource, which runs the statement
through github.com/jackc/pgx/v5/pgconn.

# Results

NextRow delivers at most one row and reports one of:

  - StatusDelivered: the handler was called once with a row of Result.N bytes
  - StatusWouldBlock: non-blocking mode only, no complete row is buffered
  - StatusEndOfStream: the server finished sending rows
  - StatusFailed: Result.Reason and Result.Err describe the failure

EndOfStream and Failed are terminal. Every later call returns the same result
without touching the source.

GetCopyData is the classic interface returning a newly allocated copy of each
row. It reports exactly the same rows and results as NextRow.

# Options

Supported functional options include:

  - WithTerminator(<term> []byte): Sets the row terminator. Default is "\n"
  - WithCopyDataFraming(): Reads raw backend messages, one CopyData message per row
  - WithMaxRowSize(<n> int): Fails the stream when a row exceeds n bytes. Default is unbounded
  - WithInitialCapacity(<n> int): Sets the starting buffer size. Default is 8 KiB
  - WithMinRead(<n> int): Sets the smallest read requested from the source. Default is 512
  - WithNonBlocking(): Returns StatusWouldBlock instead of waiting for the source
  - WithUnterminatedFinalRow(): Delivers trailing bytes without a terminator as a last row
  - WithAllocator(<alloc> func(int) []byte): Replaces make for buffer allocations

The same settings can be given in URL query form with ParseOptions:

	opt, err := copyout.ParseOptions("terminator=%2C&maxRowSize=1048576")

# Non-blocking reads

PumpSource reads an io.Reader on a background goroutine. With WithNonBlocking
the dispatcher never waits; retry after Ready fires, or let Drain do it:

	src := copyout.NewPumpSource(ctx, conn, 0)
	d, err := copyout.New(src, copyout.WithNonBlocking())
	...
	res, err := d.Drain(ctx, handler, src.Ready())

# Errors

Failed results carry errors implementing errors.CopyError from
github.com/copyout/copyout-go/errors. Use errors.Is with the sentinel values
HandlerAborted, RowTooLarge, FramingViolation, IOError and ServerError, or
errors.As with the matching interfaces for details such as the size limit or
the SQLSTATE.

# Logging

Logging uses github.com/rs/zerolog through package logger. The default level
is warn; use logger.SetLogLevel to change it. Connection and correlation ids
set with package copyctx are added to log lines and errors.

# Metrics

Package metrics exposes dispatcher statistics as a prometheus.Collector.
*/
package copyout
