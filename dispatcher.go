package copyout

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/copyout/copyout-go/copyctx"
	"github.com/copyout/copyout-go/internal/buffer"
	"github.com/copyout/copyout-go/internal/config"
	interr "github.com/copyout/copyout-go/internal/errors"
	"github.com/copyout/copyout-go/internal/framing"
	"github.com/copyout/copyout-go/internal/sentinel"
	"github.com/copyout/copyout-go/logger"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// ErrDispatcherClosed is the cause reported by NextRow after Close.
var ErrDispatcherClosed = errors.New("copyout: dispatcher closed")

// ErrDrainTimeout is returned by Drain when the timeout set with
// WithDrainTimeout expires first.
var ErrDrainTimeout = sentinel.ErrTimeout

// A blocking source returning (0, nil) this many times in a row is broken.
const maxConsecutiveEmptyReads = 100

// State is the lifecycle state of a Dispatcher.
type State int32

const (
	StateActive State = iota
	StateEndOfData
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StateEndOfData:
		return "EndOfData"
	case StateErrored:
		return "Errored"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Stats is a snapshot of dispatcher counters. It is safe to take from a
// goroutine other than the one driving the dispatcher.
type Stats struct {
	Rows        int64
	Bytes       int64
	Reads       int64
	Capacity    int64
	Grows       int64
	Compactions int64
	State       State
	Reason      Reason
}

// Dispatcher reassembles rows from a Source and hands each one to a Handler
// through a single reusable buffer.
//
// A Dispatcher is bound to one COPY operation and must be driven by one
// goroutine at a time.
type Dispatcher struct {
	ctx    context.Context
	src    Source
	cfg    *config.Config
	framer framing.Framer
	buf    *buffer.StreamBuffer
	log    *logger.CopyLogger

	// length of the pending prefix already scanned without finding a boundary
	scanned int
	// the source has reported io.EOF or srcErr
	srcDone bool
	srcErr  error
	// stream offset of the consumed mark
	offset int64

	final  Result
	closed bool

	state  atomic.Int32
	reason atomic.Int32
	rows   atomic.Int64
	bytes  atomic.Int64
	reads  atomic.Int64
}

// New creates a Dispatcher reading from src. Without options rows are
// terminated by "\n", the buffer starts at 8 KiB, rows are unbounded and
// reads block.
func New(src Source, opts ...Option) (*Dispatcher, error) {
	return NewWithContext(context.Background(), src, opts...)
}

// NewWithContext is New with a context carrying the connection and
// correlation ids (see package copyctx) reported in logs and errors. The
// context does not cancel reads; cancel through the handler or the source.
func NewWithContext(ctx context.Context, src Source, opts ...Option) (*Dispatcher, error) {
	if src == nil {
		return nil, errors.New("copyout: nil source")
	}

	cfg := config.WithDefaults()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, interr.WrapErr(err, "copyout: invalid options")
	}

	framer, err := newFramer(cfg)
	if err != nil {
		return nil, interr.WrapErr(err, "copyout: invalid options")
	}

	d := &Dispatcher{
		ctx:    copyctx.NewContextFromBackground(ctx),
		src:    src,
		cfg:    cfg,
		framer: framer,
		buf:    buffer.New(cfg.InitialCapacity, cfg.Allocator),
		log:    logger.WithContext(copyctx.ConnIdFromContext(ctx), copyctx.CorrelationIdFromContext(ctx)),
	}
	d.log.Debug().Msgf("copyout: dispatcher created: %s", cfg)
	return d, nil
}

func newFramer(cfg *config.Config) (framing.Framer, error) {
	switch cfg.Framing {
	case config.FramingCopyData:
		return framing.CopyData(), nil
	default:
		return framing.Terminator(cfg.Terminator)
	}
}

// NextRow delivers at most one row to h.
//
// On StatusDelivered h has been called exactly once with the row, which
// excludes the terminator. StatusWouldBlock is only returned in non-blocking
// mode. Once a terminal result has been returned every later call returns the
// same result without touching the source. A nil h discards the row.
func (d *Dispatcher) NextRow(h Handler) Result {
	if State(d.state.Load()) != StateActive {
		return d.final
	}
	if h == nil {
		h = discard{}
	}

	emptyReads := 0
	for {
		data := d.buf.Pending()
		f, err := d.framer.Next(data, d.scanned)
		if err != nil {
			return d.framingResult(f, err)
		}
		if f.Advance > 0 {
			if f.Skip {
				if f.Notice != nil {
					d.log.Info().Msgf("copyout: server notice: %s: %s (SQLSTATE %s)", f.Notice.Severity, f.Notice.Message, f.Notice.Code)
				}
				d.consume(f.Advance)
				continue
			}
			return d.dispatch(h, data, f)
		}
		d.scanned = len(data)

		if limit := d.cfg.MaxRowSize; limit > 0 {
			if size, isRow := d.framer.Partial(data); isRow && size > limit {
				return d.fail(interr.NewRowTooLarge(d.ctx, d.rows.Load(), limit, size))
			}
		}

		if d.srcDone {
			if d.srcErr != nil {
				return d.fail(d.sourceError(d.srcErr))
			}
			return d.finishStream(h, data)
		}

		d.buf.Reserve(d.cfg.MinRead)
		tail := d.buf.Tail()
		n, err := d.src.ReadMore(tail, !d.cfg.NonBlocking)
		d.reads.Add(1)
		if n < 0 || n > len(tail) {
			return d.fail(interr.NewIOError(d.ctx, interr.ErrSourceRead, errors.Errorf("invalid read count %d", n), d.rows.Load()))
		}
		d.buf.Commit(n)

		switch {
		case err == io.EOF:
			d.srcDone = true
		case err != nil:
			// rows completed by this read are delivered before the failure
			d.srcDone = true
			d.srcErr = err
		case n == 0:
			if d.cfg.NonBlocking {
				return wouldBlock
			}
			emptyReads++
			if emptyReads >= maxConsecutiveEmptyReads {
				return d.fail(interr.NewIOError(d.ctx, interr.ErrNoProgress, io.ErrNoProgress, d.rows.Load()))
			}
		default:
			emptyReads = 0
		}
	}
}

// RunToCompletion calls NextRow until it returns something other than
// StatusDelivered and returns that result. In non-blocking mode this may be
// StatusWouldBlock; call again once the source is readable.
func (d *Dispatcher) RunToCompletion(h Handler) Result {
	for {
		res := d.NextRow(h)
		if res.Status != StatusDelivered {
			return res
		}
	}
}

// Drain runs a dispatcher to a terminal result, retrying StatusWouldBlock
// whenever ready fires or the poll interval elapses. ready is typically
// PumpSource.Ready and may be nil. If ctx ends first Drain returns the last
// result together with ctx.Err(); after WithDrainTimeout it returns
// ErrDrainTimeout. The dispatcher stays usable in both cases.
func (d *Dispatcher) Drain(ctx context.Context, h Handler, ready <-chan struct{}) (Result, error) {
	var last Result
	s := sentinel.Sentinel{
		Ready: ready,
		StatusFn: func() (bool, error) {
			last = d.RunToCompletion(h)
			return last.Terminal(), nil
		},
		OnCancelFn: func() error {
			d.log.Debug().Msgf("copyout: drain canceled after %d rows", d.rows.Load())
			return nil
		},
	}
	status, err := s.Watch(ctx, d.cfg.PollInterval, d.cfg.DrainTimeout)
	if status != sentinel.WatchSuccess {
		d.log.Debug().Msgf("copyout: drain stopped: %s", status)
		return last, err
	}
	return last, nil
}

// GetCopyData is the classic API: it returns each row in a newly allocated
// slice owned by the caller. It yields the same rows and results as NextRow.
func (d *Dispatcher) GetCopyData() ([]byte, Result) {
	var row []byte
	res := d.NextRow(HandlerFunc(func(b []byte) error {
		row = make([]byte, len(b))
		copy(row, b)
		return nil
	}))
	return row, res
}

func (d *Dispatcher) dispatch(h Handler, data []byte, f framing.Frame) Result {
	n := f.End - f.Start
	if limit := d.cfg.MaxRowSize; limit > 0 && n > limit {
		return d.fail(interr.NewRowTooLarge(d.ctx, d.rows.Load(), limit, n))
	}

	// capacity is clipped so appends by the handler cannot reach the next row
	herr := h.HandleRow(data[f.Start:f.End:f.End])
	d.consume(f.Advance)
	rows := d.rows.Add(1)
	d.bytes.Add(int64(n))

	if herr != nil {
		return d.fail(interr.NewHandlerAborted(d.ctx, rows, herr))
	}
	return delivered(n)
}

func (d *Dispatcher) consume(n int) {
	d.buf.Consume(n)
	d.scanned = 0
	d.offset += int64(n)
}

func (d *Dispatcher) framingResult(f framing.Frame, err error) Result {
	if errors.Is(err, framing.ErrCopyDone) {
		d.consume(f.Advance)
		return d.end()
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		d.consume(f.Advance)
		return d.fail(interr.NewPgServerError(d.ctx, pgErr, d.rows.Load()))
	}

	return d.fail(interr.NewFramingViolation(d.ctx, interr.ErrInvalidFramedStream, err, d.rows.Load(), d.offset))
}

// finishStream handles the bytes left once the source has ended.
func (d *Dispatcher) finishStream(h Handler, data []byte) Result {
	f, err := d.framer.Final(data)
	switch {
	case err != nil:
		return d.fail(interr.NewFramingViolation(d.ctx, interr.ErrInvalidFramedStream, err, d.rows.Load(), d.offset))
	case f.Advance == 0:
		return d.end()
	case !d.cfg.AllowUnterminatedFinalRow:
		msg := fmt.Sprintf("%s (%d bytes)", interr.ErrUnterminatedRow, len(data))
		return d.fail(interr.NewFramingViolation(d.ctx, msg, nil, d.rows.Load(), d.offset))
	default:
		return d.dispatch(h, data, f)
	}
}

func (d *Dispatcher) sourceError(err error) error {
	if interr.IsCopyError(err) {
		return err
	}
	return interr.NewIOError(d.ctx, interr.ErrSourceRead, err, d.rows.Load())
}

func (d *Dispatcher) end() Result {
	d.final = endOfStream
	d.state.Store(int32(StateEndOfData))
	d.buf.Release()
	d.log.Debug().Msgf("copyout: end of stream after %d rows, %d bytes", d.rows.Load(), d.bytes.Load())
	return d.final
}

func (d *Dispatcher) fail(err error) Result {
	d.final = failed(err)
	d.state.Store(int32(StateErrored))
	d.reason.Store(int32(d.final.Reason))
	d.buf.Release()
	ev := d.log.Error()
	if d.final.Reason == ReasonHandlerAborted {
		// the caller stopped the stream
		ev = d.log.Debug()
	}
	ev.Err(err).Msgf("copyout: stream failed after %d rows", d.rows.Load())
	return d.final
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

func (d *Dispatcher) Stats() Stats {
	bs := d.buf.Stats()
	return Stats{
		Rows:        d.rows.Load(),
		Bytes:       d.bytes.Load(),
		Reads:       d.reads.Load(),
		Capacity:    bs.Capacity,
		Grows:       bs.Grows,
		Compactions: bs.Compactions,
		State:       State(d.state.Load()),
		Reason:      Reason(d.reason.Load()),
	}
}

// Close releases the buffer and closes the source if it is an io.Closer.
// An active stream becomes Errored with ErrDispatcherClosed as the cause.
func (d *Dispatcher) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	if State(d.state.Load()) == StateActive {
		d.final = failed(interr.NewIOError(d.ctx, interr.ErrReadAfterClose, ErrDispatcherClosed, d.rows.Load()))
		d.state.Store(int32(StateErrored))
		d.reason.Store(int32(d.final.Reason))
		d.buf.Release()
	}

	if c, ok := d.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
