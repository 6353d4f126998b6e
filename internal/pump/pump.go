// Package pump moves bytes produced on a background goroutine to a single
// consumer that may poll without blocking.
package pump

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultDepth     = 8
	DefaultChunkSize = 32 * 1024
)

// Pump is fed by exactly one producer started with Go or GoReader and read by
// one consumer through ReadMore.
type Pump struct {
	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group

	chunks    chan []byte
	free      chan []byte
	ready     chan struct{}
	chunkSize int

	// producer side
	fill []byte

	// consumer side
	cur      []byte
	off      int
	finished bool

	// set by the producer before chunks is closed
	err error
}

func New(ctx context.Context, depth, chunkSize int) *Pump {
	if depth < 1 {
		depth = DefaultDepth
	}
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	return &Pump{
		ctx:       ctx,
		cancel:    cancel,
		g:         g,
		chunks:    make(chan []byte, depth),
		free:      make(chan []byte, depth+2),
		ready:     make(chan struct{}, 1),
		chunkSize: chunkSize,
	}
}

// Go runs fn as the producer. Everything fn writes to w reaches the consumer
// in order; fn's return value becomes the error reported after the last byte.
func (p *Pump) Go(fn func(ctx context.Context, w io.Writer) error) {
	p.g.Go(func() error {
		err := fn(p.ctx, writerFunc(p.write))
		p.finish(err)
		return err
	})
}

// GoReader runs a producer that copies r until io.EOF. If r is an io.Closer
// it is closed when the pump is cancelled, unblocking a pending Read.
func (p *Pump) GoReader(r io.Reader) {
	p.g.Go(func() error {
		if c, ok := r.(io.Closer); ok {
			stop := context.AfterFunc(p.ctx, func() { _ = c.Close() })
			defer stop()
		}
		err := p.readFrom(r)
		p.finish(err)
		return err
	})
}

func (p *Pump) readFrom(r io.Reader) error {
	for {
		buf := p.getBuf()
		n, err := r.Read(buf)
		if n > 0 {
			if serr := p.send(buf[:n]); serr != nil {
				return serr
			}
		} else {
			p.putBuf(buf)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if cerr := p.ctx.Err(); cerr != nil {
				return cerr
			}
			return err
		}
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// write copies b because writers such as pgconn reuse their buffers. The
// copy is queued before write returns so a stalled producer never holds back
// bytes it has already written.
func (p *Pump) write(b []byte) (int, error) {
	written := 0
	for len(b) > 0 {
		if p.fill == nil {
			p.fill = p.getBuf()[:0]
		}
		n := copy(p.fill[len(p.fill):cap(p.fill)], b)
		p.fill = p.fill[:len(p.fill)+n]
		b = b[n:]
		written += n

		if err := p.flush(); err != nil {
			return written, err
		}
	}
	return written, nil
}

func (p *Pump) flush() error {
	if len(p.fill) == 0 {
		return nil
	}
	c := p.fill
	p.fill = nil
	return p.send(c)
}

func (p *Pump) send(c []byte) error {
	select {
	case p.chunks <- c:
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
	p.signal()
	return nil
}

func (p *Pump) finish(err error) {
	p.err = err
	close(p.chunks)
	p.signal()
}

func (p *Pump) signal() {
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

func (p *Pump) getBuf() []byte {
	select {
	case b := <-p.free:
		return b[:cap(b)]
	default:
		return make([]byte, p.chunkSize)
	}
}

func (p *Pump) putBuf(b []byte) {
	if cap(b) != p.chunkSize {
		return
	}
	select {
	case p.free <- b:
	default:
	}
}

// ReadMore copies up to len(dst) bytes. Without blocking it returns (0, nil)
// when nothing is queued. io.EOF follows the last byte of a producer that
// returned nil; otherwise the producer's error is returned.
func (p *Pump) ReadMore(dst []byte, blocking bool) (int, error) {
	if p.off >= len(p.cur) {
		if p.finished {
			return 0, p.finalErr()
		}
		if p.cur != nil {
			p.putBuf(p.cur)
			p.cur, p.off = nil, 0
		}

		var c []byte
		var ok bool
		if blocking {
			c, ok = <-p.chunks
		} else {
			select {
			case c, ok = <-p.chunks:
			default:
				return 0, nil
			}
		}
		if !ok {
			p.finished = true
			return 0, p.finalErr()
		}
		p.cur = c
	}

	n := copy(dst, p.cur[p.off:])
	p.off += n
	return n, nil
}

func (p *Pump) finalErr() error {
	if p.err == nil {
		return io.EOF
	}
	return p.err
}

// Ready receives a value whenever new data or the end of the stream may be
// available. It is a level hint; ReadMore may still return (0, nil).
func (p *Pump) Ready() <-chan struct{} {
	return p.ready
}

// Wait blocks until the producer has returned and reports its error.
func (p *Pump) Wait() error {
	return p.g.Wait()
}

// Close stops the producer and waits for it. Cancellation caused by Close is
// not reported as an error.
func (p *Pump) Close() error {
	p.cancel()
	err := p.g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
