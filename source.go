package copyout

import (
	"context"
	"io"

	"github.com/copyout/copyout-go/internal/pump"
	"github.com/pkg/errors"
)

// ErrNonBlockingUnsupported is returned by sources that can only block.
var ErrNonBlockingUnsupported = errors.New("copyout: source does not support non-blocking reads")

// Source is the byte stream of an active COPY OUT, usually backed by the
// database connection.
//
// ReadMore copies up to len(dst) bytes into dst. It returns io.EOF once the
// server has finished sending data (possibly together with the last bytes)
// and any other error on failure. With blocking false it may return (0, nil)
// when no data has arrived yet.
type Source interface {
	ReadMore(dst []byte, blocking bool) (int, error)
}

// ReaderSource reads a COPY stream from an io.Reader, for example a net.Conn
// or a file holding captured output. It only supports blocking reads.
type ReaderSource struct {
	r io.Reader
}

var _ Source = (*ReaderSource)(nil)

func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r}
}

func (s *ReaderSource) ReadMore(dst []byte, blocking bool) (int, error) {
	if !blocking {
		return 0, ErrNonBlockingUnsupported
	}
	return s.r.Read(dst)
}

// Close closes the underlying reader when it is an io.Closer.
func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// PumpSource reads an io.Reader on a background goroutine so that the
// dispatcher can poll it without blocking. Ready signals when polling again
// may make progress.
type PumpSource struct {
	p *pump.Pump
}

var _ Source = (*PumpSource)(nil)

// NewPumpSource starts reading r. depth bounds the number of chunks buffered
// ahead of the consumer; zero picks a default.
func NewPumpSource(ctx context.Context, r io.Reader, depth int) *PumpSource {
	p := pump.New(ctx, depth, pump.DefaultChunkSize)
	p.GoReader(r)
	return &PumpSource{p: p}
}

func (s *PumpSource) ReadMore(dst []byte, blocking bool) (int, error) {
	return s.p.ReadMore(dst, blocking)
}

func (s *PumpSource) Ready() <-chan struct{} {
	return s.p.Ready()
}

// Close stops the background reader and waits for it to exit.
func (s *PumpSource) Close() error {
	return s.p.Close()
}
