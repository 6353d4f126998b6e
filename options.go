package copyout

import (
	"time"

	"github.com/copyout/copyout-go/internal/config"
	interr "github.com/copyout/copyout-go/internal/errors"
)

// Option configures a Dispatcher.
type Option func(*config.Config)

// WithTerminator sets the byte sequence ending each row. The default is "\n".
// The terminator is not included in delivered rows.
func WithTerminator(term []byte) Option {
	return func(c *config.Config) {
		c.Framing = config.FramingTerminator
		c.Terminator = append([]byte{}, term...)
	}
}

// WithCopyDataFraming reads the raw backend message stream of the COPY
// sub-protocol, one CopyData message per row, instead of terminated rows.
func WithCopyDataFraming() Option {
	return func(c *config.Config) {
		c.Framing = config.FramingCopyData
	}
}

// WithMaxRowSize fails the stream with RowTooLarge when a row exceeds n
// bytes. Zero removes the limit.
func WithMaxRowSize(n int) Option {
	return func(c *config.Config) {
		c.MaxRowSize = n
	}
}

// WithInitialCapacity sets the starting size of the stream buffer.
func WithInitialCapacity(n int) Option {
	return func(c *config.Config) {
		c.InitialCapacity = n
	}
}

// WithMinRead sets the smallest free space the buffer keeps before asking the
// source for more bytes.
func WithMinRead(n int) Option {
	return func(c *config.Config) {
		c.MinRead = n
	}
}

// WithNonBlocking makes NextRow return StatusWouldBlock instead of waiting
// for the source.
func WithNonBlocking() Option {
	return func(c *config.Config) {
		c.NonBlocking = true
	}
}

// WithUnterminatedFinalRow delivers bytes left after the last terminator as
// a final row when the source ends. Without it they are a framing violation.
func WithUnterminatedFinalRow() Option {
	return func(c *config.Config) {
		c.AllowUnterminatedFinalRow = true
	}
}

// WithAllocator replaces make for stream buffer allocations.
func WithAllocator(alloc func(n int) []byte) Option {
	return func(c *config.Config) {
		c.Allocator = alloc
	}
}

// WithPollInterval sets how often Drain retries a non-blocking dispatcher
// when the ready channel stays quiet. The default is 100ms.
func WithPollInterval(d time.Duration) Option {
	return func(c *config.Config) {
		c.PollInterval = d
	}
}

// WithDrainTimeout makes Drain return ErrDrainTimeout when the stream has
// not reached a terminal result after d. Zero waits for the context.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *config.Config) {
		c.DrainTimeout = d
	}
}

// ParseOptions converts options given in URL query form, for example
//
//	terminator=%2C&maxRowSize=1048576&nonBlocking=true
//
// into a single Option. Parameters: framing (terminator|copydata),
// terminator, maxRowSize, initialCapacity, minRead, nonBlocking,
// allowUnterminated, pollInterval and drainTimeout (Go durations). The result replaces every setting except the allocator,
// so later options still override it.
func ParseOptions(query string) (Option, error) {
	parsed, err := config.ParseDSNOptions(query)
	if err != nil {
		return nil, interr.WrapErrf(err, "copyout: invalid options %q", query)
	}
	return func(c *config.Config) {
		alloc := c.Allocator
		*c = *parsed.DeepCopy()
		c.Allocator = alloc
	}, nil
}
