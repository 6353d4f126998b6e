// Package pgsource feeds a copyout Dispatcher from a PostgreSQL connection
// using the COPY sub-protocol support of github.com/jackc/pgx/v5/pgconn.
//
// pgconn strips the CopyData message framing and writes the payloads in
// order, so the text and CSV formats are read with the default "\n"
// terminator:
//
//	conn, err := pgconn.Connect(ctx, os.Getenv("DATABASE_URL"))
//	...
//	src := pgsource.CopyTo(ctx, conn, "COPY orders TO STDOUT")
//	d, err := copyout.NewWithContext(src.Context(), src, copyout.WithMaxRowSize(1<<20))
//	...
//	res := d.RunToCompletion(handler)
//	tag, err := src.Wait()
package pgsource

import (
	"context"
	"io"
	"strconv"

	"github.com/copyout/copyout-go/copyctx"
	interr "github.com/copyout/copyout-go/internal/errors"
	"github.com/copyout/copyout-go/internal/pump"
	"github.com/copyout/copyout-go/logger"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// copier is the part of *pgconn.PgConn the source needs.
type copier interface {
	CopyTo(ctx context.Context, w io.Writer, sql string) (pgconn.CommandTag, error)
}

// Source is a copyout.Source reading the rows of one COPY ... TO STDOUT
// statement. It supports blocking and non-blocking reads.
type Source struct {
	ctx context.Context
	p   *pump.Pump

	// written by the producer before the pump finishes
	tag pgconn.CommandTag
}

type Option func(*settings)

type settings struct {
	depth     int
	chunkSize int
}

// WithDepth bounds the number of chunks read ahead of the dispatcher.
func WithDepth(n int) Option {
	return func(s *settings) {
		s.depth = n
	}
}

// WithChunkSize sets the size of the chunks CopyData payloads are packed into.
func WithChunkSize(n int) Option {
	return func(s *settings) {
		s.chunkSize = n
	}
}

// CopyTo starts sql, which must be a COPY ... TO STDOUT statement, on conn.
// The connection is busy until Wait returns. Closing the source before the
// copy finished cancels the statement; pgconn then closes the connection.
//
// When ctx carries no connection id the backend process id is used, and a
// callback registered with copyctx.NewContextWithConnIdCallback receives it.
func CopyTo(ctx context.Context, conn *pgconn.PgConn, sql string, opts ...Option) *Source {
	return newSource(withConnId(ctx, conn.PID()), conn, sql, opts...)
}

func withConnId(ctx context.Context, pid uint32) context.Context {
	if copyctx.ConnIdFromContext(ctx) != "" {
		return ctx
	}
	return copyctx.NewContextWithConnId(ctx, strconv.FormatUint(uint64(pid), 10))
}

func newSource(ctx context.Context, c copier, sql string, opts ...Option) *Source {
	var st settings
	for _, opt := range opts {
		opt(&st)
	}

	s := &Source{
		ctx: ctx,
		p:   pump.New(ctx, st.depth, st.chunkSize),
	}
	log := logger.WithContext(copyctx.ConnIdFromContext(ctx), copyctx.CorrelationIdFromContext(ctx))

	s.p.Go(func(ctx context.Context, w io.Writer) error {
		log.Debug().Msgf("pgsource: starting %q", sql)
		tag, err := c.CopyTo(ctx, w, sql)
		s.tag = tag
		if err != nil {
			return s.convertError(err)
		}
		log.Debug().Msgf("pgsource: %s", tag)
		return nil
	})
	return s
}

// convertError turns a server ErrorResponse into a copyout server error;
// anything else is left for the dispatcher to report as an I/O error.
func (s *Source) convertError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	return interr.NewPgServerError(s.ctx, pgErr, -1)
}

// Context returns the context the source was started with, including the
// connection id, for use with copyout.NewWithContext.
func (s *Source) Context() context.Context {
	return s.ctx
}

func (s *Source) ReadMore(dst []byte, blocking bool) (int, error) {
	return s.p.ReadMore(dst, blocking)
}

// Ready signals that ReadMore may make progress.
func (s *Source) Ready() <-chan struct{} {
	return s.p.Ready()
}

// Wait blocks until the statement has finished and returns its command tag.
func (s *Source) Wait() (pgconn.CommandTag, error) {
	if err := s.p.Wait(); err != nil {
		return s.tag, err
	}
	return s.tag, nil
}

// Close cancels the statement if it is still running and waits for it.
func (s *Source) Close() error {
	return s.p.Close()
}
