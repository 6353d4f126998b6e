package framing

import (
	"encoding/binary"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, msgs ...pgproto3.BackendMessage) []byte {
	t.Helper()
	var buf []byte
	for _, m := range msgs {
		var err error
		buf, err = m.Encode(buf)
		require.NoError(t, err)
	}
	return buf
}

func TestTerminator(t *testing.T) {
	t.Run("empty terminator is rejected", func(t *testing.T) {
		f, err := Terminator(nil)
		assert.Nil(t, f)
		assert.Error(t, err)
	})

	t.Run("single byte terminator", func(t *testing.T) {
		f, err := Terminator([]byte("\n"))
		require.NoError(t, err)

		fr, err := f.Next([]byte("abc\ndef\n"), 0)
		assert.NoError(t, err)
		assert.Equal(t, Frame{Start: 0, End: 3, Advance: 4}, fr)

		fr, err = f.Next([]byte("abc"), 0)
		assert.NoError(t, err)
		assert.Equal(t, 0, fr.Advance)

		fr, err = f.Next([]byte("\n"), 0)
		assert.NoError(t, err)
		assert.Equal(t, Frame{Start: 0, End: 0, Advance: 1}, fr)
		assert.Equal(t, "terminator", f.Name())
	})

	t.Run("multi byte terminator straddling a previous scan", func(t *testing.T) {
		f, err := Terminator([]byte("\r\n"))
		require.NoError(t, err)

		fr, err := f.Next([]byte("ab\r"), 0)
		assert.NoError(t, err)
		assert.Equal(t, 0, fr.Advance)

		// the previous scan saw 3 bytes; the terminator starts inside them
		fr, err = f.Next([]byte("ab\r\nc"), 3)
		assert.NoError(t, err)
		assert.Equal(t, Frame{Start: 0, End: 2, Advance: 4}, fr)
	})

	t.Run("scanned hint skips examined bytes", func(t *testing.T) {
		f, err := Terminator([]byte(","))
		require.NoError(t, err)

		fr, err := f.Next([]byte("abcdef,"), 6)
		assert.NoError(t, err)
		assert.Equal(t, Frame{Start: 0, End: 6, Advance: 7}, fr)

		fr, err = f.Next([]byte("ab"), 5)
		assert.NoError(t, err)
		assert.Equal(t, 0, fr.Advance)
	})

	t.Run("terminator is copied", func(t *testing.T) {
		term := []byte(",")
		f, err := Terminator(term)
		require.NoError(t, err)
		term[0] = ';'

		fr, err := f.Next([]byte("a,b"), 0)
		assert.NoError(t, err)
		assert.Equal(t, 2, fr.Advance)
	})

	t.Run("partial excludes a possible terminator prefix", func(t *testing.T) {
		f, err := Terminator([]byte("\r\n"))
		require.NoError(t, err)

		size, isRow := f.Partial([]byte("abcd\r"))
		assert.True(t, isRow)
		assert.Equal(t, 4, size)

		size, _ = f.Partial(nil)
		assert.Equal(t, 0, size)
	})

	t.Run("final takes everything", func(t *testing.T) {
		f, err := Terminator([]byte("\n"))
		require.NoError(t, err)
		fr, err := f.Final([]byte("tail"))
		assert.NoError(t, err)
		assert.Equal(t, Frame{Start: 0, End: 4, Advance: 4}, fr)

		fr, err = f.Final(nil)
		assert.NoError(t, err)
		assert.Equal(t, 0, fr.Advance)
	})
}

func TestCopyData(t *testing.T) {
	f := CopyData()

	t.Run("copy data message carries one row", func(t *testing.T) {
		data := encode(t, &pgproto3.CopyData{Data: []byte("1\trow #1\n")})
		fr, err := f.Next(data, 0)
		assert.NoError(t, err)
		assert.Equal(t, Frame{Start: 5, End: len(data), Advance: len(data)}, fr)
		assert.Equal(t, []byte("1\trow #1\n"), data[fr.Start:fr.End])
	})

	t.Run("partial messages need more data", func(t *testing.T) {
		data := encode(t, &pgproto3.CopyData{Data: []byte("abc")})
		for i := 0; i < len(data); i++ {
			fr, err := f.Next(data[:i], 0)
			assert.NoError(t, err)
			assert.Equal(t, 0, fr.Advance, "prefix of %d bytes", i)
		}
	})

	t.Run("empty copy data is a zero length row", func(t *testing.T) {
		data := encode(t, &pgproto3.CopyData{})
		fr, err := f.Next(data, 0)
		assert.NoError(t, err)
		assert.Equal(t, Frame{Start: 5, End: 5, Advance: 5}, fr)
	})

	t.Run("copy done ends the stream", func(t *testing.T) {
		data := encode(t, &pgproto3.CopyDone{})
		fr, err := f.Next(data, 0)
		assert.Equal(t, ErrCopyDone, err)
		assert.Equal(t, 5, fr.Advance)
	})

	t.Run("copy done with a body", func(t *testing.T) {
		data := []byte{'c', 0, 0, 0, 5, 'x'}
		_, err := f.Next(data, 0)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrCopyDone)
	})

	t.Run("notices are skipped", func(t *testing.T) {
		data := encode(t, &pgproto3.NoticeResponse{Severity: "NOTICE", Code: "00000", Message: "hello"})
		fr, err := f.Next(data, 0)
		assert.NoError(t, err)
		assert.True(t, fr.Skip)
		assert.Equal(t, len(data), fr.Advance)
		require.NotNil(t, fr.Notice)
		assert.Equal(t, "hello", fr.Notice.Message)
	})

	t.Run("parameter status is skipped", func(t *testing.T) {
		data := encode(t, &pgproto3.ParameterStatus{Name: "TimeZone", Value: "UTC"})
		fr, err := f.Next(data, 0)
		assert.NoError(t, err)
		assert.True(t, fr.Skip)
		assert.Nil(t, fr.Notice)
		assert.Equal(t, len(data), fr.Advance)
	})

	t.Run("error response is decoded", func(t *testing.T) {
		data := encode(t, &pgproto3.ErrorResponse{
			Severity: "ERROR",
			Code:     "57014",
			Message:  "canceling statement due to user request",
			Detail:   "d",
			Hint:     "h",
			Where:    "COPY t, line 3",
		})
		fr, err := f.Next(data, 0)
		assert.Equal(t, len(data), fr.Advance)

		var pgErr *pgconn.PgError
		require.True(t, errors.As(err, &pgErr))
		assert.Equal(t, "ERROR", pgErr.Severity)
		assert.Equal(t, "57014", pgErr.Code)
		assert.Equal(t, "canceling statement due to user request", pgErr.Message)
		assert.Equal(t, "d", pgErr.Detail)
		assert.Equal(t, "h", pgErr.Hint)
		assert.Equal(t, "COPY t, line 3", pgErr.Where)
	})

	t.Run("unexpected message type", func(t *testing.T) {
		data := []byte{'Z', 0, 0, 0, 5, 'I'}
		_, err := f.Next(data, 0)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrCopyDone)
	})

	t.Run("length smaller than the length field", func(t *testing.T) {
		data := []byte{'d', 0, 0, 0, 3}
		_, err := f.Next(data, 0)
		assert.Error(t, err)
	})

	t.Run("huge declared length waits for data", func(t *testing.T) {
		data := make([]byte, 5)
		data[0] = 'd'
		binary.BigEndian.PutUint32(data[1:], 0xffffffff)
		fr, err := f.Next(data, 0)
		assert.NoError(t, err)
		assert.Equal(t, 0, fr.Advance)
	})

	t.Run("unterminated error field", func(t *testing.T) {
		body := []byte{'M', 'x'}
		data := []byte{'E', 0, 0, 0, byte(4 + len(body))}
		data = append(data, body...)
		_, err := f.Next(data, 0)
		var pgErr *pgconn.PgError
		assert.False(t, errors.As(err, &pgErr))
		assert.Error(t, err)
	})

	t.Run("partial reports the declared row size", func(t *testing.T) {
		data := encode(t, &pgproto3.CopyData{Data: make([]byte, 100)})
		size, isRow := f.Partial(data[:7])
		assert.True(t, isRow)
		assert.Equal(t, 100, size)

		size, isRow = f.Partial(data[:3])
		assert.True(t, isRow)
		assert.Equal(t, 0, size)
	})

	t.Run("partial exempts other messages", func(t *testing.T) {
		data := encode(t, &pgproto3.NoticeResponse{Severity: "NOTICE", Message: "a long notice"})
		_, isRow := f.Partial(data[:8])
		assert.False(t, isRow)

		data = encode(t, &pgproto3.ErrorResponse{Severity: "ERROR", Message: "boom"})
		_, isRow = f.Partial(data[:6])
		assert.False(t, isRow)
	})

	t.Run("final is always a violation", func(t *testing.T) {
		_, err := f.Final([]byte{'d', 0})
		assert.Error(t, err)
		_, err = f.Final(nil)
		assert.EqualError(t, err, "framing: stream ended without CopyDone")
		assert.Equal(t, "copydata", f.Name())
	})
}
