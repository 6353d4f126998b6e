// Package framing locates row boundaries in a COPY OUT byte stream.
package framing

import (
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// ErrCopyDone is returned by a Framer when the stream carries its own
// end-of-data marker.
var ErrCopyDone = errors.New("framing: copy done")

// Frame describes the first complete record found in a scan.
//
// A zero Advance means no complete record is available yet. Skip marks
// records that carry no row; Start and End are then meaningless and Notice
// is set when the skipped record was a server notice.
type Frame struct {
	Start   int
	End     int
	Advance int
	Skip    bool
	Notice  *pgconn.Notice
}

// Framer finds row boundaries. Implementations are stateless so one value
// can be shared by several dispatchers.
type Framer interface {
	// Next scans data for the first complete record. scanned is the length of
	// a prefix of data that an earlier call already examined without finding
	// a boundary; it lets the scan resume instead of restarting.
	Next(data []byte, scanned int) (Frame, error)

	// Partial is called when Next found no complete record in data. It
	// returns a lower bound on the length of the row being received and
	// whether the pending record is a row at all. Records that are not rows
	// are exempt from the row size limit.
	Partial(data []byte) (size int, isRow bool)

	// Final is called once the source has ended and Next finds nothing more
	// in data, which may be empty. A zero Advance with a nil error is a clean
	// end; otherwise the frame is an unterminated last row.
	Final(data []byte) (Frame, error)

	Name() string
}
