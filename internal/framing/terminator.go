package framing

import (
	"bytes"

	"github.com/pkg/errors"
)

type terminator struct {
	term []byte
}

var _ Framer = (*terminator)(nil)

// Terminator frames rows ended by term. The terminator is not part of the row.
func Terminator(term []byte) (Framer, error) {
	if len(term) == 0 {
		return nil, errors.New("framing: empty terminator")
	}
	return &terminator{term: append([]byte{}, term...)}, nil
}

func (t *terminator) Next(data []byte, scanned int) (Frame, error) {
	// a terminator may straddle the end of the previous scan
	from := scanned - len(t.term) + 1
	if from < 0 {
		from = 0
	}
	if from > len(data) {
		return Frame{}, nil
	}

	var i int
	if len(t.term) == 1 {
		i = bytes.IndexByte(data[from:], t.term[0])
	} else {
		i = bytes.Index(data[from:], t.term)
	}
	if i < 0 {
		return Frame{}, nil
	}

	end := from + i
	return Frame{Start: 0, End: end, Advance: end + len(t.term)}, nil
}

func (t *terminator) Final(data []byte) (Frame, error) {
	return Frame{Start: 0, End: len(data), Advance: len(data)}, nil
}

// Partial counts every pending byte except a possible terminator prefix at
// the end.
func (t *terminator) Partial(data []byte) (int, bool) {
	n := len(data) - len(t.term) + 1
	if n < 0 {
		n = 0
	}
	return n, true
}

func (t *terminator) Name() string {
	return "terminator"
}
