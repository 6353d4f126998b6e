package copyout

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

func drawRows(t *rapid.T, alphabet []byte) [][]byte {
	return rapid.SliceOfN(
		rapid.SliceOfN(rapid.SampledFrom(alphabet), 0, 40),
		0, 30,
	).Draw(t, "rows")
}

func joinRows(rows [][]byte, term []byte) []byte {
	var stream []byte
	for _, r := range rows {
		stream = append(stream, r...)
		stream = append(stream, term...)
	}
	return stream
}

func chunkedSource(t *rapid.T, stream []byte) *scriptedSource {
	sizes := rapid.SliceOfN(rapid.IntRange(1, 17), 1, 20).Draw(t, "chunks")
	return &scriptedSource{data: stream, sizes: sizes}
}

func sameRows(t *rapid.T, want, got [][]byte) {
	if len(want) != len(got) {
		t.Fatalf("got %d rows, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(want[i], got[i]) {
			t.Fatalf("row %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestChunkingInvariance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		term := rapid.SampledFrom([]string{"\n", ",", "\r\n", "|#|"}).Draw(t, "terminator")
		// '\r' and '|' produce partial terminator matches inside rows
		var rows [][]byte
		for _, r := range drawRows(t, []byte("ab\r|#")) {
			// drop rows whose bytes would end the row early
			framed := append(append([]byte{}, r...), term...)
			if bytes.Index(framed, []byte(term)) == len(r) {
				rows = append(rows, r)
			}
		}

		d, err := New(chunkedSource(t, joinRows(rows, []byte(term))),
			WithTerminator([]byte(term)),
			WithInitialCapacity(rapid.IntRange(1, 64).Draw(t, "capacity")),
			WithMinRead(rapid.IntRange(1, 8).Draw(t, "minRead")),
		)
		if err != nil {
			t.Fatal(err)
		}

		c := &collect{}
		if res := d.RunToCompletion(c); res != endOfStream {
			t.Fatalf("unexpected result %s", res)
		}
		sameRows(t, rows, c.rows)
	})
}

func TestMaxRowSizeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 30).Draw(t, "limit")
		rows := drawRows(t, []byte("xyz"))

		d, err := New(chunkedSource(t, joinRows(rows, []byte("\n"))),
			WithMaxRowSize(limit),
			WithInitialCapacity(rapid.IntRange(1, 16).Draw(t, "capacity")),
			WithMinRead(rapid.IntRange(1, 4).Draw(t, "minRead")),
		)
		if err != nil {
			t.Fatal(err)
		}

		// every row up to the first oversized one is delivered, then the stream fails
		want := rows
		tooLarge := false
		for i, r := range rows {
			if len(r) > limit {
				want, tooLarge = rows[:i], true
				break
			}
		}

		c := &collect{}
		res := d.RunToCompletion(c)
		sameRows(t, want, c.rows)
		if tooLarge {
			if res.Reason != ReasonRowTooLarge {
				t.Fatalf("got %s, want RowTooLarge", res)
			}
			if d.Stats().Rows != int64(len(want)) {
				t.Fatalf("stats count %d rows", d.Stats().Rows)
			}
		} else if res != endOfStream {
			t.Fatalf("got %s, want EndOfStream", res)
		}
	})
}
