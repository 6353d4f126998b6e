package framing

import (
	"encoding/binary"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/pkg/errors"
)

// Backend message types that can appear while a COPY OUT is in progress.
const (
	msgCopyData        = 'd'
	msgCopyDone        = 'c'
	msgErrorResponse   = 'E'
	msgNoticeResponse  = 'N'
	msgParameterStatus = 'S'
)

// type byte and int32 length
const headerLen = 5

type copyData struct{}

var _ Framer = copyData{}

// CopyData frames the backend message stream of the COPY sub-protocol. Each
// CopyData message carries one row, CopyDone ends the stream and an
// ErrorResponse aborts it with a *pgconn.PgError. NoticeResponse and
// ParameterStatus messages may arrive at any time and are skipped.
func CopyData() Framer {
	return copyData{}
}

// header returns the type and the total size of the message starting data.
func header(data []byte) (byte, int, error) {
	typ := data[0]
	length := binary.BigEndian.Uint32(data[1:headerLen])
	if length < 4 {
		return typ, 0, errors.Errorf("framing: message %q has invalid length %d", typ, length)
	}

	switch typ {
	case msgCopyData, msgCopyDone, msgErrorResponse, msgNoticeResponse, msgParameterStatus:
	default:
		return typ, 0, errors.Errorf("framing: unexpected message type %q during copy", typ)
	}

	total := 1 + int64(length)
	if int64(int(total)) != total {
		return typ, 0, errors.Errorf("framing: message %q too large", typ)
	}
	return typ, int(total), nil
}

func (copyData) Next(data []byte, _ int) (Frame, error) {
	if len(data) < headerLen {
		return Frame{}, nil
	}

	typ, end, err := header(data)
	if err != nil {
		return Frame{}, err
	}
	if len(data) < end {
		return Frame{}, nil
	}
	body := data[headerLen:end]

	switch typ {
	case msgCopyData:
		var msg pgproto3.CopyData
		if err := msg.Decode(body); err != nil {
			return Frame{}, errors.Wrap(err, "framing: invalid CopyData")
		}
		return Frame{Start: headerLen, End: headerLen + len(msg.Data), Advance: end}, nil

	case msgCopyDone:
		var msg pgproto3.CopyDone
		if err := msg.Decode(body); err != nil {
			return Frame{}, errors.Wrap(err, "framing: invalid CopyDone")
		}
		return Frame{Advance: end}, ErrCopyDone

	case msgErrorResponse:
		var msg pgproto3.ErrorResponse
		if err := msg.Decode(body); err != nil {
			return Frame{}, errors.Wrap(err, "framing: invalid ErrorResponse")
		}
		return Frame{Advance: end}, pgconn.ErrorResponseToPgError(&msg)

	case msgNoticeResponse:
		var msg pgproto3.NoticeResponse
		if err := msg.Decode(body); err != nil {
			return Frame{}, errors.Wrap(err, "framing: invalid NoticeResponse")
		}
		notice := (*pgconn.Notice)(pgconn.ErrorResponseToPgError((*pgproto3.ErrorResponse)(&msg)))
		return Frame{Advance: end, Skip: true, Notice: notice}, nil

	default:
		var msg pgproto3.ParameterStatus
		if err := msg.Decode(body); err != nil {
			return Frame{}, errors.Wrap(err, "framing: invalid ParameterStatus")
		}
		return Frame{Advance: end, Skip: true}, nil
	}
}

// Partial reports the declared payload size once the header of a CopyData
// message has arrived, so oversized rows fail before they are buffered.
func (copyData) Partial(data []byte) (int, bool) {
	if len(data) < headerLen {
		return 0, true
	}
	typ, end, err := header(data)
	if err != nil || typ != msgCopyData {
		return 0, false
	}
	return end - headerLen, true
}

func (copyData) Final(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, errors.New("framing: stream ended without CopyDone")
	}
	return Frame{}, errors.Errorf("framing: %d bytes of incomplete message at end of stream", len(data))
}

func (copyData) Name() string {
	return "copydata"
}
