package copyout

// Handler receives the rows of a COPY OUT stream.
//
// row aliases the dispatcher's buffer and is only valid until HandleRow
// returns; copy it to keep it. Returning a non-nil error stops the stream,
// NextRow then reports StatusFailed with ReasonHandlerAborted.
type Handler interface {
	HandleRow(row []byte) error
}

// HandlerFunc adapts an ordinary function to a Handler.
type HandlerFunc func(row []byte) error

func (f HandlerFunc) HandleRow(row []byte) error {
	return f(row)
}

// discard is used when NextRow is called with a nil handler.
type discard struct{}

func (discard) HandleRow([]byte) error { return nil }
