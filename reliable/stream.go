package reliable

import "time"

// StreamSender implements the "ordered bytes, unlimited size" side
// channel spec §4.4 reserves for messages above the stream threshold
// (32KB by default): unlike fragmentation, a stream carries no per-
// message framing of its own, it simply appends to a single ordered
// byte sequence on top of a reliable Sender of byte chunks.
type StreamSender struct {
	inner *Sender[[]byte]
}

// NewStreamSender wraps a reliable byte-chunk sender as a stream.
func NewStreamSender() *StreamSender {
	return &StreamSender{inner: NewSender[[]byte]()}
}

// Write enqueues chunk as the next ordered slice of the stream.
func (s *StreamSender) Write(now time.Time, chunk []byte) error {
	_, err := s.inner.SendMessage(now, append([]byte(nil), chunk...))
	return err
}

// TakeNextChunks drains chunks ready to go out on the transport.
func (s *StreamSender) TakeNextChunks() []OutgoingMessage[[]byte] {
	return s.inner.TakeNextMessages()
}

// StreamReceiver reassembles an ordered byte stream by concatenating
// chunks strictly in MessageIndex order; reliable delivery already
// guarantees no gaps, so reassembly here is just concatenation.
type StreamReceiver struct {
	inner *Receiver[[]byte]
}

// NewStreamReceiver returns an empty stream receiver.
func NewStreamReceiver() *StreamReceiver {
	return &StreamReceiver{inner: NewReceiver[[]byte]()}
}

// BufferChunk stores an inbound chunk at the given MessageIndex.
func (r *StreamReceiver) BufferChunk(id uint16, chunk []byte) {
	r.inner.BufferMessage(id, chunk)
}

// Drain returns the concatenation of every contiguous chunk now
// available, in order.
func (r *StreamReceiver) Drain() []byte {
	var out []byte
	for _, c := range r.inner.ReceiveMessages() {
		out = append(out, c...)
	}
	return out
}
