package core

// Frame is a raw outbound payload, already encoded for the wire.
type Frame []byte

// SignalConnection abstracts the messaging transport for one participant.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues a frame without blocking. It returns an error when
	// the connection is closed or its send queue is full; the caller treats
	// that as the recipient's disconnect, never as a fatal condition.
	TrySend(Frame) error
	Close()
}
