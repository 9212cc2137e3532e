package core

//go:generate mockgen -source=signal_iface.go -destination=mocks/mock_signal_iface.go -package=mocks

// Frame is a raw text payload written to a client.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking.
	TrySend(f Frame) error
	Close()
	// Alive reports whether the connection can still deliver frames.
	Alive() bool
}
