package protocol

// Frame size limits. These complement the allocation limits in decoder.go.
const (
	// DefaultMaxFrameSize is the largest frame length a peer may declare:
	// the largest value a 3-byte VarInt can hold.
	DefaultMaxFrameSize = 1<<21 - 1

	// DefaultMaxDecompressedSize bounds the declared uncompressed length
	// of a compressed frame.
	DefaultMaxDecompressedSize = 8 * 1024 * 1024

	// DefaultCompressionThreshold is the threshold vanilla servers use.
	DefaultCompressionThreshold = 256

	// CompressionDisabled turns compression off for a direction.
	CompressionDisabled = -1
)

// Limits configures frame-level size limits.
// Use DefaultLimits() for sensible defaults.
type Limits struct {
	// MaxFrameSize is the largest accepted frame length prefix.
	MaxFrameSize int

	// MaxDecompressedSize is the largest accepted uncompressed length.
	MaxDecompressedSize int
}

// DefaultLimits returns the default frame limits.
func DefaultLimits() Limits {
	return Limits{
		MaxFrameSize:        DefaultMaxFrameSize,
		MaxDecompressedSize: DefaultMaxDecompressedSize,
	}
}

func (l Limits) normalized() Limits {
	if l.MaxFrameSize <= 0 {
		l.MaxFrameSize = DefaultMaxFrameSize
	}
	if l.MaxDecompressedSize <= 0 {
		l.MaxDecompressedSize = DefaultMaxDecompressedSize
	}
	return l
}
