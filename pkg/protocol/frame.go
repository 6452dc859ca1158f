package protocol

import (
	"errors"
	"fmt"
	"io"
)

// FrameReader reads length-prefixed frames from a byte stream and reverses
// compression when it is enabled.
//
// FrameReader is not safe for concurrent use; one connection reader owns it.
type FrameReader struct {
	r         reader
	limits    Limits
	threshold int
	inflate   inflater
}

type reader interface {
	io.Reader
	io.ByteReader
}

// NewFrameReader creates a frame reader on r with compression disabled.
func NewFrameReader(r reader, limits Limits) *FrameReader {
	return &FrameReader{
		r:         r,
		limits:    limits.normalized(),
		threshold: CompressionDisabled,
	}
}

// SetCompression enables compression for inbound frames. A negative
// threshold disables it.
func (fr *FrameReader) SetCompression(threshold int) {
	fr.threshold = threshold
}

// Compression returns the current inbound threshold.
func (fr *FrameReader) Compression() int {
	return fr.threshold
}

// ReadFrame reads one frame and returns its packet bytes (id + payload).
//
// A declared length above the frame limit fails with ErrFrameTooLarge
// before any of the body is read. A clean close between frames returns
// io.EOF.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	length, _, err := ReadVarInt(fr.r)
	if err != nil {
		return nil, err
	}
	if length > uint32(fr.limits.MaxFrameSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, fr.limits.MaxFrameSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	if fr.threshold < 0 {
		return body, nil
	}
	return fr.uncompress(body)
}

func (fr *FrameReader) uncompress(body []byte) ([]byte, error) {
	size, n, err := DecodeVarInt(body)
	if err != nil {
		return nil, err
	}
	rest := body[n:]
	switch {
	case size == 0:
		return rest, nil
	case int(size) < fr.threshold:
		return nil, fmt.Errorf("%w: %d < %d", ErrBadCompressionThreshold, size, fr.threshold)
	case size > uint32(fr.limits.MaxDecompressedSize):
		return nil, fmt.Errorf("%w: uncompressed %d > %d", ErrFrameTooLarge, size, fr.limits.MaxDecompressedSize)
	}
	return fr.inflate.decompress(rest, int(size))
}

// FrameWriter writes length-prefixed frames, compressing bodies at or
// above the threshold when compression is enabled.
//
// FrameWriter is not safe for concurrent use; one connection writer owns it.
type FrameWriter struct {
	w         io.Writer
	limits    Limits
	threshold int
	deflate   deflater
	scratch   []byte
}

// NewFrameWriter creates a frame writer on w with compression disabled.
func NewFrameWriter(w io.Writer, limits Limits) *FrameWriter {
	return &FrameWriter{
		w:         w,
		limits:    limits.normalized(),
		threshold: CompressionDisabled,
		scratch:   make([]byte, 0, 512),
	}
}

// SetCompression enables compression for outbound frames. A negative
// threshold disables it.
func (fw *FrameWriter) SetCompression(threshold int) {
	fw.threshold = threshold
}

// Compression returns the current outbound threshold.
func (fw *FrameWriter) Compression() int {
	return fw.threshold
}

// WriteFrame writes body (packet id + payload) as a single frame with one
// Write call on the underlying writer.
func (fw *FrameWriter) WriteFrame(body []byte) error {
	buf, err := fw.AppendFrame(fw.scratch[:0], body)
	if err != nil {
		return err
	}
	fw.scratch = buf[:0]
	_, err = fw.w.Write(buf)
	return err
}

// AppendFrame appends the framed form of body to dst.
func (fw *FrameWriter) AppendFrame(dst, body []byte) ([]byte, error) {
	switch {
	case fw.threshold < 0:
		if len(body) > fw.limits.MaxFrameSize {
			return dst, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(body), fw.limits.MaxFrameSize)
		}
		dst = AppendVarInt(dst, uint32(len(body)))
		return append(dst, body...), nil

	case len(body) < fw.threshold || len(body) == 0:
		if len(body)+1 > fw.limits.MaxFrameSize {
			return dst, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(body)+1, fw.limits.MaxFrameSize)
		}
		dst = AppendVarInt(dst, uint32(len(body)+1))
		dst = append(dst, 0x00)
		return append(dst, body...), nil

	default:
		z, err := fw.deflate.compress(body)
		if err != nil {
			return dst, err
		}
		length := VarIntLen(uint32(len(body))) + len(z)
		if length > fw.limits.MaxFrameSize {
			return dst, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, fw.limits.MaxFrameSize)
		}
		dst = AppendVarInt(dst, uint32(length))
		dst = AppendVarInt(dst, uint32(len(body)))
		return append(dst, z...), nil
	}
}
