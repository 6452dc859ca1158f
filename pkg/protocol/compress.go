package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// deflater compresses frame bodies, reusing one zlib writer per direction.
type deflater struct {
	buf bytes.Buffer
	zw  *zlib.Writer
}

// compress returns the zlib stream for src. The returned slice is valid
// until the next call.
func (d *deflater) compress(src []byte) ([]byte, error) {
	d.buf.Reset()
	if d.zw == nil {
		d.zw = zlib.NewWriter(&d.buf)
	} else {
		d.zw.Reset(&d.buf)
	}
	if _, err := d.zw.Write(src); err != nil {
		return nil, err
	}
	if err := d.zw.Close(); err != nil {
		return nil, err
	}
	return d.buf.Bytes(), nil
}

// inflater decompresses frame bodies, reusing one zlib reader per direction.
type inflater struct {
	src bytes.Reader
	zr  io.ReadCloser
}

// decompress inflates src and checks that it yields exactly size bytes.
func (f *inflater) decompress(src []byte, size int) ([]byte, error) {
	f.src.Reset(src)
	if f.zr == nil {
		zr, err := zlib.NewReader(&f.src)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressionLengthMismatch, err)
		}
		f.zr = zr
	} else if err := f.zr.(zlib.Resetter).Reset(&f.src, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionLengthMismatch, err)
	}

	out := make([]byte, size)
	if _, err := io.ReadFull(f.zr, out); err != nil {
		return nil, fmt.Errorf("%w: want %d bytes: %v", ErrDecompressionLengthMismatch, size, err)
	}

	// The stream must end exactly here.
	var extra [1]byte
	n, err := f.zr.Read(extra[:])
	if n > 0 {
		return nil, fmt.Errorf("%w: stream longer than %d bytes", ErrDecompressionLengthMismatch, size)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionLengthMismatch, err)
	}
	return out, nil
}
