package adapter

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Supported content encodings
const (
	EncodingGzip = "gzip"
	EncodingZstd = "zstd"
)

type encodeWriter interface {
	io.Writer
	Close() error
}

func newEncoder(w io.Writer, encoding string) (encodeWriter, error) {
	switch encoding {
	case EncodingGzip:
		return gzip.NewWriter(w), nil
	case EncodingZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported compression %q", encoding)
	}
}

// compress streams r through the encoder. The caller must close the
// returned reader so the encoding goroutine exits when the consumer
// stops early.
func compress(r io.Reader, encoding string) (io.ReadCloser, error) {
	pr, pw := io.Pipe()

	enc, err := newEncoder(pw, encoding)
	if err != nil {
		return nil, err
	}

	go func() {
		_, err := io.Copy(enc, r)
		if closeErr := enc.Close(); err == nil {
			err = closeErr
		}
		pw.CloseWithError(err)
	}()

	return pr, nil
}

// decompress wraps rc according to its content encoding. Unknown
// encodings are returned unchanged.
func decompress(rc io.ReadCloser, encoding string) (io.ReadCloser, error) {
	switch encoding {
	case EncodingGzip:
		zr, err := gzip.NewReader(rc)
		if err != nil {
			return nil, fmt.Errorf("open gzip entity: %w", err)
		}
		return &decodeReadCloser{Reader: zr, closers: []func() error{zr.Close, rc.Close}}, nil
	case EncodingZstd:
		dec, err := zstd.NewReader(rc)
		if err != nil {
			return nil, fmt.Errorf("open zstd entity: %w", err)
		}
		return &decodeReadCloser{Reader: dec, closers: []func() error{
			func() error { dec.Close(); return nil },
			rc.Close,
		}}, nil
	default:
		return rc, nil
	}
}

type decodeReadCloser struct {
	io.Reader
	closers []func() error
}

func (d *decodeReadCloser) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
