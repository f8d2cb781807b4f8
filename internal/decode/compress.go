package decode

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// maxDecoded bounds how far a captured body may inflate.
const maxDecoded = 64 << 20

// zstdDecoder is shared; zstd.Decoder is safe for concurrent DecodeAll.
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecoded))
	if err != nil {
		panic("decode: zstd decoder initialization failed: " + err.Error())
	}
}

// Decompress inflates b according to a Content-Encoding value. Unknown and
// identity encodings return b. When the body does not match its declared
// encoding the raw input is returned with ok=false.
func Decompress(encoding string, b []byte) (out []byte, ok bool) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		return inflate(b, func(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) })
	case "deflate":
		return inflate(b, zlib.NewReader)
	case "zstd":
		res, err := zstdDecoder.DecodeAll(b, nil)
		if err != nil {
			return b, false
		}
		return res, true
	default:
		return b, true
	}
}

func inflate(b []byte, open func(io.Reader) (io.ReadCloser, error)) ([]byte, bool) {
	res, err := readAll(b, open)
	if err != nil {
		return b, false
	}
	return res, true
}

func readAll(b []byte, open func(io.Reader) (io.ReadCloser, error)) ([]byte, error) {
	r, err := open(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	res, err := io.ReadAll(io.LimitReader(r, maxDecoded+1))
	if err != nil {
		return nil, err
	}
	if len(res) > maxDecoded {
		return nil, fmt.Errorf("decoded body exceeds %d bytes", maxDecoded)
	}
	return res, nil
}
