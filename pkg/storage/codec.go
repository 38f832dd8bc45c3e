package storage

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/terrycain/blob-config-sync/pkg/e"
)

// MaxDecodedBytes caps how large a compressed blob may inflate to.
var MaxDecodedBytes int64 = 32 << 20

// Decode undoes the compression implied by the blob name, anything else is returned as is.
func Decode(blobPath string, data []byte) ([]byte, error) {
	switch {
	case strings.HasSuffix(blobPath, ".gz"):
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %s", e.ErrMalformed, err.Error())
		}
		defer r.Close()
		out, err := io.ReadAll(io.LimitReader(r, MaxDecodedBytes+1))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %s", e.ErrMalformed, err.Error())
		}
		if int64(len(out)) > MaxDecodedBytes {
			return nil, fmt.Errorf("%w: gzip: decoded size exceeds %d bytes", e.ErrMalformed, MaxDecodedBytes)
		}
		return out, nil

	case strings.HasSuffix(blobPath, ".zst"):
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(MaxDecodedBytes)))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %s", e.ErrMalformed, err.Error())
		}
		if int64(len(out)) > MaxDecodedBytes {
			return nil, fmt.Errorf("%w: zstd: decoded size exceeds %d bytes", e.ErrMalformed, MaxDecodedBytes)
		}
		return out, nil
	}

	return data, nil
}
