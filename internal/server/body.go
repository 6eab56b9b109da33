package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	errTooLarge            = errors.New("upload exceeds size limit")
	errUnsupportedEncoding = errors.New("unsupported content encoding")
	errBadBody             = errors.New("unreadable request body")
)

// readUpload reads a request body, undoing gzip or zstd content encoding.
// Both the encoded and the decoded size are bounded by limit.
func readUpload(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()

	var src io.Reader = body
	switch enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, classifyReadError(err)
		}
		defer zr.Close()
		src = zr
	case "zstd":
		zd, err := zstd.NewReader(body, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(uint64(limit)+1))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadBody, err)
		}
		defer zd.Close()
		src = zd
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedEncoding, enc)
	}

	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, classifyReadError(err)
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	return data, nil
}

func classifyReadError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return errTooLarge
	}
	return fmt.Errorf("%w: %v", errBadBody, err)
}

// uploadStatus maps a readUpload error to a status code.
func uploadStatus(err error) int {
	switch {
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errUnsupportedEncoding):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}
