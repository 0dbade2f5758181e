package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit returns middleware that caps the request body size. uploadLimit
// applies to prescription document uploads (POST to a /prescriptions
// endpoint), which carry scanned files; defaultLimit applies everywhere
// else.
//
// Sizes are strings like "512K", "1M" or "10M"; a bare number is bytes.
// Oversized requests receive 413, detected from Content-Length when the
// client declares it and on the stream when it does not.
func BodyLimit(defaultLimit, uploadLimit string) echo.MiddlewareFunc {
	defaultBytes := parseSize(defaultLimit)
	uploadBytes := parseSize(uploadLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := defaultBytes
			if req.Method == http.MethodPost && strings.HasSuffix(req.URL.Path, "/prescriptions") {
				limit = uploadBytes
			}

			if req.ContentLength > limit {
				return errBodyTooLarge(limit)
			}
			req.Body = &cappedBody{ReadCloser: req.Body, limit: limit}
			return next(c)
		}
	}
}

func errBodyTooLarge(limit int64) error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("request body exceeds the %d byte limit", limit))
}

// cappedBody fails reads once the body runs past limit. The stream check is
// required because Content-Length can lie or be absent entirely with
// chunked encoding.
type cappedBody struct {
	io.ReadCloser
	limit   int64
	read    int64
	overrun bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.overrun {
		return 0, errBodyTooLarge(b.limit)
	}
	n, err := b.ReadCloser.Read(p)
	b.read += int64(n)
	if b.read > b.limit {
		b.overrun = true
		return 0, errBodyTooLarge(b.limit)
	}
	return n, err
}

var sizeSuffixes = [...]struct {
	text string
	mult int64
}{
	{"GB", 1 << 30}, {"G", 1 << 30},
	{"MB", 1 << 20}, {"M", 1 << 20},
	{"KB", 1 << 10}, {"K", 1 << 10},
}

// parseSize converts a human-readable size ("512K", "1M", "2G", bare bytes)
// to a byte count. Unparseable input falls back to 1 MiB.
func parseSize(s string) int64 {
	const fallback = 1 << 20

	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}

	mult := int64(1)
	for _, suf := range sizeSuffixes {
		if strings.HasSuffix(s, suf.text) {
			mult = suf.mult
			s = strings.TrimSuffix(s, suf.text)
			break
		}
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n * mult
}
