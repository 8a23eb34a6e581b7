package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ForecastKey identifies a rendered forecast response by upload content and
// request parameters.
func ForecastKey(upload []byte, model string, lags int, format string) string {
	h := sha256.New()
	h.Write(upload)
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(lags)))
	h.Write([]byte{0})
	h.Write([]byte(format))
	return "fincast:forecast:" + hex.EncodeToString(h.Sum(nil))
}
