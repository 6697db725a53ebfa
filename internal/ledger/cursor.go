package ledger

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EncodeCursor returns an opaque keyset cursor positioned after e.
func EncodeCursor(e Entity) string {
	raw := strconv.FormatInt(e.CreatedAt.UnixNano(), 10) + "|" + e.Key
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: cursor: %v", ErrInvalidQuery, err)
	}
	ts, key, ok := strings.Cut(string(raw), "|")
	if !ok || key == "" {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", ErrInvalidQuery)
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: cursor timestamp: %v", ErrInvalidQuery, err)
	}
	return time.Unix(0, nanos).UTC(), key, nil
}

// after reports whether e sorts strictly after the (ts, key) position.
func after(e Entity, ts time.Time, key string) bool {
	if e.CreatedAt.Equal(ts) {
		return e.Key > key
	}
	return e.CreatedAt.After(ts)
}
