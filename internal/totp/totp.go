// Package totp derives rotating numeric codes from a shared base32 seed
// following the standard time-step one-time-password algorithm (RFC 6238
// with SHA-1, a 30-second step and 6 digits).
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/credvend/credvend-server/internal/model"
)

// Period is the time-step size; codes are stable within one period.
const Period = 30 * time.Second

// Digits is the rendered code length.
const Digits = 6

// Code derives the code for secret at the given time. It is a pure function
// of (secret, time window): no randomness, no caching. The secret must be
// base32; case and trailing padding are tolerated. Returns
// model.ErrInvalidSecret when the secret does not decode.
func Code(secret string, at time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidSecret, err)
	}

	counter := uint64(at.Unix()) / uint64(Period/time.Second)

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 §5.3.
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%0*d", Digits, value%1_000_000), nil
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimSpace(secret))
	s = strings.TrimRight(s, "=")
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
}
