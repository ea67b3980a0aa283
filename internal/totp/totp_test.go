package totp

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credvend/credvend-server/internal/model"
)

// Base32 encoding of the RFC 6238 test key "12345678901234567890".
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestCode_RFCVectors(t *testing.T) {
	// RFC 6238 Appendix B vectors (SHA-1), truncated to 6 digits.
	tests := []struct {
		name string
		at   int64
		want string
	}{
		{name: "first window", at: 59, want: "287082"},
		{name: "window boundary", at: 1111111109, want: "081804"},
		{name: "next second crosses window", at: 1111111111, want: "050471"},
		{name: "unix billennium", at: 1234567890, want: "005924"},
		{name: "year 2033", at: 2000000000, want: "279037"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Code(rfcSecret, time.Unix(tt.at, 0))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCode_StableWithinWindow(t *testing.T) {
	base := time.Unix(1700000010, 0).Truncate(Period)

	first, err := Code("JBSWY3DPEHPK3PXP", base)
	require.NoError(t, err)

	same, err := Code("JBSWY3DPEHPK3PXP", base.Add(29*time.Second))
	require.NoError(t, err)
	assert.Equal(t, first, same)

	next, err := Code("JBSWY3DPEHPK3PXP", base.Add(Period))
	require.NoError(t, err)
	assert.NotEqual(t, first, next)
}

func TestCode_Format(t *testing.T) {
	got, err := Code("JBSWY3DPEHPK3PXP", time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), got)
}

func TestCode_SecretNormalization(t *testing.T) {
	reference, err := Code("JBSWY3DPEHPK3PXP", time.Unix(59, 0))
	require.NoError(t, err)

	for _, secret := range []string{
		"jbswy3dpehpk3pxp",
		"JBSWY3DPEHPK3PXP======",
		"  JBSWY3DPEHPK3PXP ",
	} {
		got, err := Code(secret, time.Unix(59, 0))
		require.NoError(t, err)
		assert.Equal(t, reference, got, "secret %q", secret)
	}
}

func TestCode_InvalidSecret(t *testing.T) {
	_, err := Code("not base32!", time.Unix(59, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidSecret))
}
