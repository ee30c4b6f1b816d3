package token_test

import (
	"testing"

	"github.com/SlpAus/dialect-voice-backend/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	t.Parallel()
	s, err := token.NewSigner([]byte("test-secret"))
	require.NoError(t, err)

	signed := s.Sign("0192f0c4-1111-7000-8000-000000000001")
	value, ok := s.Verify(signed)
	require.True(t, ok)
	assert.Equal(t, "0192f0c4-1111-7000-8000-000000000001", value)
}

func TestVerifyRejectsTampering(t *testing.T) {
	t.Parallel()
	s, err := token.NewSigner([]byte("test-secret"))
	require.NoError(t, err)
	other, err := token.NewSigner([]byte("other-secret"))
	require.NoError(t, err)

	signed := s.Sign("alice")

	cases := map[string]string{
		"empty":        "",
		"no signature": "alice",
		"trailing dot": "alice.",
		"bad base64":   "alice.!!!",
		"wrong value":  "mallory" + signed[len("alice"):],
		"wrong key":    other.Sign("alice"),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := s.Verify(input)
			assert.False(t, ok)
		})
	}
}

func TestEmptySecret(t *testing.T) {
	t.Parallel()
	_, err := token.NewSigner(nil)
	require.ErrorIs(t, err, token.ErrEmptySecret)
}
