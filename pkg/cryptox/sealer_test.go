package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealerRoundTrip(t *testing.T) {
	for _, alg := range []string{AlgorithmAESGCM, AlgorithmChaCha20, ""} {
		t.Run("alg="+alg, func(t *testing.T) {
			s, err := NewSealer("correct horse battery staple", alg)
			require.NoError(t, err)

			plaintext := []byte(`{"user_id":"u_1"}`)
			box, err := s.Seal(plaintext)
			require.NoError(t, err)
			require.NotEqual(t, plaintext, box)

			got, err := s.Open(box)
			require.NoError(t, err)
			require.Equal(t, plaintext, got)
		})
	}
}

func TestSealerNonceUnique(t *testing.T) {
	s, err := NewSealer("secret", AlgorithmAESGCM)
	require.NoError(t, err)

	a, err := s.Seal([]byte("payload"))
	require.NoError(t, err)
	b, err := s.Seal([]byte("payload"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestSealerOpenFailures(t *testing.T) {
	s, err := NewSealer("secret", AlgorithmAESGCM)
	require.NoError(t, err)

	box, err := s.Seal([]byte("payload"))
	require.NoError(t, err)

	t.Run("tampered ciphertext", func(t *testing.T) {
		tampered := append([]byte(nil), box...)
		tampered[len(tampered)-1] ^= 0x01
		_, err := s.Open(tampered)
		require.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("truncated input", func(t *testing.T) {
		_, err := s.Open(box[:4])
		require.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewSealer("not the same secret", AlgorithmAESGCM)
		require.NoError(t, err)
		_, err = other.Open(box)
		require.ErrorIs(t, err, ErrDecrypt)
	})
}

func TestNewSealerValidation(t *testing.T) {
	_, err := NewSealer("", AlgorithmAESGCM)
	require.ErrorIs(t, err, ErrEmptySecret)

	_, err = NewSealer("secret", "rot13")
	require.ErrorIs(t, err, ErrBadAlgorithm)
}
