package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFingerprint(t *testing.T) {
	fp, err := NewFingerprint()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(fp.Raw)
	require.NoError(t, err)
	require.Len(t, raw, FingerprintSize)

	sum := sha256.Sum256([]byte(fp.Raw))
	require.Equal(t, hex.EncodeToString(sum[:]), fp.Hash)
}

func TestNewFingerprintUnique(t *testing.T) {
	a, err := NewFingerprint()
	require.NoError(t, err)
	b, err := NewFingerprint()
	require.NoError(t, err)
	require.NotEqual(t, a.Raw, b.Raw)
}

func TestVerifyFingerprint(t *testing.T) {
	fp, err := NewFingerprint()
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
		hash string
		want bool
	}{
		{"match", fp.Raw, fp.Hash, true},
		{"wrong raw", fp.Raw + "x", fp.Hash, false},
		{"hash of different value", fp.Raw, HashFingerprint(fp.Raw + "x"), false},
		{"empty raw", "", fp.Hash, false},
		{"empty hash", fp.Raw, "", false},
		{"both empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, VerifyFingerprint(tt.raw, tt.hash))
		})
	}
}
