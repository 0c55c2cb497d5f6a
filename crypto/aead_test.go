package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	pt := []byte("hello, medical record")
	aad := []byte("P001:1")

	sealed, err := Encrypt(key, pt, aad)
	require.NoError(t, err)

	got, err := Decrypt(key, sealed.Nonce, sealed.Ciphertext, aad)
	require.NoError(t, err)
	require.Equal(t, pt, got)
}

func TestDecryptFailsOnAADMismatch(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	sealed, err := Encrypt(key, []byte("secret"), []byte("P001:1"))
	require.NoError(t, err)

	_, err = Decrypt(key, sealed.Nonce, sealed.Ciphertext, []byte("P001:2"))
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x99}, 32)
	sealed, err := Encrypt(key, []byte("secret"), nil)
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed.Ciphertext...)
	tampered[0] ^= 0xFF

	_, err = Decrypt(key, sealed.Nonce, tampered, nil)
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestEncryptRejectsBadKeyLength(t *testing.T) {
	_, err := Encrypt(make([]byte, 16), []byte("x"), nil)
	require.ErrorIs(t, err, ErrKeyLength)
}

func TestNoncesAreNotConstant(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, 32)
	a, err := Encrypt(key, []byte("x"), nil)
	require.NoError(t, err)
	b, err := Encrypt(key, []byte("x"), nil)
	require.NoError(t, err)
	require.NotEqual(t, a.Nonce, b.Nonce)
}
