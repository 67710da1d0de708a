package dkaudit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyMaterialPEMRoundTrip(t *testing.T) {
	keys, err := GenerateKeyMaterial(2048)
	require.NoError(t, err)

	publicPEM, err := EncodePublicKeyPEM(keys.PublicKey)
	require.NoError(t, err)
	privatePEM, err := EncodePrivateKeyPEM(keys.PrivateKey)
	require.NoError(t, err)

	parsed, err := ParseKeyMaterial(publicPEM, privatePEM)
	require.NoError(t, err)
	assert.True(t, parsed.PublicKey.Equal(keys.PublicKey))
	assert.True(t, parsed.PrivateKey.Equal(keys.PrivateKey))
}

func TestParseKeyMaterialPublicOnly(t *testing.T) {
	keys, err := GenerateKeyMaterial(2048)
	require.NoError(t, err)
	publicPEM, err := EncodePublicKeyPEM(keys.PublicKey)
	require.NoError(t, err)

	parsed, err := ParseKeyMaterial(publicPEM, nil)
	require.NoError(t, err)
	assert.NotNil(t, parsed.PublicKey)
	assert.Nil(t, parsed.PrivateKey)
}

func TestParseKeyMaterialInvalid(t *testing.T) {
	keys, err := GenerateKeyMaterial(2048)
	require.NoError(t, err)
	publicPEM, err := EncodePublicKeyPEM(keys.PublicKey)
	require.NoError(t, err)

	tests := []struct {
		name       string
		publicPEM  []byte
		privatePEM []byte
	}{
		{"garbage public key", []byte("not a pem block"), nil},
		{"garbage private key", publicPEM, []byte("not a pem block")},
		{"empty public key", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseKeyMaterial(tt.publicPEM, tt.privatePEM)
			assert.ErrorIs(t, err, ErrKeyMaterialInvalid)
		})
	}
}

func TestLoadKeyMaterialFromFiles(t *testing.T) {
	keys, err := GenerateKeyMaterial(2048)
	require.NoError(t, err)
	publicPEM, err := EncodePublicKeyPEM(keys.PublicKey)
	require.NoError(t, err)
	privatePEM, err := EncodePrivateKeyPEM(keys.PrivateKey)
	require.NoError(t, err)

	dir := t.TempDir()
	publicPath := filepath.Join(dir, "public.pem")
	privatePath := filepath.Join(dir, "private.pem")
	require.NoError(t, os.WriteFile(publicPath, publicPEM, 0o600))
	require.NoError(t, os.WriteFile(privatePath, privatePEM, 0o600))

	loaded, err := LoadKeyMaterialFromFiles(publicPath, privatePath)
	require.NoError(t, err)
	assert.True(t, loaded.PublicKey.Equal(keys.PublicKey))
	assert.True(t, loaded.PrivateKey.Equal(keys.PrivateKey))

	// Encrypt-only deployments omit the private key path.
	publicOnly, err := LoadKeyMaterialFromFiles(publicPath, "")
	require.NoError(t, err)
	assert.Nil(t, publicOnly.PrivateKey)

	_, err = LoadKeyMaterialFromFiles(filepath.Join(dir, "missing.pem"), "")
	assert.ErrorIs(t, err, ErrKeyMaterialInvalid)
}
