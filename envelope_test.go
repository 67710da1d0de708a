package dkaudit

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func samplePayload() CalculatePayload {
	return CalculatePayload{
		ProtocolStartDatetime: ptr("2025-01-01T10:00:00Z"),
		PatientAge:            ptr(9.5),
		PatientSex:            ptr("female"),
		PH:                    ptr(7.05),
		Bicarbonate:           ptr(12.4),
		Glucose:               ptr(28.1),
		Ketones:               ptr(5.6),
		ShockPresent:          ptr(false),
		InsulinRate:           ptr(0.05),
		PreExistingDiabetes:   ptr(true),
		EthnicGroup:           ptr("White"),
		PreventableFactors:    []string{"none"},
		IMDDecile:             ptr(4),
		Calculations:          map[string]float64{"fluidDeficit": 1350, "bolusVolume": 270},
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	cipher := NewTestCipher(t)
	payload := samplePayload()

	env, err := cipher.EncryptPayload(payload)
	require.NoError(t, err)

	var got CalculatePayload
	require.NoError(t, cipher.DecryptPayload(env, &got))
	assert.Equal(t, payload, got)
}

func TestEnvelopeFreshKeyPerCall(t *testing.T) {
	cipher := NewTestCipher(t)

	first, err := cipher.EncryptPayload(samplePayload())
	require.NoError(t, err)
	second, err := cipher.EncryptPayload(samplePayload())
	require.NoError(t, err)

	assert.NotEqual(t, first.CipherText, second.CipherText)
	assert.NotEqual(t, first.WrappedKey, second.WrappedKey)
	assert.NotEqual(t, first.IV, second.IV)
}

// flipBit corrupts a single bit of a base64 envelope field.
func flipBit(t *testing.T, encoded string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	raw[0] ^= 0x01
	return base64.StdEncoding.EncodeToString(raw)
}

func TestEnvelopeTamperSensitivity(t *testing.T) {
	cipher := NewTestCipher(t)

	tests := []struct {
		name   string
		mutate func(t *testing.T, env *Envelope)
	}{
		{"cipherText", func(t *testing.T, env *Envelope) { env.CipherText = flipBit(t, env.CipherText) }},
		{"wrappedKey", func(t *testing.T, env *Envelope) { env.WrappedKey = flipBit(t, env.WrappedKey) }},
		{"iv", func(t *testing.T, env *Envelope) { env.IV = flipBit(t, env.IV) }},
		{"authTag", func(t *testing.T, env *Envelope) { env.AuthTag = flipBit(t, env.AuthTag) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := cipher.EncryptPayload(samplePayload())
			require.NoError(t, err)

			tt.mutate(t, &env)

			var got CalculatePayload
			err = cipher.DecryptPayload(env, &got)
			assert.ErrorIs(t, err, ErrDecryptionFailed)
			assert.Zero(t, got, "no partial plaintext on failure")
		})
	}
}

func TestEnvelopeWrongKey(t *testing.T) {
	cipher := NewTestCipher(t)
	other := NewTestCipher(t)

	env, err := cipher.EncryptPayload(samplePayload())
	require.NoError(t, err)

	var got CalculatePayload
	assert.ErrorIs(t, other.DecryptPayload(env, &got), ErrDecryptionFailed)
}

func TestEnvelopeMalformedPayload(t *testing.T) {
	cipher := NewTestCipher(t)

	env, err := cipher.seal([]byte("not json at all"))
	require.NoError(t, err)

	var got CalculatePayload
	assert.ErrorIs(t, cipher.DecryptPayload(env, &got), ErrMalformedPayload)
}

func TestEnvelopeGarbageFields(t *testing.T) {
	cipher := NewTestCipher(t)

	var got CalculatePayload
	err := cipher.DecryptPayload(Envelope{
		CipherText: "%%%not-base64%%%",
		WrappedKey: "AAAA",
		IV:         "AAAA",
		AuthTag:    "AAAA",
	}, &got)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestNewEnvelopeCipher(t *testing.T) {
	keys, err := GenerateKeyMaterial(2048)
	require.NoError(t, err)
	mismatched, err := GenerateKeyMaterial(2048)
	require.NoError(t, err)

	tests := []struct {
		name    string
		keys    KeyMaterial
		wantErr bool
	}{
		{"full keypair", keys, false},
		{"encrypt only", KeyMaterial{PublicKey: keys.PublicKey}, false},
		{"missing public key", KeyMaterial{PrivateKey: keys.PrivateKey}, true},
		{"mismatched keypair", KeyMaterial{PublicKey: keys.PublicKey, PrivateKey: mismatched.PrivateKey}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cipher, err := NewEnvelopeCipher(tt.keys)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrKeyMaterialInvalid)
				assert.Nil(t, cipher)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, cipher)
			}
		})
	}
}

func TestEncryptOnlyCipherCannotDecrypt(t *testing.T) {
	keys, err := GenerateKeyMaterial(2048)
	require.NoError(t, err)

	cipher, err := NewEnvelopeCipher(KeyMaterial{PublicKey: keys.PublicKey})
	require.NoError(t, err)

	env, err := cipher.EncryptPayload(samplePayload())
	require.NoError(t, err)

	var got CalculatePayload
	assert.ErrorIs(t, cipher.DecryptPayload(env, &got), ErrKeyMaterialInvalid)
}
