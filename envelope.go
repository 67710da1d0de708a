package dkaudit

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

const (
	// envelopeKeySize is the AES-256 key size.
	envelopeKeySize = 32
	// envelopeIVSize matches the 16-byte nonces the calculator client has
	// always produced; GCM is constructed with this nonce size explicitly.
	envelopeIVSize = 16
)

// EnvelopeCipher seals and opens audit payloads using envelope encryption: a
// fresh AES-256-GCM key per payload, wrapped under the configured RSA public
// key with OAEP(SHA-256). The cipher holds no state beyond the keypair and is
// safe for concurrent use.
type EnvelopeCipher struct {
	keys KeyMaterial
}

// NewEnvelopeCipher validates the key material and returns a cipher. A nil
// private key is allowed; such a cipher can encrypt but not decrypt.
func NewEnvelopeCipher(keys KeyMaterial) (*EnvelopeCipher, error) {
	if keys.PublicKey == nil {
		return nil, fmt.Errorf("%w: missing public key", ErrKeyMaterialInvalid)
	}
	if keys.PrivateKey != nil && !keys.PrivateKey.PublicKey.Equal(keys.PublicKey) {
		return nil, fmt.Errorf("%w: private key does not match public key", ErrKeyMaterialInvalid)
	}
	return &EnvelopeCipher{keys: keys}, nil
}

// EncryptPayload serializes the payload as JSON and seals it into an
// Envelope. Each call draws a fresh symmetric key and IV.
func (c *EnvelopeCipher) EncryptPayload(payload any) (Envelope, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: serialize payload: %w", ErrEncryptionFailed, err)
	}
	return c.seal(plaintext)
}

// DecryptPayload opens the envelope and unmarshals the plaintext into
// target. It fails closed: any corruption of the wrapped key, IV, ciphertext
// or tag yields ErrDecryptionFailed with no partial plaintext; a payload that
// decrypts but is not valid JSON yields ErrMalformedPayload.
func (c *EnvelopeCipher) DecryptPayload(env Envelope, target any) error {
	plaintext, err := c.open(env)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, target); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return nil
}

func (c *EnvelopeCipher) seal(plaintext []byte) (Envelope, error) {
	key := make([]byte, envelopeKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return Envelope{}, fmt.Errorf("%w: key generation: %w", ErrEncryptionFailed, err)
	}
	iv := make([]byte, envelopeIVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Envelope{}, fmt.Errorf("%w: IV generation: %w", ErrEncryptionFailed, err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()
	cipherText, authTag := sealed[:tagStart], sealed[tagStart:]

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, c.keys.PublicKey, key, nil)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: wrap key: %w", ErrEncryptionFailed, err)
	}

	return Envelope{
		CipherText: base64.StdEncoding.EncodeToString(cipherText),
		WrappedKey: base64.StdEncoding.EncodeToString(wrappedKey),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(authTag),
	}, nil
}

func (c *EnvelopeCipher) open(env Envelope) ([]byte, error) {
	if c.keys.PrivateKey == nil {
		return nil, fmt.Errorf("%w: cipher has no private key", ErrKeyMaterialInvalid)
	}

	cipherText, err := base64.StdEncoding.DecodeString(env.CipherText)
	if err != nil {
		return nil, fmt.Errorf("%w: decode ciphertext: %w", ErrDecryptionFailed, err)
	}
	wrappedKey, err := base64.StdEncoding.DecodeString(env.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decode wrapped key: %w", ErrDecryptionFailed, err)
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: decode IV: %w", ErrDecryptionFailed, err)
	}
	authTag, err := base64.StdEncoding.DecodeString(env.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("%w: decode auth tag: %w", ErrDecryptionFailed, err)
	}
	if len(iv) != envelopeIVSize {
		return nil, fmt.Errorf("%w: IV is %d bytes, want %d", ErrDecryptionFailed, len(iv), envelopeIVSize)
	}

	key, err := rsa.DecryptOAEP(sha256.New(), nil, c.keys.PrivateKey, wrappedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap key: %w", ErrDecryptionFailed, err)
	}
	if len(key) != envelopeKeySize {
		return nil, fmt.Errorf("%w: unwrapped key is %d bytes, want %d", ErrDecryptionFailed, len(key), envelopeKeySize)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	plaintext, err := gcm.Open(nil, iv, append(cipherText, authTag...), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, envelopeIVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
