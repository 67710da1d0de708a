package dkaudit

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// KeyMaterial holds the long-lived asymmetric keypair the audit envelopes are
// wrapped under. It is loaded once at startup and read-only for the run.
// PrivateKey may be nil for encrypt-only use (the calculator side never holds
// it).
type KeyMaterial struct {
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey
}

// KeySource fetches the keypair PEMs from wherever they are kept. The
// privatePEM may be empty for encrypt-only deployments. Implementations live
// in providers/.
type KeySource interface {
	FetchKeyPEMs(ctx context.Context) (publicPEM, privatePEM []byte, err error)
}

// ParseKeyMaterial parses PEM-encoded key material. privatePEM may be nil.
func ParseKeyMaterial(publicPEM, privatePEM []byte) (KeyMaterial, error) {
	pub, err := parsePublicKey(publicPEM)
	if err != nil {
		return KeyMaterial{}, err
	}
	km := KeyMaterial{PublicKey: pub}
	if len(privatePEM) > 0 {
		priv, err := parsePrivateKey(privatePEM)
		if err != nil {
			return KeyMaterial{}, err
		}
		km.PrivateKey = priv
	}
	return km, nil
}

// LoadKeyMaterialFromFiles reads the keypair from PEM files on disk.
// privatePath may be empty for encrypt-only use.
func LoadKeyMaterialFromFiles(publicPath, privatePath string) (KeyMaterial, error) {
	publicPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("%w: read public key: %w", ErrKeyMaterialInvalid, err)
	}
	var privatePEM []byte
	if privatePath != "" {
		privatePEM, err = os.ReadFile(privatePath)
		if err != nil {
			return KeyMaterial{}, fmt.Errorf("%w: read private key: %w", ErrKeyMaterialInvalid, err)
		}
	}
	return ParseKeyMaterial(publicPEM, privatePEM)
}

// LoadKeyMaterialFromSource fetches and parses the keypair from a KeySource.
func LoadKeyMaterialFromSource(ctx context.Context, src KeySource) (KeyMaterial, error) {
	publicPEM, privatePEM, err := src.FetchKeyPEMs(ctx)
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("%w: fetch key material: %w", ErrKeyMaterialInvalid, err)
	}
	return ParseKeyMaterial(publicPEM, privatePEM)
}

// GenerateKeyMaterial creates a fresh RSA keypair. Intended for provisioning
// and tests; production key material comes from a KeySource.
func GenerateKeyMaterial(bits int) (KeyMaterial, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return KeyMaterial{PublicKey: &priv.PublicKey, PrivateKey: priv}, nil
}

// EncodePublicKeyPEM renders the public key as a PKIX PEM block.
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// EncodePrivateKeyPEM renders the private key as a PKCS#8 PEM block.
func EncodePrivateKeyPEM(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

func parsePublicKey(publicPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(publicPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in public key", ErrKeyMaterialInvalid)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse public key: %w", ErrKeyMaterialInvalid, err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is %T, want RSA", ErrKeyMaterialInvalid, key)
	}
	return pub, nil
}

func parsePrivateKey(privatePEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(privatePEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in private key", ErrKeyMaterialInvalid)
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		priv, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: private key is %T, want RSA", ErrKeyMaterialInvalid, key)
		}
		return priv, nil
	}
	// Older deployments exported PKCS#1.
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %w", ErrKeyMaterialInvalid, err)
	}
	return priv, nil
}
