// Package vaultkeys loads the audit RSA keypair from HashiCorp Vault's KV v2
// engine.
//
// The secret at the configured path must hold the PEM-encoded keys under the
// "public_key" and "private_key" fields; "private_key" may be absent for
// encrypt-only deployments. The KV v2 engine wraps stored fields in a "data"
// key, so a secret written to secret/data/dkaudit/keys reads back as
// data.data.public_key.
package vaultkeys

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/vault/api"
)

// KeySource implements dkaudit.KeySource against Vault KV v2.
type KeySource struct {
	client     *api.Client
	secretPath string
}

// New creates a KeySource reading from secretPath (including the KV v2
// "/data/" segment, e.g. "secret/data/dkaudit/keys").
//
// Connection settings come from the standard environment: VAULT_ADDR,
// VAULT_NAMESPACE, VAULT_TOKEN, or AppRole via VAULT_ROLE_ID/VAULT_SECRET_ID.
func New(secretPath string) (*KeySource, error) {
	if secretPath == "" {
		return nil, fmt.Errorf("vault secret path is required")
	}

	config := api.DefaultConfig()
	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		config.Address = addr
	}
	config.HttpClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if namespace := os.Getenv("VAULT_NAMESPACE"); namespace != "" {
		client.SetNamespace(namespace)
	}

	roleID := os.Getenv("VAULT_ROLE_ID")
	secretID := os.Getenv("VAULT_SECRET_ID")
	if roleID != "" && secretID != "" {
		resp, err := client.Logical().Write("auth/approle/login", map[string]interface{}{
			"role_id":   roleID,
			"secret_id": secretID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to login with AppRole: %w", err)
		}
		if resp.Auth == nil {
			return nil, fmt.Errorf("no auth info returned from AppRole login")
		}
		client.SetToken(resp.Auth.ClientToken)
	}

	return &KeySource{client: client, secretPath: secretPath}, nil
}

// FetchKeyPEMs reads the keypair PEMs from the configured secret.
func (s *KeySource) FetchKeyPEMs(ctx context.Context) ([]byte, []byte, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.secretPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read key material from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil, fmt.Errorf("no secret at Vault path %q", s.secretPath)
	}

	// KV v2 wraps fields in a "data" key.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		data = secret.Data
	}

	publicPEM, ok := data["public_key"].(string)
	if !ok || publicPEM == "" {
		return nil, nil, fmt.Errorf("secret at %q has no public_key field", s.secretPath)
	}
	privatePEM, _ := data["private_key"].(string)

	return []byte(publicPEM), []byte(privatePEM), nil
}
