package dkaudit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"file source with public key", Config{PublicKeyPath: "keys/public.pem"}, false},
		{"file source missing public key", Config{KeySource: KeySourceFile}, true},
		{"vault source with path", Config{KeySource: KeySourceVault, VaultSecretPath: "secret/dkaudit"}, false},
		{"vault source missing path", Config{KeySource: KeySourceVault}, true},
		{"aws source with secret name", Config{KeySource: KeySourceAWS, AWSSecretName: "dkaudit/keys"}, false},
		{"aws source missing secret name", Config{KeySource: KeySourceAWS}, true},
		{"unknown key source", Config{KeySource: "hsm"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
				assert.True(t, IsConfigurationError(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfigValidateAppliesDefaults(t *testing.T) {
	cfg := Config{PublicKeyPath: "keys/public.pem"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, KeySourceFile, cfg.KeySource)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultDBFilename, cfg.DBFilename)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "config.yaml")
		content := `key_source: file
public_key_path: keys/public.pem
private_key_path: keys/private.pem
db_path: /var/lib/dkaudit
live_tables: true
export_bucket: dkaudit-exports
export_prefix: weekly/
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := LoadConfigFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, "keys/public.pem", cfg.PublicKeyPath)
		assert.Equal(t, "keys/private.pem", cfg.PrivateKeyPath)
		assert.Equal(t, "/var/lib/dkaudit", cfg.DBPath)
		assert.Equal(t, DefaultDBFilename, cfg.DBFilename)
		assert.True(t, cfg.LiveTables)
		assert.Equal(t, "dkaudit-exports", cfg.ExportBucket)
		assert.Equal(t, "weekly/", cfg.ExportPrefix)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("key_source: [unterminated"), 0o600))

		_, err := LoadConfigFromFile(path)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfigFromFile(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv(EnvKeySource, KeySourceVault)
	t.Setenv(EnvVaultSecretPath, "secret/data/dkaudit")
	t.Setenv(EnvDBFilename, "live.db")
	t.Setenv(EnvLiveTables, "true")

	cfg, err := LoadConfigFromEnvironment()
	require.NoError(t, err)
	assert.Equal(t, KeySourceVault, cfg.KeySource)
	assert.Equal(t, "secret/data/dkaudit", cfg.VaultSecretPath)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, "live.db", cfg.DBFilename)
	assert.True(t, cfg.LiveTables)
}

func TestLoadConfigFromEnvironmentInvalid(t *testing.T) {
	t.Setenv(EnvKeySource, KeySourceAWS)
	t.Setenv(EnvAWSSecretName, "")

	_, err := LoadConfigFromEnvironment()
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
