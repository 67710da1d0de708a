package dkaudit

import (
	"fmt"

	"github.com/hengadev/errsx"
)

// Key source selectors for Config.KeySource.
const (
	KeySourceFile  = "file"
	KeySourceVault = "vault"
	KeySourceAWS   = "awssm"
)

// Defaults applied by Validate.
const (
	DefaultDBPath     = ".dkaudit"
	DefaultDBFilename = "audit.db"
)

// Config holds everything the batch job needs. It contains only data, no
// behavior; load it from a YAML file, the environment, or code, then pass it
// explicitly to the constructors.
type Config struct {
	// KeySource selects where the RSA keypair comes from: "file" (default),
	// "vault" or "awssm".
	KeySource string `yaml:"key_source"`

	// PublicKeyPath / PrivateKeyPath locate the PEM files when KeySource is
	// "file". PrivateKeyPath may be empty for encrypt-only deployments.
	PublicKeyPath  string `yaml:"public_key_path"`
	PrivateKeyPath string `yaml:"private_key_path"`

	// VaultSecretPath is the KV v2 path holding the keypair when KeySource
	// is "vault". Vault connection details come from the standard VAULT_*
	// environment variables.
	VaultSecretPath string `yaml:"vault_secret_path"`

	// AWSSecretName names the Secrets Manager secret holding the keypair
	// when KeySource is "awssm".
	AWSSecretName string `yaml:"aws_secret_name"`
	AWSRegion     string `yaml:"aws_region"`

	// DBPath / DBFilename locate the SQLite audit database.
	// Defaults: .dkaudit / audit.db.
	DBPath     string `yaml:"db_path"`
	DBFilename string `yaml:"db_filename"`

	// LiveTables selects the production table set instead of the
	// development one for both input and output.
	LiveTables bool `yaml:"live_tables"`

	// ExportBucket, when set, has the streamlined CSV uploaded to S3 after a
	// run; ExportPrefix prefixes the object key.
	ExportBucket string `yaml:"export_bucket"`
	ExportPrefix string `yaml:"export_prefix"`
}

// Validate checks the configuration and applies defaults in place.
func (c *Config) Validate() error {
	var errs errsx.Map

	if c.KeySource == "" {
		c.KeySource = KeySourceFile
	}
	switch c.KeySource {
	case KeySourceFile:
		if c.PublicKeyPath == "" {
			errs.Set("public_key_path", "required when key_source is \"file\"")
		}
	case KeySourceVault:
		if c.VaultSecretPath == "" {
			errs.Set("vault_secret_path", "required when key_source is \"vault\"")
		}
	case KeySourceAWS:
		if c.AWSSecretName == "" {
			errs.Set("aws_secret_name", "required when key_source is \"awssm\"")
		}
	default:
		errs.Set("key_source", fmt.Sprintf("unknown key source %q", c.KeySource))
	}

	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.DBFilename == "" {
		c.DBFilename = DefaultDBFilename
	}

	if !errs.IsEmpty() {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errs.AsError())
	}
	return nil
}
