package dkaudit

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadConfigFromEnvironment.
const (
	EnvKeySource       = "DKAUDIT_KEY_SOURCE"
	EnvPublicKeyPath   = "DKAUDIT_PUBLIC_KEY_PATH"
	EnvPrivateKeyPath  = "DKAUDIT_PRIVATE_KEY_PATH"
	EnvVaultSecretPath = "DKAUDIT_VAULT_SECRET_PATH"
	EnvAWSSecretName   = "DKAUDIT_AWS_SECRET_NAME"
	EnvAWSRegion       = "DKAUDIT_AWS_REGION"
	EnvDBPath          = "DKAUDIT_DB_PATH"
	EnvDBFilename      = "DKAUDIT_DB_FILENAME"
	EnvLiveTables      = "DKAUDIT_LIVE_TABLES"
	EnvExportBucket    = "DKAUDIT_EXPORT_BUCKET"
	EnvExportPrefix    = "DKAUDIT_EXPORT_PREFIX"
)

// LoadConfigFromFile reads and validates a YAML configuration file.
func LoadConfigFromFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse config file: %w", ErrInvalidConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFromEnvironment builds a validated Config from DKAUDIT_*
// environment variables, 12-factor style.
func LoadConfigFromEnvironment() (Config, error) {
	cfg := Config{
		KeySource:       os.Getenv(EnvKeySource),
		PublicKeyPath:   os.Getenv(EnvPublicKeyPath),
		PrivateKeyPath:  os.Getenv(EnvPrivateKeyPath),
		VaultSecretPath: os.Getenv(EnvVaultSecretPath),
		AWSSecretName:   os.Getenv(EnvAWSSecretName),
		AWSRegion:       os.Getenv(EnvAWSRegion),
		DBPath:          getEnvOrDefault(EnvDBPath, DefaultDBPath),
		DBFilename:      getEnvOrDefault(EnvDBFilename, DefaultDBFilename),
		LiveTables:      os.Getenv(EnvLiveTables) == "true",
		ExportBucket:    os.Getenv(EnvExportBucket),
		ExportPrefix:    os.Getenv(EnvExportPrefix),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// getEnvOrDefault returns the environment variable's value, or the default
// when unset or empty.
func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
