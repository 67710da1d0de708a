package dkaudit

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors, fatal at startup.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrKeyMaterialInvalid   = errors.New("invalid key material")

	// Per-record errors, logged and skipped by the engines.
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrMalformedPayload = errors.New("malformed payload")

	// Store errors, propagated as run-level failures.
	ErrStoreUnavailable = errors.New("record store unavailable")
	ErrRecordNotFound   = errors.New("record not found")
)

// NewDecryptError tags a per-record decryption failure with the record it
// belongs to.
func NewDecryptError(auditID string, err error) error {
	if errors.Is(err, ErrDecryptionFailed) || errors.Is(err, ErrMalformedPayload) {
		return fmt.Errorf("record %s: %w", auditID, err)
	}
	return fmt.Errorf("%w: record %s: %w", ErrDecryptionFailed, auditID, err)
}

// IsConfigurationError reports whether the error means the run could never
// have succeeded as configured.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrKeyMaterialInvalid)
}

// IsSkippableError reports whether the error affects a single record only.
// The engines log these and continue; anything else aborts the run.
func IsSkippableError(err error) bool {
	return errors.Is(err, ErrDecryptionFailed) ||
		errors.Is(err, ErrMalformedPayload)
}

// IsStoreError reports whether the error came from the persistence layer.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrRecordNotFound)
}
