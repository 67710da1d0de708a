package dkaudit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDecryptError(t *testing.T) {
	t.Run("preserves an existing decrypt error", func(t *testing.T) {
		base := fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
		err := NewDecryptError("AB12CD", base)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
		assert.Contains(t, err.Error(), "AB12CD")
	})

	t.Run("tags foreign errors as decrypt failures", func(t *testing.T) {
		err := NewDecryptError("AB12CD", errors.New("short read"))
		assert.ErrorIs(t, err, ErrDecryptionFailed)
		assert.Contains(t, err.Error(), "AB12CD")
	})
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		configuration bool
		skippable     bool
		store         bool
	}{
		{"invalid configuration", fmt.Errorf("%w: db_path", ErrInvalidConfiguration), true, false, false},
		{"invalid key material", ErrKeyMaterialInvalid, true, false, false},
		{"decryption failed", fmt.Errorf("%w: bad tag", ErrDecryptionFailed), false, true, false},
		{"malformed payload", ErrMalformedPayload, false, true, false},
		{"store unavailable", fmt.Errorf("%w: locked", ErrStoreUnavailable), false, false, true},
		{"record not found", ErrRecordNotFound, false, false, true},
		{"unrelated", errors.New("boom"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.configuration, IsConfigurationError(tt.err))
			assert.Equal(t, tt.skippable, IsSkippableError(tt.err))
			assert.Equal(t, tt.store, IsStoreError(tt.err))
		})
	}
}
