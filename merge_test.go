package dkaudit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeClinicalFields(t *testing.T) {
	calc := CalculatePayload{
		PreExistingDiabetes:   ptr(false),
		InsulinDeliveryMethod: ptr("pump"),
		EthnicGroup:           ptr("White"),
		EthnicSubgroup:        ptr("British"),
		PreventableFactors:    []string{"missed education"},
		IMDDecile:             ptr(3),
		PH:                    ptr(7.1),
	}

	t.Run("update values win when present", func(t *testing.T) {
		upd := UpdatePayload{
			PreExistingDiabetes: ptr(true),
			EthnicGroup:         ptr("Asian"),
			PreventableFactors:  []string{"none"},
			IMDDecile:           ptr(7),
		}

		merged := mergeClinicalFields(calc, upd)
		assert.Equal(t, ptr(true), merged.PreExistingDiabetes)
		assert.Equal(t, ptr("Asian"), merged.EthnicGroup)
		assert.Equal(t, []string{"none"}, merged.PreventableFactors)
		assert.Equal(t, ptr(7), merged.IMDDecile)
		// Fields the update left null keep the calculate value.
		assert.Equal(t, ptr("pump"), merged.InsulinDeliveryMethod)
		assert.Equal(t, ptr("British"), merged.EthnicSubgroup)
	})

	t.Run("empty update changes nothing", func(t *testing.T) {
		merged := mergeClinicalFields(calc, UpdatePayload{})
		assert.Equal(t, calc, merged)
	})

	t.Run("calculate-only fields pass through", func(t *testing.T) {
		merged := mergeClinicalFields(calc, UpdatePayload{IMDDecile: ptr(9)})
		assert.Equal(t, ptr(7.1), merged.PH)
	})
}
