package dkaudit

// pick returns the update-sourced value when present, otherwise the
// calculate-sourced value. This is the single precedence rule for every field
// carried by both payloads.
func pick[T any](update, calc *T) *T {
	if update != nil {
		return update
	}
	return calc
}

// pickSlice is pick for list-valued fields; an empty update list means the
// update did not revise the field.
func pickSlice[T any](update, calc []T) []T {
	if len(update) > 0 {
		return update
	}
	return calc
}

// mergeClinicalFields applies update-wins precedence across the fields both
// payloads carry, returning the calculate payload with revisions folded in.
func mergeClinicalFields(calc CalculatePayload, upd UpdatePayload) CalculatePayload {
	merged := calc
	merged.PreExistingDiabetes = pick(upd.PreExistingDiabetes, calc.PreExistingDiabetes)
	merged.InsulinDeliveryMethod = pick(upd.InsulinDeliveryMethod, calc.InsulinDeliveryMethod)
	merged.EthnicGroup = pick(upd.EthnicGroup, calc.EthnicGroup)
	merged.EthnicSubgroup = pick(upd.EthnicSubgroup, calc.EthnicSubgroup)
	merged.PreventableFactors = pickSlice(upd.PreventableFactors, calc.PreventableFactors)
	merged.IMDDecile = pick(upd.IMDDecile, calc.IMDDecile)
	return merged
}
