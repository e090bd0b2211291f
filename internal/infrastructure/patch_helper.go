package infrastructure

import (
	"encoding/json"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/domain/model"
	jsonpatch "github.com/evanphx/json-patch/v5"
)

// ApplyCartPatch applies an RFC 6902 patch to the cart and returns the result.
// The original is returned untouched on any failure.
func ApplyCartPatch(original model.ExternalCart, patchData []byte) (model.ExternalCart, error) {
	originalJSON, err := json.Marshal(original)
	if err != nil {
		return original, domain.Wrap(domain.ErrInvalidCart, err)
	}

	patch, err := jsonpatch.DecodePatch(patchData)
	if err != nil {
		return original, domain.Wrapf(domain.ErrPatchInvalid, "decode patch: %v", err)
	}

	modifiedJSON, err := patch.Apply(originalJSON)
	if err != nil {
		return original, domain.Wrapf(domain.ErrPatchInvalid, "apply patch: %v", err)
	}

	var updated model.ExternalCart
	if err := json.Unmarshal(modifiedJSON, &updated); err != nil {
		return original, domain.Wrap(domain.ErrPatchInvalid, err)
	}
	return updated, nil
}

// MergeDelta returns the RFC 7386 merge patch that turns before into after.
func MergeDelta(before, after any) (json.RawMessage, error) {
	a, err := json.Marshal(before)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(after)
	if err != nil {
		return nil, err
	}
	delta, err := jsonpatch.CreateMergePatch(a, b)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(delta), nil
}
