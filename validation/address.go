package validation

import (
	"context"

	"github.com/c360/formflow/submission"
)

// AddressValidator resolves the raw address inputs named by validate_*
// markers into normalized addresses. A nil entry means no match was found.
type AddressValidator interface {
	ValidateAddresses(ctx context.Context, inputs []string, form *submission.FormSubmission) (map[string]*submission.Address, error)
}

// NoopAddressValidator finds no address for any input
type NoopAddressValidator struct{}

// ValidateAddresses returns a nil result for every input
func (NoopAddressValidator) ValidateAddresses(_ context.Context, inputs []string, _ *submission.FormSubmission) (map[string]*submission.Address, error) {
	out := make(map[string]*submission.Address, len(inputs))
	for _, input := range inputs {
		out[input] = nil
	}
	return out, nil
}

// AddressInputs maps validate_<input> marker keys to their input names
func AddressInputs(markers []string) []string {
	out := make([]string, 0, len(markers))
	for _, m := range markers {
		out = append(out, m[len(submission.MarkerValidateAddress):])
	}
	return out
}
