package validation

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/flowconfig"
	"github.com/c360/formflow/submission"
)

func personalInfo() *flowconfig.ScreenConfig {
	return &flowconfig.ScreenConfig{
		Name: "personalInfo",
		Validation: &flowconfig.ScreenValidation{
			Required: []string{"firstName", "lastName"},
			Fields: map[string]map[string]any{
				"firstName": {"type": "string", "maxLength": 10},
				"zip":       {"type": "string", "pattern": "^[0-9]{5}$"},
			},
			Messages: map[string]string{
				"firstName": "Make sure to provide a first name.",
			},
		},
	}
}

func TestSchemaValidator_Validate(t *testing.T) {
	v := NewSchemaValidator()

	tests := []struct {
		name   string
		values url.Values
		fields []string
		custom map[string]string
	}{
		{
			name:   "valid",
			values: url.Values{"firstName": {"Alex"}, "lastName": {"Doe"}, "zip": {"94110"}, "_csrf": {"token"}},
		},
		{
			name:   "blank required fields",
			values: url.Values{"firstName": {""}, "lastName": {""}},
			fields: []string{"firstName", "lastName"},
			custom: map[string]string{"firstName": "Make sure to provide a first name."},
		},
		{
			name:   "pattern mismatch",
			values: url.Values{"firstName": {"Alex"}, "lastName": {"Doe"}, "zip": {"abc"}},
			fields: []string{"zip"},
		},
		{
			name:   "custom message replaces rule message",
			values: url.Values{"firstName": {"Alexandrina-Maria"}, "lastName": {"Doe"}},
			fields: []string{"firstName"},
			custom: map[string]string{"firstName": "Make sure to provide a first name."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, err := v.Validate("ubi", personalInfo(), submission.NewFormSubmission(tt.values))
			require.NoError(t, err)
			if len(tt.fields) == 0 {
				assert.Empty(t, errs)
				return
			}
			assert.Equal(t, tt.fields, errs.Fields())
			for field, msg := range tt.custom {
				assert.Equal(t, []string{msg}, errs[field])
			}
		})
	}
}

func TestSchemaValidator_NoRules(t *testing.T) {
	errs, err := NewSchemaValidator().Validate("ubi", &flowconfig.ScreenConfig{Name: "intro"},
		submission.NewFormSubmission(url.Values{"anything": {"x"}}))
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestSchemaValidator_InvalidRules(t *testing.T) {
	screen := &flowconfig.ScreenConfig{
		Name: "broken",
		Validation: &flowconfig.ScreenValidation{
			Fields: map[string]map[string]any{"age": {"type": "not-a-type"}},
		},
	}
	_, err := NewSchemaValidator().Validate("ubi", screen, submission.NewFormSubmission(url.Values{"age": {"3"}}))
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestErrors_Merge(t *testing.T) {
	errs := Errors{"email": {"Enter an email"}}
	errs.Merge(map[string][]string{"email": {"Or a phone"}, "phone": {"Enter a phone"}})
	assert.Equal(t, []string{"Enter an email", "Or a phone"}, errs["email"])
	assert.Equal(t, []string{"email", "phone"}, errs.Fields())
}

func TestNoopAddressValidator(t *testing.T) {
	form := submission.NewFormSubmission(url.Values{
		"validate_residentialAddress": {"true"},
		"validate_mailingAddress":     {"false"},
	})
	inputs := AddressInputs(form.AddressValidationFields())
	assert.Equal(t, []string{"residentialAddress"}, inputs)

	got, err := NoopAddressValidator{}.ValidateAddresses(context.Background(), inputs, form)
	require.NoError(t, err)
	assert.Equal(t, map[string]*submission.Address{"residentialAddress": nil}, got)
}
