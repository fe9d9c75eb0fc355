package submission

import (
	"net/url"
	"sort"
	"strings"
)

// Field name markers understood by the request pipeline
const (
	MarkerCSRF            = "_csrf"
	MarkerValidateAddress = "validate_"
	MarkerValidated       = "_validated"
)

// AddressParts lists the suffixes written for a validated address, in order
var AddressParts = []string{"StreetAddress1", "StreetAddress2", "City", "State", "ZipCode"}

// Address is a normalized address returned by an address validator
type Address struct {
	StreetAddress   string `json:"street_address"`
	ApartmentNumber string `json:"apartment_number"`
	City            string `json:"city"`
	State           string `json:"state"`
	ZipCode         string `json:"zip_code"`
}

func (a Address) parts() []string {
	return []string{a.StreetAddress, a.ApartmentNumber, a.City, a.State, a.ZipCode}
}

// FormSubmission is the normalized data of one POST
type FormSubmission struct {
	Data map[string]Value
}

// NewFormSubmission normalizes posted form values. Keys ending in "[]" stay
// lists (a lone hidden "" becomes an empty list); a leading hidden "" is
// dropped from multi-value fields; other single values are flattened.
func NewFormSubmission(values url.Values) *FormSubmission {
	data := make(map[string]Value, len(values))
	for key, raw := range values {
		items := append([]string(nil), raw...)
		isList := strings.Contains(key, "[]")

		if isList && len(items) == 1 && items[0] == "" {
			items = items[:0]
		}
		if len(items) > 1 && items[0] == "" {
			items = items[1:]
		}

		if len(items) == 1 && !isList {
			data[key] = Scalar(items[0])
			continue
		}
		data[key] = List(items...)
	}
	return &FormSubmission{Data: data}
}

// FormSubmissionFromMap wraps already-normalized data
func FormSubmissionFromMap(data map[string]Value) *FormSubmission {
	if data == nil {
		data = make(map[string]Value)
	}
	return &FormSubmission{Data: data}
}

// ValidatableFields returns the fields that are not pipeline markers
func (f *FormSubmission) ValidatableFields() map[string]Value {
	out := make(map[string]Value, len(f.Data))
	for k, v := range f.Data {
		if strings.Contains(k, MarkerCSRF) || strings.Contains(k, MarkerValidateAddress) {
			continue
		}
		out[k] = v
	}
	return out
}

// AddressValidationFields returns the marker keys requesting validation,
// such as "validate_residentialAddress", sorted.
func (f *FormSubmission) AddressValidationFields() []string {
	var fields []string
	for k, v := range f.Data {
		if !strings.HasPrefix(k, MarkerValidateAddress) {
			continue
		}
		if s, ok := v.AsScalar(); ok && strings.EqualFold(s, "true") {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}

// SetValidatedAddress writes each validated address as
// <input><Part>_validated fields. Nil entries are skipped.
func (f *FormSubmission) SetValidatedAddress(validated map[string]*Address) {
	for input, addr := range validated {
		if addr == nil {
			continue
		}
		for i, part := range addr.parts() {
			f.Data[input+AddressParts[i]+MarkerValidated] = Scalar(part)
		}
	}
}

// ClearAddressFields removes previously validated parts of an address input
func (s *Submission) ClearAddressFields(input string) {
	for _, part := range AddressParts {
		delete(s.InputData, input+part+MarkerValidated)
	}
}

// Strip removes pipeline marker fields before the data is persisted
func (f *FormSubmission) Strip() {
	for k := range f.Data {
		if strings.Contains(k, MarkerCSRF) {
			delete(f.Data, k)
		}
	}
}
