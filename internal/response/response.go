// Package response validates identity provider JSON responses and copies
// their fields into bounded destinations
package response

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/wrale/oauth2-device-client/internal/validation"
)

var (
	// ErrMalformedResponse indicates the body is not a JSON object or a field has the wrong type
	ErrMalformedResponse = errors.New("malformed response")

	// ErrMissingField indicates a required key is absent
	ErrMissingField = errors.New("missing field")

	// ErrProvider indicates the provider answered with an error object
	ErrProvider = errors.New("provider error")
)

// MissingFieldError names the first required key that was absent
type MissingFieldError struct {
	Name string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Name)
}

// Is reports ErrMissingField
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// ProviderError carries an OAuth error response, e.g. authorization_pending
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return "provider error: " + e.Code
	}
	return fmt.Sprintf("provider error: %s: %s", e.Code, e.Description)
}

// Is reports ErrProvider
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// Fields is a parsed response object
type Fields struct {
	obj gjson.Result
}

// Decode parses body as a single JSON object. An "error" key fails with a
// *ProviderError before required keys are checked; an absent required key
// fails with a *MissingFieldError.
func Decode(body []byte, required ...string) (*Fields, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedResponse)
	}
	obj := gjson.ParseBytes(body)
	if !obj.IsObject() {
		return nil, fmt.Errorf("%w: expected JSON object, got %s", ErrMalformedResponse, obj.Type)
	}

	f := &Fields{obj: obj}
	if code := f.get("error"); code.Exists() {
		return nil, &ProviderError{
			Code:        code.String(),
			Description: f.get("error_description").String(),
		}
	}

	for _, name := range required {
		if !f.Has(name) {
			return nil, &MissingFieldError{Name: name}
		}
	}
	return f, nil
}

// get looks up a top-level key literally, without gjson path syntax
func (f *Fields) get(name string) gjson.Result {
	var out gjson.Result
	f.obj.ForEach(func(key, value gjson.Result) bool {
		if key.String() == name {
			out = value
			return false
		}
		return true
	})
	return out
}

// Has reports whether the key is present
func (f *Fields) Has(name string) bool {
	return f.get(name).Exists()
}

// First returns the name of the first present key among names
func (f *Fields) First(names ...string) (string, bool) {
	for _, n := range names {
		if f.Has(n) {
			return n, true
		}
	}
	return "", false
}

// String returns a string field. Non-string values are rejected.
func (f *Fields) String(name string) (string, error) {
	v := f.get(name)
	if !v.Exists() {
		return "", &MissingFieldError{Name: name}
	}
	if v.Type != gjson.String {
		return "", fmt.Errorf("%w: field %q is %s, want string", ErrMalformedResponse, name, v.Type)
	}
	return v.Str, nil
}

// CopyString copies a string field into dst, failing with
// validation.ErrValueTooLong if it does not fit
func (f *Fields) CopyString(name string, dst *validation.Bounded) error {
	s, err := f.String(name)
	if err != nil {
		return err
	}
	return dst.Set(s)
}

// Seconds returns a non-negative integer field. Numeric strings are accepted
// since some providers quote numbers.
func (f *Fields) Seconds(name string) (uint64, error) {
	v := f.get(name)
	if !v.Exists() {
		return 0, &MissingFieldError{Name: name}
	}

	switch v.Type {
	case gjson.Number:
		if v.Num < 0 || v.Num != math.Trunc(v.Num) || v.Num > math.MaxUint32 {
			return 0, fmt.Errorf("%w: field %q is not a non-negative integer: %s", ErrMalformedResponse, name, v.Raw)
		}
		return uint64(v.Num), nil
	case gjson.String:
		n, err := strconv.ParseUint(v.Str, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: field %q is not a non-negative integer: %q", ErrMalformedResponse, name, v.Str)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: field %q is %s, want number", ErrMalformedResponse, name, v.Type)
	}
}
