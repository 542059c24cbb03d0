package httpwire

import (
	"net/url"
	"strings"
)

// Form builds an application/x-www-form-urlencoded body that keeps fields in
// the order they were added
type Form struct {
	b strings.Builder
}

// Add appends key=value, escaping both
func (f *Form) Add(key, value string) *Form {
	if f.b.Len() > 0 {
		f.b.WriteByte('&')
	}
	f.b.WriteString(url.QueryEscape(key))
	f.b.WriteByte('=')
	f.b.WriteString(url.QueryEscape(value))
	return f
}

// Encode returns the encoded body
func (f *Form) Encode() []byte {
	return []byte(f.b.String())
}

// String returns the encoded body as text
func (f *Form) String() string {
	return f.b.String()
}
