package providertest

import (
	"net/http"
	"strings"
)

// errorResponse is the provider's error body
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// errorStatus maps error codes to the status lines the provider uses
var errorStatus = map[string]int{
	"authorization_pending": http.StatusPreconditionRequired,
	"slow_down":             http.StatusForbidden,
	"access_denied":         http.StatusForbidden,
	"invalid_client":        http.StatusUnauthorized,
}

// writeError sends an error body with the status the code calls for
func (p *Provider) writeError(w http.ResponseWriter, code, description string) {
	status, ok := errorStatus[code]
	if !ok {
		status = http.StatusBadRequest
	}
	p.writeJSON(w, status, errorResponse{
		Error:            code,
		ErrorDescription: strings.TrimSpace(description),
	})
}
