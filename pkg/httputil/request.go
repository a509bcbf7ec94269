package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxRequestBody caps credential-endpoint request bodies. The largest
// legitimate payload is an exchange assertion, well under this.
const MaxRequestBody = 1 << 20

// ParseJSON decodes the request body into dest, capping the read at
// MaxRequestBody unless a MaxBytesReader is already installed upstream.
func ParseJSON(r *http.Request, dest interface{}) error {
	body := io.LimitReader(r.Body, MaxRequestBody)
	if err := json.NewDecoder(body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is required")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseJSONOrError decodes the body and, on failure, writes the 400 error
// body itself. Returns false when the handler should stop.
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteValidationError(w, err.Error())
		return false
	}
	return true
}
