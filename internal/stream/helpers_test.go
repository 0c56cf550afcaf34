// ABOUTME: Shared test helpers for the stream package
// ABOUTME: JSON body decoding for httptest handlers

package stream

import (
	"encoding/json"
	"net/http"
)

func decodeJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
