package api

import (
	"encoding/json"
	"net/http"
)

// JSON bodies are tiny control messages; workspace content rides raw bodies
// with their own cap.
const maxJSONBodyBytes int64 = 1 * 1024 * 1024

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}
