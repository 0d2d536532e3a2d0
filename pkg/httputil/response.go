package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteJSONP writes data wrapped in a JSONP callback invocation. The status
// on the wire is always 200; the real status travels as the second callback
// argument so embedded <script> consumers can see it.
func WriteJSONP(w http.ResponseWriter, callback string, status int, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/javascript")
	w.WriteHeader(http.StatusOK)
	_, err = fmt.Fprintf(w, "%s(%s, %d)", callback, payload, status)
	return err
}

// ErrorBody is the machine-readable error format of the protocol.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteErrorCode writes the protocol error body with the given status.
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{Code: code, Message: message})
}

// WriteSuccess writes a 200 response with JSON data.
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}
