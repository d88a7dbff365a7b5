package utils

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// WriteJSONResponse writes a JSON response with the given status code
// Sets Content-Type header and handles JSON encoding
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteTextResponse writes a plain-text response with the given status code.
// Webhook providers expect text/plain bodies on handshake and ack responses.
// Content-Length is set explicitly so the response is complete on the wire
// even when the handler keeps running after an early flush.
func WriteTextResponse(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(statusCode)
	w.Write([]byte(body))
}
