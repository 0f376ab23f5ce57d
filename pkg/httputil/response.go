package httputil

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes data as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 response with the given payload.
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a 201 response with the created resource.
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes an empty 204 response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// SuccessResponse wraps a payload with a human-readable outcome message.
// Mutating endpoints that have something to say beyond the resource itself
// (grant counts, sweep totals) respond with this shape.
type SuccessResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// WriteSuccessMessage writes a 200 response wrapping data in a
// SuccessResponse envelope.
func WriteSuccessMessage(w http.ResponseWriter, message string, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

// writeErrorMessage writes the error body every failure response shares.
func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteValidationError writes a 400 for missing or malformed input.
func WriteValidationError(w http.ResponseWriter, message string) {
	writeErrorMessage(w, http.StatusBadRequest, message)
}

// WriteBadRequest writes a 400 with the given message.
func WriteBadRequest(w http.ResponseWriter, message string) {
	writeErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes a 401 for requests lacking a verified identity.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	writeErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a 403 for callers without the required rights.
func WriteForbidden(w http.ResponseWriter, message string) {
	writeErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFoundError writes a 404 for an absent resource.
func WriteNotFoundError(w http.ResponseWriter, message string) {
	writeErrorMessage(w, http.StatusNotFound, message)
}

// WriteConflict writes a 409 for uniqueness collisions.
func WriteConflict(w http.ResponseWriter, message string) {
	writeErrorMessage(w, http.StatusConflict, message)
}

// WriteTooManyRequests writes a 429 for rate limit and quota rejections.
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	writeErrorMessage(w, http.StatusTooManyRequests, message)
}

// WriteInternalError writes a 500 carrying the error text.
func WriteInternalError(w http.ResponseWriter, err error) {
	writeErrorMessage(w, http.StatusInternalServerError, err.Error())
}
