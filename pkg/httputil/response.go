package httputil

import (
	"encoding/json"
	"net/http"
)

// Envelope is the body shape of every API response
type Envelope struct {
	Success  bool        `json:"success"`
	Code     string      `json:"code,omitempty"`
	Error    string      `json:"error,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Warnings interface{} `json:"warnings,omitempty"`
}

// Common diagnostic codes for request-level failures
const (
	CodeBadRequest = "BAD_REQUEST"
	CodeNotFound   = "NOT_FOUND"
	CodeInternal   = "INTERNAL_ERROR"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteData writes a successful envelope carrying data and optional warnings
func WriteData(w http.ResponseWriter, status int, data, warnings interface{}) {
	_ = WriteJSON(w, status, Envelope{
		Success:  true,
		Data:     data,
		Warnings: warnings,
	})
}

// WriteOK writes a 200 envelope carrying data
func WriteOK(w http.ResponseWriter, data interface{}) {
	WriteData(w, http.StatusOK, data, nil)
}

// WriteFailure writes a failed envelope with a diagnostic code
func WriteFailure(w http.ResponseWriter, status int, code, message string) {
	_ = WriteJSON(w, status, Envelope{
		Success: false,
		Code:    code,
		Error:   message,
	})
}

// WriteError writes a failed envelope from an error
func WriteError(w http.ResponseWriter, status int, code string, err error) {
	WriteFailure(w, status, code, err.Error())
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusBadRequest, CodeBadRequest, message)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusNotFound, CodeNotFound, message)
}

// WriteInternalError writes a generic 500 response
func WriteInternalError(w http.ResponseWriter) {
	WriteFailure(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}
