package common

import (
	"encoding/json"
	"net/http"
)

// Envelope is the success/failure wrapper understood by the storefront widget.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Success writes {"success":true,"data":...} with status 200.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// Failure writes {"success":false,"data":"<message>"} using the status carried
// by err. Internal errors never leak their cause.
func Failure(w http.ResponseWriter, err error) {
	appErr := AsAppError(err)
	message := appErr.Message
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		message = "internal error"
	}
	JSON(w, appErr.HTTPStatus, Envelope{Success: false, Data: message})
}
