package handlers

import (
	"net/http"

	"github.com/goccy/go-json"

	"whattoeat/logging"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type routeError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorResponse{Success: false, Error: message})
}

// NotFoundHandler answers unknown routes.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusNotFound, routeError{
		Error:   "Not found",
		Message: "Route " + r.Method + " " + r.URL.Path + " not found",
	})
}

// MethodNotAllowedHandler answers known routes called with the wrong method.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusMethodNotAllowed, routeError{
		Error:   "Method not allowed",
		Message: "Route " + r.Method + " " + r.URL.Path + " not allowed",
	})
}
