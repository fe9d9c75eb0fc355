package http

import (
	"encoding/json"
	"net/http"

	"github.com/c360/formflow/navigation"
)

// JSONRenderer writes views and errors as JSON documents
type JSONRenderer struct{}

type viewResponse struct {
	View  string            `json:"view"`
	Model *navigation.Model `json:"model"`
}

// Render writes {"view": ..., "model": ...}
func (JSONRenderer) Render(w http.ResponseWriter, _ *http.Request, view string, model *navigation.Model) error {
	return writeJSON(w, http.StatusOK, viewResponse{View: view, Model: model})
}

// RenderError writes {"error": ..., "status": ...}
func (JSONRenderer) RenderError(w http.ResponseWriter, _ *http.Request, status int, message string) error {
	return writeJSON(w, status, map[string]any{
		"error":  message,
		"status": status,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}
