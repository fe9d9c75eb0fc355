package gateway

import (
	"net/http"

	"github.com/c360/formflow/navigation"
)

// Renderer writes a screen or an error page.
//
// Render receives the view name ("flow/screen") and the model built by the
// engine. RenderError receives the status code and a message that is safe
// to show to the user.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request, view string, model *navigation.Model) error
	RenderError(w http.ResponseWriter, r *http.Request, status int, message string) error
}
