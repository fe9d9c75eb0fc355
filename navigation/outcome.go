package navigation

import (
	"fmt"
	"net/url"

	"github.com/c360/formflow/session"
	"github.com/c360/formflow/submission"
)

// RequestContext carries the per-request state the engine reads and
// updates. The caller loads Session before the call and persists it after.
type RequestContext struct {
	Session *session.State

	// Query holds the URL query parameters of a GET
	Query map[string]string
}

// NewRequestContext wraps state, creating an empty one when nil
func NewRequestContext(state *session.State) *RequestContext {
	if state == nil {
		state = &session.State{}
	}
	return &RequestContext{Session: state}
}

func (rc *RequestContext) state() *session.State {
	if rc.Session == nil {
		rc.Session = &session.State{}
	}
	return rc.Session
}

// Outcome is either a redirect or a screen to render
type Outcome struct {
	Redirect string `json:"redirect,omitempty"`
	View     string `json:"view,omitempty"`
	Model    *Model `json:"model,omitempty"`
}

// IsRedirect reports whether the outcome is a redirect
func (o Outcome) IsRedirect() bool {
	return o.Redirect != ""
}

func redirect(path string) Outcome {
	return Outcome{Redirect: path}
}

// Model is the data handed to the renderer for one screen
type Model struct {
	Flow                 string                      `json:"flow"`
	Screen               string                      `json:"screen"`
	FormAction           string                      `json:"formAction"`
	Subflow              string                      `json:"subflow,omitempty"`
	IterationStartScreen string                      `json:"iterationStartScreen,omitempty"`
	InputData            map[string]submission.Value `json:"inputData"`
	FieldData            map[string]submission.Value `json:"fieldData"`
	CurrentSubflowItem   map[string]submission.Value `json:"currentSubflowItem,omitempty"`
	ErrorMessages        map[string][]string         `json:"errorMessages,omitempty"`
	RelatedIteration     *submission.Iteration       `json:"relatedIteration,omitempty"`
	Submission           *submission.Submission      `json:"submission"`

	// Delete confirmation fallback
	NoEntryToDelete bool   `json:"noEntryToDelete,omitempty"`
	SubflowIsEmpty  bool   `json:"subflowIsEmpty,omitempty"`
	ReviewScreen    string `json:"reviewScreen,omitempty"`
	EntryScreen     string `json:"entryScreen,omitempty"`
}

// ScreenPath returns /flow/{flow}/{screen}
func ScreenPath(flow, screen string) string {
	return fmt.Sprintf("/flow/%s/%s", url.PathEscape(flow), url.PathEscape(screen))
}

// IterationPath returns /flow/{flow}/{screen}/{uuid}
func IterationPath(flow, screen, uuid string) string {
	return ScreenPath(flow, screen) + "/" + url.PathEscape(uuid)
}

// NewIterationPath returns the form action that creates an iteration
func NewIterationPath(flow, screen string) string {
	return IterationPath(flow, screen, NewIterationID)
}

// NavigationPath returns /flow/{flow}/{screen}/navigation, with the
// iteration uuid as a query parameter when set
func NavigationPath(flow, screen, uuid string) string {
	p := ScreenPath(flow, screen) + "/navigation"
	if uuid != "" {
		p += "?uuid=" + url.QueryEscape(uuid)
	}
	return p
}

// DeleteConfirmationPath returns the screen path with the uuid query set
func DeleteConfirmationPath(flow, screen, uuid string) string {
	return ScreenPath(flow, screen) + "?uuid=" + url.QueryEscape(uuid)
}
