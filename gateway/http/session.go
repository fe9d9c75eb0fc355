package http

import (
	"net/http"

	"github.com/c360/formflow/session"
)

// loadSession returns the session id and state for the request, starting a
// new session and setting its cookie when the cookie is absent or expired
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (string, *session.State) {
	if c, err := r.Cookie(s.config.CookieName); err == nil {
		if state, ok := s.sessions.Load(c.Value); ok {
			return c.Value, state
		}
		s.logger.Debug("session cookie without session", "request_id", RequestIDFrom(r.Context()))
	}

	id := session.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return id, &session.State{}
}
