package server

import "net/http"

// SetSessionCookie sets the opaque session identifier cookie. The cookie
// is the only thing the browser ever holds; tokens stay server-side.
func (s *Server) SetSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetSessionCookieName(),
		Value:    sessionID,
		Path:     "/",
		MaxAge:   s.config.GetSessionCookieMaxAge(),
		HttpOnly: true,
		Secure:   s.isSecure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie. Done on logout and on any
// response that reports the session as not authenticated.
func (s *Server) ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetSessionCookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.isSecure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) isSecure(r *http.Request) bool {
	if s.env == "DEV" {
		return false // Local development runs over plain HTTP
	}
	return getScheme(r) == "https"
}

// sessionIDFromRequest extracts the session identifier from the cookie.
// Empty string means no cookie was presented.
func (s *Server) sessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(s.config.GetSessionCookieName())
	if err != nil {
		return ""
	}
	return cookie.Value
}
