package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/chargeview/dashboard-bff/internal/errors"
	"github.com/chargeview/dashboard-bff/upstream"
	"github.com/rs/zerolog/log"
)

type successResponse struct {
	Success bool `json:"success"`
}

type sessionInfoResponse struct {
	IsAuthenticated bool            `json:"isAuthenticated"`
	User            json.RawMessage `json:"user,omitempty"`
	Customer        json.RawMessage `json:"customer,omitempty"`
}

// LoginPincodeHandler exchanges a connector-pincode payload for a session.
// Raw credentials are never returned to the browser; success only sets the
// session cookie.
func (s *Server) LoginPincodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var login upstream.PincodeLogin
		if err := json.NewDecoder(r.Body).Decode(&login); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sessionID, err := s.manager.LoginWithPincode(r.Context(), login)
		if err != nil {
			s.writeLoginError(w, err)
			return
		}

		s.SetSessionCookie(w, r, sessionID)
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

// LoginOTPHandler exchanges a one-time-password payload for a session.
func (s *Server) LoginOTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var login upstream.OTPLogin
		if err := json.NewDecoder(r.Body).Decode(&login); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sessionID, err := s.manager.LoginWithOTP(r.Context(), login)
		if err != nil {
			s.writeLoginError(w, err)
			return
		}

		s.SetSessionCookie(w, r, sessionID)
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

// SessionInfoHandler answers the client's "am I logged in" query from the
// cached identity snapshot. Never triggers an upstream call.
func (s *Server) SessionInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.manager.SessionInfo(s.sessionIDFromRequest(r))
		if err != nil || !info.IsAuthenticated {
			writeJSON(w, http.StatusOK, sessionInfoResponse{IsAuthenticated: false})
			return
		}

		response := sessionInfoResponse{IsAuthenticated: true}
		if info.Identity != nil {
			response.User = info.Identity.User
			response.Customer = info.Identity.Customer
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// LogoutHandler deletes the session and clears the cookie. Always reports
// success, whether or not a session existed.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessionID := s.sessionIDFromRequest(r); sessionID != "" {
			s.manager.Logout(sessionID)
		}
		s.ClearSessionCookie(w, r)
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

// writeLoginError relays an upstream rejection verbatim (status + body) or
// maps infrastructure failures to a 502.
func (s *Server) writeLoginError(w http.ResponseWriter, err error) {
	var apiErr *upstream.APIError
	if apperrors.As(err, &apiErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(apiErr.StatusCode)
		w.Write(apiErr.Body)
		return
	}
	log.Warn().Err(err).Msg("login exchange failed")
	writeJSONError(w, http.StatusBadGateway, "upstream unavailable")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
