package server

import (
	"io"
	"net/http"
	"strings"

	apperrors "github.com/chargeview/dashboard-bff/internal/errors"
	"github.com/rs/zerolog/log"
)

// maxForwardBodyBytes caps buffered request bodies. Dashboard payloads are
// small JSON documents; anything larger is not a legitimate request.
const maxForwardBodyBytes = 4 << 20

// ProxyHandler forwards any other /api/ request to the upstream API using
// the session's server-held credential. The body is opaque: validated
// upstream, never interpreted here.
func (s *Server) ProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := s.sessionIDFromRequest(r)
		if sessionID == "" {
			s.ClearSessionCookie(w, r)
			writeJSONError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxForwardBodyBytes))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		path := strings.TrimPrefix(r.URL.Path, apiPrefix)
		result, err := s.dispatcher.Forward(r.Context(), sessionID, r.Method, path, r.URL.RawQuery, r.Header, body)
		if err != nil {
			s.writeForwardError(w, r, err)
			return
		}

		copyResponseHeaders(w.Header(), result.Header)
		w.WriteHeader(result.StatusCode)
		w.Write(result.Body)
	}
}

func (s *Server) writeForwardError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apperrors.Is(err, apperrors.ErrNotAuthenticated):
		s.ClearSessionCookie(w, r)
		writeJSONError(w, http.StatusUnauthorized, "not authenticated")
	case apperrors.Is(err, apperrors.ErrUpstreamTimeout):
		writeJSONError(w, http.StatusGatewayTimeout, "upstream timeout")
	case apperrors.Is(err, apperrors.ErrUpstreamUnavailable):
		writeJSONError(w, http.StatusBadGateway, "upstream unavailable")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("forward failed")
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// copyResponseHeaders relays upstream response headers, minus hop-by-hop
// fields and Content-Length (the body was buffered and is rewritten).
func copyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		switch strings.ToLower(k) {
		case "connection", "keep-alive", "transfer-encoding",
			"te", "trailer", "upgrade", "content-length":
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
