package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/chargeview/dashboard-bff/auth"
	"github.com/chargeview/dashboard-bff/internal/config"
	"github.com/chargeview/dashboard-bff/proxy"
	"github.com/pkg/errors"
)

// Server is the HTTP boundary of the BFF: cookie in, JSON out. The session
// manager and dispatcher are injected; the server holds no session state
// of its own.
type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	config     config.Config
	manager    *auth.SessionManager
	dispatcher *proxy.Dispatcher
}

func New(config config.Config, manager *auth.SessionManager, dispatcher *proxy.Dispatcher) (*Server, error) {
	if manager == nil {
		return nil, errors.New("[Server New] session manager is required")
	}
	if dispatcher == nil {
		return nil, errors.New("[Server New] dispatcher is required")
	}

	s := &Server{
		mux:        http.NewServeMux(),
		config:     config,
		manager:    manager,
		dispatcher: dispatcher,
	}
	s.env = config.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
