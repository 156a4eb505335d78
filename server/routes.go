package server

func (s *Server) initRoutes() {
	// LOGIN / LOGOUT
	s.RegisterRouteHandler("POST "+RouteLoginPincode, ChainMiddleware(s.LoginPincodeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLoginOTP, ChainMiddleware(s.LoginOTPHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSessionInfo, ChainMiddleware(s.SessionInfoHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// Everything else under /api/ is forwarded upstream. The literal
	// routes above are more specific and take precedence in the mux.
	s.RegisterRouteHandler(RouteProxy, ChainMiddleware(s.ProxyHandler(), s.APIMiddleware()...))
}
