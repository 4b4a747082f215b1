// Package mockfhir is a deterministic FHIR server double used only by
// tests: configurable per-route status codes, content types and bodies.
// Routes respond immediately; there is no per-route latency setting.
//
// Grounded directly on timescale-tsbs's void_server/main.go (a minimal
// fasthttp responder), extended with per-route behaviour.
package mockfhir

import (
	"sync"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/reuseport"
)

// Route describes one endpoint's canned behaviour.
type Route struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// Server is an in-process fasthttp mock FHIR server.
type Server struct {
	mu     sync.RWMutex
	routes map[string]Route
}

// NewStatic starts a mock server with a fixed set of routes, returning its
// base URL and a shutdown function. Kept intentionally simple: tests that
// need dynamic per-request behaviour (latency, flapping readiness) should
// construct their own net/http/httptest.Server instead, as pkg/probe and
// pkg/loaddriver's tests already do.
func NewStatic(addr string, routes map[string]Route) (baseURL string, srv *Server, shutdown func() error, err error) {
	ln, err := reuseport.Listen("tcp4", addr)
	if err != nil {
		return "", nil, nil, err
	}

	srv = &Server{routes: routes}
	go fasthttp.Serve(ln, srv.handle)

	return "http://" + ln.Addr().String() + "/", srv, func() error {
		return ln.Close()
	}, nil
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	s.mu.RLock()
	route, ok := s.routes[string(ctx.Path())]
	s.mu.RUnlock()

	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	if route.ContentType != "" {
		ctx.SetContentType(route.ContentType)
	}
	ctx.SetStatusCode(route.StatusCode)
	ctx.SetBody(route.Body)
}

// SetRoute updates a route's behaviour at runtime, letting a test flip a
// server from "failing readiness" to "ready" mid-run (scenario-style
// testing for the lifecycle controller).
func (s *Server) SetRoute(path string, route Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = route
}
