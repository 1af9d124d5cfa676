package httpserver

import (
	"net/http"

	"github.com/tokligence/docchat/internal/httpserver/protocol"
	"github.com/tokligence/docchat/internal/ratelimit"
)

type healthEndpoint struct {
	server *Server
}

func newHealthEndpoint(server *Server) protocol.Endpoint {
	return &healthEndpoint{server: server}
}

func (e *healthEndpoint) Name() string { return "health" }

func (e *healthEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		protocol.Func(http.MethodGet, "/health", e.server.HandleHealth),
	}
}

type documentsEndpoint struct {
	server *Server
}

func newDocumentsEndpoint(server *Server) protocol.Endpoint {
	return &documentsEndpoint{server: server}
}

func (e *documentsEndpoint) Name() string { return "documents" }

func (e *documentsEndpoint) Routes() []protocol.EndpointRoute {
	s := e.server
	return []protocol.EndpointRoute{
		protocol.Func(http.MethodPost, "/upload", s.handleUpload),
		protocol.Func(http.MethodPost, "/api/v1/documents", s.handleUpload),
		protocol.Func(http.MethodGet, "/api/v1/documents", s.handleListDocuments),
		protocol.Func(http.MethodGet, "/api/v1/documents/{id}", s.handleGetDocument),
		protocol.Func(http.MethodDelete, "/api/v1/documents/{id}", s.handleDeleteDocument),
		protocol.Func(http.MethodGet, "/api/v1/documents/{id}/messages", s.handleListMessages),
		protocol.Func(http.MethodGet, "/api/v1/documents/{id}/state", s.handleState),
	}
}

type chatEndpoint struct {
	server *Server
}

func newChatEndpoint(server *Server) protocol.Endpoint {
	return &chatEndpoint{server: server}
}

func (e *chatEndpoint) Name() string { return "chat" }

func (e *chatEndpoint) Routes() []protocol.EndpointRoute {
	s := e.server
	routes := []protocol.EndpointRoute{
		protocol.Func(http.MethodPost, "/api/v1/documents/{id}/summary", s.handleSummary),
		protocol.Func(http.MethodPost, "/api/v1/documents/{id}/ask", s.handleAsk),
		protocol.Func(http.MethodPost, "/api/v1/documents/{id}/challenge", s.handleChallenge),
		protocol.Func(http.MethodPost, "/api/v1/documents/{id}/challenge/{n}/answer", s.handleAnswer),
	}
	limit := ratelimit.Middleware(s.limiter, s.logger.Logger())
	for i := range routes {
		routes[i].Handler = limit(routes[i].Handler)
	}
	return routes
}

type opsEndpoint struct {
	server *Server
}

func newOpsEndpoint(server *Server) protocol.Endpoint {
	return &opsEndpoint{server: server}
}

func (e *opsEndpoint) Name() string { return "ops" }

func (e *opsEndpoint) Routes() []protocol.EndpointRoute {
	s := e.server
	return []protocol.EndpointRoute{
		protocol.Func(http.MethodGet, "/metrics", s.handlePrometheus),
		protocol.Func(http.MethodGet, "/api/v1/metrics", s.handleMetrics),
		protocol.Func(http.MethodGet, "/api/v1/models", s.handleModels),
		protocol.Func(http.MethodGet, "/api/v1/version", s.handleVersion),
	}
}
