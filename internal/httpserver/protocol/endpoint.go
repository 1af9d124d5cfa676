// Package protocol describes how groups of HTTP routes plug into the server.
package protocol

import "net/http"

// EndpointRoute binds one method and chi path pattern to a handler.
type EndpointRoute struct {
	Method  string
	Path    string
	Handler http.Handler
}

// Endpoint is a named group of routes, e.g. "documents" or "chat".
type Endpoint interface {
	Name() string
	Routes() []EndpointRoute
}

// Func adapts a handler function to an EndpointRoute.
func Func(method, path string, fn http.HandlerFunc) EndpointRoute {
	return EndpointRoute{Method: method, Path: path, Handler: fn}
}
