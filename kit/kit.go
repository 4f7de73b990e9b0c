// Package kit holds the small transport-agnostic plumbing shared by the
// HTTP and MCP surfaces: the endpoint shape, middleware chaining and
// request-scoped context values.
package kit

import "context"

// Endpoint is one transport-independent operation.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first argument is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
