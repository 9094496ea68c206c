package middleware

import "fwdproxy/internal/server"

type Middleware func(server.Handler) server.Handler

// Chain applies middlewares in order: m1(m2(...(h))).
func Chain(h server.Handler, mws ...Middleware) server.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
