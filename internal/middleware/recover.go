package middleware

import (
	"context"
	"net"
	"runtime/debug"

	"fwdproxy/internal/logging"
	"fwdproxy/internal/server"
)

// Recover keeps a panicking connection handler from taking the process down.
func Recover(logger logging.Logger) Middleware {
	return func(next server.Handler) server.Handler {
		return server.HandlerFunc(func(ctx context.Context, conn net.Conn) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("connection handler panic",
						"panic", r,
						"remote", conn.RemoteAddr().String(),
						"stack", string(debug.Stack()),
					)
				}
			}()
			next.ServeConn(ctx, conn)
		})
	}
}
