package middleware

import (
	"context"
	"net"
	"net/http"

	"fwdproxy/internal/httpmsg"
	"fwdproxy/internal/logging"
	"fwdproxy/internal/server"
)

type ipFilter struct {
	logger logging.Logger
	nets   []*net.IPNet
}

// IPFilter constructs a middleware that refuses connections from client IPs
// within any of the given CIDR ranges with a 403 response.
func IPFilter(logger logging.Logger, cidrs []string) (Middleware, error) {
	if len(cidrs) == 0 {
		return func(next server.Handler) server.Handler {
			return next
		}, nil
	}

	var nets []*net.IPNet
	for _, c := range cidrs {
		_, ipnet, err := net.ParseCIDR(c)
		if err != nil {
			return nil, err
		}
		nets = append(nets, ipnet)
	}

	f := &ipFilter{
		logger: logger,
		nets:   nets,
	}

	return f.middleware, nil
}

func (f *ipFilter) middleware(next server.Handler) server.Handler {
	return server.HandlerFunc(func(ctx context.Context, conn net.Conn) {
		clientIP := remoteIP(conn.RemoteAddr())
		if clientIP == nil {
			next.ServeConn(ctx, conn)
			return
		}

		for _, n := range f.nets {
			if n.Contains(clientIP) {
				if f.logger != nil {
					f.logger.Info("ip blocked", "ip", clientIP.String())
				}
				_, _ = conn.Write(httpmsg.StatusResponse(http.StatusForbidden, "Proxy refuses connections from this address"))
				return
			}
		}

		next.ServeConn(ctx, conn)
	})
}

func remoteIP(addr net.Addr) net.IP {
	if addr == nil {
		return nil
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return net.ParseIP(addr.String())
	}
	return net.ParseIP(host)
}
