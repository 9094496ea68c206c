package proxy

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"fwdproxy/internal/cache"
	"fwdproxy/internal/httpmsg"
	"fwdproxy/internal/logging"
	"fwdproxy/internal/metrics"
	"fwdproxy/internal/upstream"
)

type Forwarder interface {
	Forward(ctx context.Context, host, port string, request []byte, client io.Writer) (upstream.Result, error)
}

// Engine serves one client connection per ServeConn call: it reads a single
// GET request, answers it from the cache or the origin, and returns.
type Engine struct {
	// Cache is optional; nil disables caching.
	Cache     *cache.LRU
	Forwarder Forwarder
	Logger    logging.Logger
	UserAgent string
}

func NewEngine(c *cache.LRU, f Forwarder, logger logging.Logger) *Engine {
	return &Engine{
		Cache:     c,
		Forwarder: f,
		Logger:    logger,
		UserAgent: httpmsg.DefaultUserAgent,
	}
}

func (e *Engine) ServeConn(ctx context.Context, conn net.Conn) {
	start := time.Now()
	metrics.ConnOpened()
	defer metrics.ConnClosed()

	log := e.Logger.With("conn", uuid.NewString())
	remote := conn.RemoteAddr().String()

	req, err := httpmsg.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		var perr *httpmsg.ProtocolError
		switch {
		case errors.Is(err, io.EOF):
			log.Debug("client closed before sending a request", "remote", remote)
		case errors.As(err, &perr):
			log.Info("rejected request", "remote", remote, "status", perr.Status, "err", err)
			e.reply(conn, log, perr.Response())
			metrics.ObserveRequest("error", strconv.Itoa(perr.Status), time.Since(start))
		default:
			log.Debug("read request failed", "remote", remote, "err", err)
		}
		return
	}

	target := resolveTarget(req)
	key := target.CacheKey()

	if e.Cache != nil {
		if h, ok := e.Cache.Lookup(key); ok {
			defer h.Release()
			metrics.IncCacheHit()
			if _, err := conn.Write(h.Body()); err != nil {
				log.Debug("write cached response failed", "key", key, "err", err)
				return
			}
			log.Info("served from cache", "key", key, "bytes", h.Size())
			metrics.ObserveRequest("hit", statusCode(h.Body()), time.Since(start))
			return
		}
		metrics.IncCacheMiss()
	}

	out := httpmsg.BuildForwardRequest(target.HostHeader, target.Path, e.UserAgent, req.Headers)
	client := &sniffWriter{w: conn}

	res, err := e.Forwarder.Forward(ctx, target.Host, target.Port, out, client)
	if err != nil {
		if errors.Is(err, upstream.ErrUnreachable) {
			log.Info("origin unreachable", "host", target.Host, "port", target.Port, "err", err)
			e.reply(conn, log, httpmsg.BuildErrorResponse(http.StatusBadRequest,
				"Proxy cannot reach destination", "Proxy could not contact destination server"))
			metrics.ObserveRequest("error", strconv.Itoa(http.StatusBadRequest), time.Since(start))
			return
		}
		log.Error("relay failed", "key", key, "bytes", res.Bytes, "err", err)
		metrics.ObserveRequest("error", statusCode(client.head), time.Since(start))
		return
	}

	log.Info("served from origin", "key", key, "bytes", res.Bytes, "cacheable", res.Cacheable)
	metrics.ObserveRequest("miss", statusCode(client.head), time.Since(start))

	if e.Cache == nil || !res.Cacheable {
		return
	}

	// The response is close-delimited, so let the client see EOF before a
	// possibly waiting insert.
	_ = conn.Close()

	h, err := e.Cache.Insert(ctx, key, res.Body)
	if err != nil {
		log.Debug("response not cached", "key", key, "err", err)
		return
	}
	h.Release()
}

func (e *Engine) reply(conn net.Conn, log logging.Logger, resp []byte) {
	if _, err := conn.Write(resp); err != nil {
		log.Debug("write error response failed", "err", err)
	}
}

// sniffWriter remembers the start of what it relays so the status code can
// be reported.
type sniffWriter struct {
	w    io.Writer
	head []byte
}

const sniffLen = len("HTTP/1.1 200")

func (s *sniffWriter) Write(p []byte) (int, error) {
	if missing := sniffLen - len(s.head); missing > 0 {
		s.head = append(s.head, p[:min(missing, len(p))]...)
	}
	return s.w.Write(p)
}

// statusCode extracts the status code from the start of a raw response.
func statusCode(raw []byte) string {
	line := raw
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := bytes.Fields(line)
	if len(fields) < 2 || !bytes.HasPrefix(fields[0], []byte("HTTP/")) {
		return "unknown"
	}
	if _, err := strconv.Atoi(string(fields[1])); err != nil {
		return "unknown"
	}
	return string(fields[1])
}
