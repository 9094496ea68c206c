package proxy

import (
	"fmt"
	"net/http"

	"fwdproxy/internal/admin"
	"fwdproxy/internal/cache"
	"fwdproxy/internal/config"
	"fwdproxy/internal/logging"
	"fwdproxy/internal/middleware"
	"fwdproxy/internal/server"
	"fwdproxy/internal/upstream"
)

// Proxy is a fully wired proxy ready to be started.
type Proxy struct {
	Server *server.Server
	Cache  *cache.LRU

	// Admin is nil when no admin address is configured.
	Admin *http.Server
}

type Builder struct {
	cfg    *config.Config
	logger logging.Logger
}

func NewBuilder(cfg *config.Config, logger logging.Logger) *Builder {
	return &Builder{
		cfg:    cfg,
		logger: logger,
	}
}

func (b *Builder) Build() (*Proxy, error) {
	var lru *cache.LRU
	if b.cfg.CacheEnabled() {
		lru = cache.New(b.cfg.Cache.MaxBytes, b.cfg.Cache.MaxObjectBytes)
	}

	maxObject := b.cfg.Cache.MaxObjectBytes
	if lru != nil {
		maxObject = lru.MaxObjectBytes()
	}
	fwd, err := upstream.NewForwarder(upstream.Options{
		DialTimeout:   b.cfg.Upstream.DialTimeout,
		ReadTimeout:   b.cfg.Upstream.ReadTimeout,
		SOCKS5:        b.cfg.Upstream.SOCKS5,
		MaxObjectSize: maxObject,
	})
	if err != nil {
		return nil, fmt.Errorf("build forwarder: %w", err)
	}

	engine := NewEngine(lru, fwd, b.logger)
	if b.cfg.Upstream.UserAgent != "" {
		engine.UserAgent = b.cfg.Upstream.UserAgent
	}

	mws := []middleware.Middleware{middleware.Recover(b.logger)}

	if len(b.cfg.Server.BlockCIDRs) > 0 {
		ipMw, err := middleware.IPFilter(b.logger, b.cfg.Server.BlockCIDRs)
		if err != nil {
			return nil, fmt.Errorf("invalid blockCIDRs: %w", err)
		}
		mws = append(mws, ipMw)
	}

	p := &Proxy{
		Server: &server.Server{
			Addr:     b.cfg.Server.Address,
			Handler:  middleware.Chain(engine, mws...),
			Logger:   b.logger,
			MaxConns: b.cfg.Server.MaxConnections,
		},
		Cache: lru,
	}

	if b.cfg.Admin.Address != "" {
		p.Admin = &http.Server{
			Addr:    b.cfg.Admin.Address,
			Handler: admin.NewRouter(lru),
		}
	}

	return p, nil
}
