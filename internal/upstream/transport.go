package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/net/proxy"

	"fwdproxy/internal/cache"
	"fwdproxy/internal/metrics"
)

const ChunkSize = 4096

var (
	ErrUnreachable = errors.New("upstream: destination unreachable")
	ErrClientWrite = errors.New("upstream: write to client failed")
)

type Options struct {
	DialTimeout time.Duration

	// ReadTimeout bounds each read from the origin. Zero means no limit.
	ReadTimeout time.Duration

	// SOCKS5 is an optional parent proxy address used for every dial.
	SOCKS5 string

	MaxObjectSize int64
}

// Result describes a relayed response.
type Result struct {
	// Body holds the complete response when Cacheable is true.
	Body      []byte
	Cacheable bool
	Bytes     int64
}

type Forwarder struct {
	dialer        proxy.ContextDialer
	readTimeout   time.Duration
	maxObjectSize int64
}

func NewForwarder(opts Options) (*Forwarder, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 30 * time.Second
	}
	if opts.MaxObjectSize <= 0 {
		opts.MaxObjectSize = cache.MaxObjectSize
	}

	base := &net.Dialer{
		Timeout:   opts.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	var dialer proxy.ContextDialer = base
	if opts.SOCKS5 != "" {
		d, err := proxy.SOCKS5("tcp", opts.SOCKS5, nil, base)
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks5 dialer for %s does not support contexts", opts.SOCKS5)
		}
		dialer = cd
	}

	return &Forwarder{
		dialer:        dialer,
		readTimeout:   opts.ReadTimeout,
		maxObjectSize: opts.MaxObjectSize,
	}, nil
}

// Forward sends request to host:port and streams the response to client
// chunk by chunk. Up to the object size limit the response is also kept for
// the cache; past it only streaming continues.
func (f *Forwarder) Forward(ctx context.Context, host, port string, request []byte, client io.Writer) (Result, error) {
	conn, err := f.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer conn.Close()

	if _, err := conn.Write(request); err != nil {
		return Result{}, fmt.Errorf("write request to %s: %w", conn.RemoteAddr(), err)
	}

	var res Result
	var overflow bool
	acc := make([]byte, 0, ChunkSize)
	chunk := make([]byte, ChunkSize)
	for {
		if f.readTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(f.readTimeout)); err != nil {
				metrics.AddUpstreamBytes(res.Bytes)
				return res, fmt.Errorf("set read deadline on %s: %w", conn.RemoteAddr(), err)
			}
		}
		n, rerr := conn.Read(chunk)
		if n > 0 {
			if _, werr := client.Write(chunk[:n]); werr != nil {
				metrics.AddUpstreamBytes(res.Bytes)
				return res, fmt.Errorf("%w: %v", ErrClientWrite, werr)
			}
			res.Bytes += int64(n)
			if !overflow {
				if int64(len(acc)+n) > f.maxObjectSize {
					overflow = true
					acc = nil
				} else {
					acc = append(acc, chunk[:n]...)
				}
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			metrics.AddUpstreamBytes(res.Bytes)
			return res, fmt.Errorf("read response from %s: %w", conn.RemoteAddr(), rerr)
		}
	}

	metrics.AddUpstreamBytes(res.Bytes)
	if !overflow && res.Bytes > 0 {
		res.Body = acc
		res.Cacheable = true
	}
	return res, nil
}
