package proxy

import (
	"strings"

	"golang.org/x/net/idna"

	"fwdproxy/internal/httpmsg"
)

// Target is the origin a request is forwarded to.
type Target struct {
	Host string
	Port string
	Path string

	// HostHeader is the client's Host value, or host:port when it sent none.
	HostHeader string
}

func resolveTarget(req *httpmsg.Request) Target {
	t := Target{
		Host: req.Host,
		Port: req.Port,
		Path: req.Path,
	}
	if v, ok := req.Header("Host"); ok {
		t.HostHeader = v
	} else {
		t.HostHeader = req.Host + ":" + req.Port
	}
	return t
}

// CacheKey identifies the target in the cache. The host is case-folded to
// its ASCII form and the port is always spelled out; the path and query are
// kept byte for byte.
func (t Target) CacheKey() string {
	host, err := idna.Lookup.ToASCII(t.Host)
	if err != nil {
		host = strings.ToLower(t.Host)
	}
	return "http://" + host + ":" + t.Port + "/" + t.Path
}
