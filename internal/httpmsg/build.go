package httpmsg

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:3.10.0) Gecko/20191101 Firefox/63.0.1"

// Headers the proxy always writes itself.
var managedHeaders = []string{"Host", "User-Agent", "Connection", "Proxy-Connection"}

func isManaged(name string) bool {
	for _, m := range managedHeaders {
		if strings.EqualFold(name, m) {
			return true
		}
	}
	return false
}

// BuildForwardRequest renders the HTTP/1.0 request sent to the origin.
// Client headers that the proxy manages itself are dropped from headers.
func BuildForwardRequest(hostHeader, path, userAgent string, headers []Header) []byte {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "GET /%s HTTP/1.0\r\n", path)
	fmt.Fprintf(&b, "Host: %s\r\n", hostHeader)
	fmt.Fprintf(&b, "User-Agent: %s\r\n", userAgent)
	b.WriteString("Connection: close\r\n")
	b.WriteString("Proxy-Connection: close\r\n")
	for _, h := range headers {
		if isManaged(h.Name) {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\r\n", h.Name, h.Value)
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// BuildErrorResponse renders a complete HTTP/1.0 error response with a small
// HTML body.
func BuildErrorResponse(status int, short, long string) []byte {
	var body bytes.Buffer
	body.WriteString("<!DOCTYPE html>\r\n")
	body.WriteString("<html>\r\n")
	body.WriteString("<head><title>Proxy Error</title></head>\r\n")
	body.WriteString("<body bgcolor=\"ffffff\">\r\n")
	fmt.Fprintf(&body, "<h1>%d: %s</h1>\r\n", status, short)
	fmt.Fprintf(&body, "<p>%s</p>\r\n", long)
	body.WriteString("<hr /><em>fwdproxy</em>\r\n")
	body.WriteString("</body></html>\r\n")

	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.0 %d %s\r\n", status, short)
	b.WriteString("Content-Type: text/html\r\n")
	b.WriteString("Content-Length: " + strconv.Itoa(body.Len()) + "\r\n\r\n")
	b.Write(body.Bytes())
	return b.Bytes()
}

// StatusResponse builds an error response using the standard reason phrase
// for status.
func StatusResponse(status int, long string) []byte {
	return BuildErrorResponse(status, http.StatusText(status), long)
}
