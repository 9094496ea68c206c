// Package httpmsg parses the HTTP/1.x requests a forwarding proxy receives and
// builds the requests and error responses it sends.
package httpmsg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const (
	MaxLineLength = 8192
	MaxHeaders    = 100
)

var (
	ErrLineTooLong         = errors.New("httpmsg: line too long")
	ErrMalformedLine       = errors.New("httpmsg: malformed request line")
	ErrMalformedHeader     = errors.New("httpmsg: malformed header")
	ErrTooManyHeaders      = errors.New("httpmsg: too many headers")
	ErrMalformedURI        = errors.New("httpmsg: malformed uri")
	ErrUnsupportedMethod   = errors.New("httpmsg: method not implemented")
	ErrUnexpectedEndOfHead = errors.New("httpmsg: connection closed inside request head")
)

// ProtocolError is a request error the proxy answers with an HTTP error
// response before closing the connection.
type ProtocolError struct {
	Status int
	Short  string
	Long   string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%d %s: %v", e.Status, e.Short, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Response renders the error as a complete HTTP/1.0 response.
func (e *ProtocolError) Response() []byte {
	return BuildErrorResponse(e.Status, e.Short, e.Long)
}

func badRequest(long string, err error) *ProtocolError {
	return &ProtocolError{Status: http.StatusBadRequest, Short: "Bad Request", Long: long, Err: err}
}

type RequestLine struct {
	Method string
	URI    string
	Minor  int
}

type Header struct {
	Name  string
	Value string
}

type Request struct {
	Method  string
	URI     string
	Minor   int
	Headers []Header

	Host string
	Port string
	Path string
}

// Header returns the last value of the named header. Names match
// case-insensitively.
func (r *Request) Header(name string) (string, bool) {
	for i := len(r.Headers) - 1; i >= 0; i-- {
		if strings.EqualFold(r.Headers[i].Name, name) {
			return r.Headers[i].Value, true
		}
	}
	return "", false
}

// ReadLine reads one CRLF or LF terminated line without its terminator.
// A clean EOF before any byte is returned as io.EOF. A line cut short by EOF
// is returned together with io.ErrUnexpectedEOF.
func ReadLine(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		frag, err := r.ReadSlice('\n')
		if sb.Len()+len(frag) > MaxLineLength {
			return "", ErrLineTooLong
		}
		sb.Write(frag)
		switch {
		case err == nil:
			line := strings.TrimSuffix(sb.String(), "\n")
			return strings.TrimSuffix(line, "\r"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && sb.Len() == 0:
			return "", io.EOF
		case errors.Is(err, io.EOF):
			return strings.TrimSuffix(sb.String(), "\r"), io.ErrUnexpectedEOF
		default:
			return "", err
		}
	}
}

// ParseRequestLine splits "METHOD URI HTTP/1.x". Only minor versions 0 and 1
// are accepted.
func ParseRequestLine(line string) (RequestLine, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return RequestLine{}, fmt.Errorf("%w: want 3 fields, got %d", ErrMalformedLine, len(fields))
	}

	version := fields[2]
	if len(version) != len("HTTP/1.x") || !strings.HasPrefix(version, "HTTP/1.") {
		return RequestLine{}, fmt.Errorf("%w: version %q", ErrMalformedLine, version)
	}
	var minor int
	switch version[len(version)-1] {
	case '0':
		minor = 0
	case '1':
		minor = 1
	default:
		return RequestLine{}, fmt.Errorf("%w: version %q", ErrMalformedLine, version)
	}

	return RequestLine{Method: fields[0], URI: fields[1], Minor: minor}, nil
}

// ParseHeader splits "Name: value". Name and value must both be non-empty.
func ParseHeader(line string) (Header, error) {
	name, value, ok := strings.Cut(line, ":")
	if !ok || name == "" {
		return Header{}, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
	}
	value = strings.TrimLeft(value, " \t")
	if value == "" {
		return Header{}, fmt.Errorf("%w: empty value for %q", ErrMalformedHeader, name)
	}
	return Header{Name: name, Value: value}, nil
}

// ReadHeaders reads header lines up to and including the blank line that
// ends the request head.
func ReadHeaders(r *bufio.Reader) ([]Header, error) {
	var headers []Header
	for {
		line, err := ReadLine(r)
		if errors.Is(err, io.EOF) {
			return nil, ErrUnexpectedEndOfHead
		}
		if err != nil {
			return nil, err
		}
		if line == "" {
			return headers, nil
		}
		if len(headers) == MaxHeaders {
			return nil, ErrTooManyHeaders
		}
		h, err := ParseHeader(line)
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}
}

// SplitAbsoluteURI splits "http://host[:port]/path". The returned path has no
// leading slash and the port defaults to 80.
func SplitAbsoluteURI(uri string) (host, port, path string, err error) {
	rest, ok := strings.CutPrefix(uri, "http://")
	if !ok {
		return "", "", "", fmt.Errorf("%w: %q is not an absolute http uri", ErrMalformedURI, uri)
	}

	authority, path, _ := strings.Cut(rest, "/")
	if authority == "" {
		return "", "", "", fmt.Errorf("%w: missing host in %q", ErrMalformedURI, uri)
	}

	host, port, hasPort := strings.Cut(authority, ":")
	if host == "" {
		return "", "", "", fmt.Errorf("%w: missing host in %q", ErrMalformedURI, uri)
	}
	if !hasPort {
		return host, "80", path, nil
	}
	n, convErr := strconv.Atoi(port)
	if convErr != nil || n < 1 || n > 65535 {
		return "", "", "", fmt.Errorf("%w: bad port %q", ErrMalformedURI, port)
	}
	return host, port, path, nil
}

// ReadRequest reads and validates a complete request head. A client that
// disconnects before sending anything yields io.EOF. Malformed input and
// unsupported methods yield a *ProtocolError.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	line, err := ReadLine(r)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		// The client half-closed mid-line; judge what it did send.
	case errors.Is(err, ErrLineTooLong):
		return nil, badRequest("Proxy received a malformed request", err)
	default:
		return nil, err
	}

	rl, err := ParseRequestLine(line)
	if err != nil {
		return nil, badRequest("Proxy received a malformed request", err)
	}
	if rl.Method != http.MethodGet {
		return nil, &ProtocolError{
			Status: http.StatusNotImplemented,
			Short:  "Not Implemented",
			Long:   "Proxy does not implement this method",
			Err:    fmt.Errorf("%w: %s", ErrUnsupportedMethod, rl.Method),
		}
	}

	headers, err := ReadHeaders(r)
	if err != nil {
		if errors.Is(err, ErrUnexpectedEndOfHead) || !isParseError(err) {
			return nil, err
		}
		return nil, badRequest("Proxy could not parse request headers", err)
	}

	host, port, path, err := SplitAbsoluteURI(rl.URI)
	if err != nil {
		return nil, badRequest("Proxy could not parse the URI", err)
	}

	return &Request{
		Method:  rl.Method,
		URI:     rl.URI,
		Minor:   rl.Minor,
		Headers: headers,
		Host:    host,
		Port:    port,
		Path:    path,
	}, nil
}

func isParseError(err error) bool {
	return errors.Is(err, ErrMalformedHeader) ||
		errors.Is(err, ErrTooManyHeaders) ||
		errors.Is(err, ErrLineTooLong)
}
