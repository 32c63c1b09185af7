package internal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
)

// DefaultMaxBodyBytes caps request bodies when Settings.MaxBodyBytes is zero.
const DefaultMaxBodyBytes int64 = 10 << 20

// Request is a parsed inbound request. It is populated once by the session
// manager and must not be modified afterwards.
type Request struct {
	Method     string
	Path       string
	Query      url.Values
	Protocol   string
	Host       string
	Headers    http.Header
	Body       []byte
	RemoteAddr string
}

// Header returns every value sent under name.
func (r *Request) Header(name string) []string {
	return r.Headers.Values(name)
}

// HasHeader reports whether the request carries name at least once.
func (r *Request) HasHeader(name string) bool {
	return len(r.Headers.Values(name)) > 0
}

// Parser reads one request off a connection.
type Parser interface {
	Parse(r *bufio.Reader) (*Request, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(r *bufio.Reader) (*Request, error)

func (f ParserFunc) Parse(r *bufio.Reader) (*Request, error) {
	return f(r)
}

// HTTPParser parses HTTP/1.x requests with net/http's reader.
type HTTPParser struct {
	// MaxBodyBytes limits the body size. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Parse reads the request line, headers and body.
// Syntax errors wrap ErrMalformedRequest, oversized bodies ErrBodyTooLarge.
// Transport errors such as io.EOF are returned as is.
func (p HTTPParser) Parse(r *bufio.Reader) (*Request, error) {
	hr, err := http.ReadRequest(r)
	if err != nil {
		if isTransportError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	defer hr.Body.Close()

	limit := p.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	if hr.ContentLength > limit {
		return nil, fmt.Errorf("%w: content length %d exceeds %d", ErrBodyTooLarge, hr.ContentLength, limit)
	}
	body, err := io.ReadAll(io.LimitReader(hr.Body, limit+1))
	if err != nil {
		if isTransportError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reading body: %w", ErrMalformedRequest, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrBodyTooLarge, limit)
	}

	headers := hr.Header.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	// net/http moves Host out of the header map.
	if hr.Host != "" && headers.Get("Host") == "" {
		headers.Set("Host", hr.Host)
	}

	return &Request{
		Method:   hr.Method,
		Path:     hr.URL.Path,
		Query:    hr.URL.Query(),
		Protocol: hr.Proto,
		Host:     hr.Host,
		Headers:  headers,
		Body:     body,
	}, nil
}

// isTransportError reports errors caused by the connection rather than the bytes on it.
func isTransportError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
