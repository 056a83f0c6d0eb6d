// Package record provides serializable snapshots of HTTP requests and responses.
package record

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client identifies the remote end of a connection.
type Client struct {
	Host string `json:"host"`
	Port int    `json:"port,omitempty"`
}

// Endpoint identifies the request a response belongs to.
type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// Timing carries connection related durations gathered in proxy mode.
type Timing struct {
	ConnectionDuration   time.Duration `json:"connection_duration,omitempty"`
	TLSHandshakeDuration time.Duration `json:"tls_handshake_duration,omitempty"`
	TimeToFirstByte      time.Duration `json:"time_to_first_byte,omitempty"`
	RoundTripDuration    time.Duration `json:"roundtrip_duration,omitempty"`
}

// Request is a snapshot of an incoming HTTP request.
type Request struct {
	Type    string            `json:"type"`
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   string            `json:"query,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Client  *Client           `json:"client,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Response is a snapshot of an outgoing HTTP response.
type Response struct {
	Type       string            `json:"type"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Request    *Endpoint         `json:"request,omitempty"`
	Body       string            `json:"body,omitempty"`
	Timing     *Timing           `json:"timing,omitempty"`
}

// FromRequest snapshots an incoming request. When includeBody is true the body
// is buffered and r.Body is replaced with a fresh reader so the downstream
// handler still receives the full payload. maxBodyBytes > 0 truncates the body
// stored in the record, never the body passed on.
func FromRequest(r *http.Request, includeBody bool, maxBodyBytes int64) (*Request, error) {
	req := &Request{
		Type:    "Request",
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: flattenHeaders(r.Header),
		Client:  clientFromRemoteAddr(r.RemoteAddr),
	}

	if includeBody && r.Body != nil && r.ContentLength != 0 {
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		req.Body = truncate(bodyBytes, maxBodyBytes)
	}

	return req, nil
}

// NewResponse builds a response snapshot from data captured by a middleware
// recorder. req provides the endpoint information and may be nil.
func NewResponse(statusCode int, header http.Header, body []byte, req *http.Request) *Response {
	res := &Response{
		Type:       "Response",
		StatusCode: statusCode,
		Headers:    flattenHeaders(header),
		Body:       string(body),
	}
	if req != nil {
		res.Request = &Endpoint{Method: req.Method, Path: req.URL.Path}
	}
	return res
}

// FromResponse snapshots an upstream response in proxy mode. The body is
// buffered and response.Body is replaced so the proxy can still stream it to
// the client.
func FromResponse(response *http.Response, includeBody bool, maxBodyBytes int64) (*Response, error) {
	res := &Response{
		Type:       "Response",
		StatusCode: response.StatusCode,
		Headers:    flattenHeaders(response.Header),
	}
	if response.Request != nil {
		res.Request = &Endpoint{
			Method: response.Request.Method,
			Path:   response.Request.URL.Path,
		}
	}

	if includeBody && response.Body != nil {
		bodyBytes, err := io.ReadAll(response.Body)
		if err != nil {
			return nil, err
		}
		response.Body.Close()
		response.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		res.Body = truncate(bodyBytes, maxBodyBytes)
	}

	return res, nil
}

// Masked returns a copy of the request with sensitive header and query
// parameter values replaced. The receiver is not modified.
func (r *Request) Masked(names MaskedNames) *Request {
	masked := *r
	masked.Headers = maskHeaders(r.Headers, names)
	masked.Query = maskQuery(r.Query, names)
	return &masked
}

// Masked returns a copy of the response with sensitive header values
// replaced. The receiver is not modified.
func (r *Response) Masked(names MaskedNames) *Response {
	masked := *r
	masked.Headers = maskHeaders(r.Headers, names)
	return &masked
}

// JSON serializes a masked copy of the request to a single JSON line.
func (r *Request) JSON(names MaskedNames) (string, error) {
	return marshal(r.Masked(names))
}

// JSON serializes a masked copy of the response to a single JSON line.
func (r *Response) JSON(names MaskedNames) (string, error) {
	return marshal(r.Masked(names))
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func flattenHeaders(header http.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	flat := make(map[string]string, len(header))
	for name, values := range header {
		flat[name] = strings.Join(values, ", ")
	}
	return flat
}

func clientFromRemoteAddr(remoteAddr string) *Client {
	if remoteAddr == "" {
		return nil
	}
	host, portString, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return &Client{Host: remoteAddr}
	}
	port, err := strconv.Atoi(portString)
	if err != nil {
		return &Client{Host: host}
	}
	return &Client{Host: host, Port: port}
}

func truncate(body []byte, maxBodyBytes int64) string {
	if maxBodyBytes > 0 && int64(len(body)) > maxBodyBytes {
		return string(body[:maxBodyBytes])
	}
	return string(body)
}
