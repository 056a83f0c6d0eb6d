// Package transport provides an instrumented http.RoundTripper for proxy mode.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	config "github.com/bodylog/bodylog/pkg/core/config"
)

// HTTPTiming contains several connection related time measurements.
type HTTPTiming struct {
	GetConn              time.Time
	GotConn              time.Time
	GotFirstResponseByte time.Time
	TLSHandshakeStart    time.Time
	TLSHandshakeDone     time.Time
}

// ProfilingContextKey is the key type for timing values stored in the request
// context.
type ProfilingContextKey string

// Context keys set by the ProfilingTransport.
const (
	KeyTiming          ProfilingContextKey = "timing"
	KeyConnectionStart ProfilingContextKey = "connectionStart"
	KeyConnectionEnd   ProfilingContextKey = "connectionEnd"
	KeyRoundTripStart  ProfilingContextKey = "roundTripStart"
	KeyRoundTripEnd    ProfilingContextKey = "roundTripEnd"
)

// ProfilingTransport is an http.RoundTripper that measures connection setup
// and round trip times and attaches them to the request context.
type ProfilingTransport struct {
	roundTripper    http.RoundTripper
	dialer          *net.Dialer
	connectionStart time.Time
	connectionEnd   time.Time
	cfg             *config.TranslatedConfig
}

// NewProfilingTransport creates a new profiling transport.
func NewProfilingTransport(cfg *config.TranslatedConfig) (*ProfilingTransport, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}

	transport := &ProfilingTransport{
		dialer: &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		},
		cfg: cfg,
	}
	transport.roundTripper = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		Dial:                transport.dial,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return transport, nil
}

// RoundTrip performs the request and records connection and round trip
// timings in the returned response's request context.
func (transport *ProfilingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	ctxRoundTripStart := context.WithValue(r.Context(), KeyRoundTripStart, time.Now())

	timing := &HTTPTiming{}

	trace := &httptrace.ClientTrace{
		GetConn: func(hostPort string) {
			timing.GetConn = time.Now()
		},
		GotConn: func(httptrace.GotConnInfo) {
			timing.GotConn = time.Now()
		},
		GotFirstResponseByte: func() {
			timing.GotFirstResponseByte = time.Now()
		},
		TLSHandshakeStart: func() {
			timing.TLSHandshakeStart = time.Now()
		},
		TLSHandshakeDone: func(cs tls.ConnectionState, err error) {
			timing.TLSHandshakeDone = time.Now()
		},
	}

	ctxTrace := httptrace.WithClientTrace(ctxRoundTripStart, trace)

	response, err := transport.roundTripper.RoundTrip(r.WithContext(ctxTrace))
	if err != nil {
		return nil, err
	}

	ctxConnectionStart := context.WithValue(response.Request.Context(), KeyConnectionStart, transport.connectionStart)
	ctxConnectionEnd := context.WithValue(ctxConnectionStart, KeyConnectionEnd, transport.connectionEnd)
	ctxRoundTripEnd := context.WithValue(ctxConnectionEnd, KeyRoundTripEnd, time.Now())
	ctxTiming := context.WithValue(ctxRoundTripEnd, KeyTiming, timing)

	response.Request = response.Request.WithContext(ctxTiming)

	return response, nil
}

func (transport *ProfilingTransport) dial(network, addr string) (net.Conn, error) {
	transport.connectionStart = time.Now()
	connection, err := transport.dialer.Dial(network, addr)
	transport.connectionEnd = time.Now()
	return connection, err
}

// TimingFromContext extracts the timing measurements recorded by the
// transport. ok is false when the request never passed through it.
func TimingFromContext(ctx context.Context) (*HTTPTiming, bool) {
	timing, ok := ctx.Value(KeyTiming).(*HTTPTiming)
	return timing, ok
}

// TimeFromContext extracts a single timestamp recorded under key.
func TimeFromContext(ctx context.Context, key ProfilingContextKey) (time.Time, bool) {
	value, ok := ctx.Value(key).(time.Time)
	return value, ok
}
