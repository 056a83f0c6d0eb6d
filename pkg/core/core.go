// Package core observes HTTP traffic and fans out request and response
// records to the configured handlers.
package core

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/bodylog/bodylog/pkg/core/config"
	"github.com/bodylog/bodylog/pkg/core/proxy"
	"github.com/bodylog/bodylog/pkg/core/transport"
	"github.com/bodylog/bodylog/pkg/metrics"
	"github.com/bodylog/bodylog/pkg/record"
	"github.com/bodylog/bodylog/pkg/zapwriter"
	"go.uber.org/zap"
)

// Recorder snapshots requests and responses and hands the records to every
// handler. Handler errors never fail the request being served.
type Recorder struct {
	cfg      *config.TranslatedConfig
	handlers []Handler
	errorLog func(error)
}

// NewRecorder creates a Recorder. A nil cfg falls back to the library
// defaults; zero handlers default to a zap logging handler.
func NewRecorder(cfg *config.TranslatedConfig, handlers ...Handler) (*Recorder, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	if len(handlers) == 0 {
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to create default logger: %w", err)
		}
		handlers = []Handler{zapwriter.New(logger, cfg)}
	}

	return &Recorder{cfg: cfg, handlers: handlers}, nil
}

// SetErrorLog installs a callback invoked with every handler error.
func (rec *Recorder) SetErrorLog(f func(error)) {
	rec.errorLog = f
}

// Middleware wraps next so that every request and response passing through
// it is recorded.
func (rec *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rec.cfg.LoggingEnabled || rec.pathExcluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()

		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		if r.ContentLength > 0 {
			metrics.HTTPRequestSizeBytes.WithLabelValues(r.Method).Observe(float64(r.ContentLength))
		}

		rec.RecordRequest(r)

		bw := newBodyWriter(w, rec.captureResponseBody(r.URL.Path), rec.cfg.MaxBodyBytes)
		next.ServeHTTP(bw, r)

		status := strconv.Itoa(bw.statusCode)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, status).Observe(time.Since(start).Seconds())
		if bw.bytesWritten > 0 {
			metrics.HTTPResponseSizeBytes.WithLabelValues(r.Method, status).Observe(float64(bw.bytesWritten))
		}

		rec.dispatchResponse(record.NewResponse(bw.statusCode, bw.Header(), bw.bodyBytes(), r))
	})
}

// RecordRequest snapshots an incoming request and fans it out. The request
// body remains readable downstream.
func (rec *Recorder) RecordRequest(r *http.Request) {
	includeBody := rec.cfg.LogRequestBody && !matches(rec.cfg.ExcludeRequestBodyRegexp, r.URL.Path)

	snapshot, err := record.FromRequest(r, includeBody, rec.cfg.MaxBodyBytes)
	if err != nil {
		rec.report(fmt.Errorf("failed to snapshot request: %w", err))
		return
	}

	rec.dispatchRequest(snapshot)
}

// RecordHTTPResponse snapshots an upstream response in proxy mode, including
// the timings gathered by the profiling transport. It is shaped to be used
// as a ReverseProxy ModifyResponse hook and never returns an error.
func (rec *Recorder) RecordHTTPResponse(response *http.Response) error {
	if !rec.cfg.LoggingEnabled {
		return nil
	}
	if response.Request != nil && rec.pathExcluded(response.Request.URL.Path) {
		return nil
	}

	includeBody := rec.cfg.LogResponseBody
	if response.Request != nil {
		includeBody = includeBody && !matches(rec.cfg.ExcludeResponseBodyRegexp, response.Request.URL.Path)
	}

	snapshot, err := record.FromResponse(response, includeBody, rec.cfg.MaxBodyBytes)
	if err != nil {
		rec.report(fmt.Errorf("failed to snapshot response: %w", err))
		return nil
	}

	if response.Request != nil {
		snapshot.Timing = timingFromRequest(response.Request)
	}

	rec.dispatchResponse(snapshot)

	return nil
}

func (rec *Recorder) dispatchRequest(req *record.Request) {
	metrics.RecordsEmittedTotal.WithLabelValues(metrics.KindRequest).Inc()

	for _, handler := range rec.handlers {
		if err := handler.HandleRequest(req); err != nil {
			metrics.HandlerErrorsTotal.WithLabelValues(metrics.KindRequest).Inc()
			rec.report(fmt.Errorf("request handler: %w", err))
		}
	}
}

func (rec *Recorder) dispatchResponse(res *record.Response) {
	metrics.RecordsEmittedTotal.WithLabelValues(metrics.KindResponse).Inc()

	for _, handler := range rec.handlers {
		if err := handler.HandleResponse(res); err != nil {
			metrics.HandlerErrorsTotal.WithLabelValues(metrics.KindResponse).Inc()
			rec.report(fmt.Errorf("response handler: %w", err))
		}
	}
}

func (rec *Recorder) pathExcluded(path string) bool {
	return matches(rec.cfg.ExcludeRegexp, path)
}

func (rec *Recorder) captureResponseBody(path string) bool {
	return rec.cfg.LogResponseBody && !matches(rec.cfg.ExcludeResponseBodyRegexp, path)
}

func (rec *Recorder) report(err error) {
	if rec.errorLog != nil {
		rec.errorLog(err)
	}
}

func matches(re *regexp.Regexp, path string) bool {
	return re != nil && re.String() != "" && re.MatchString(path)
}

func timingFromRequest(r *http.Request) *record.Timing {
	ctx := r.Context()

	trace, ok := transport.TimingFromContext(ctx)
	if !ok {
		return nil
	}

	timing := &record.Timing{}

	if start, ok := transport.TimeFromContext(ctx, transport.KeyConnectionStart); ok {
		if end, ok := transport.TimeFromContext(ctx, transport.KeyConnectionEnd); ok {
			timing.ConnectionDuration = end.Sub(start)
		}
	}
	if !trace.TLSHandshakeStart.IsZero() && !trace.TLSHandshakeDone.IsZero() {
		timing.TLSHandshakeDuration = trace.TLSHandshakeDone.Sub(trace.TLSHandshakeStart)
	}

	roundTripStart, haveStart := transport.TimeFromContext(ctx, transport.KeyRoundTripStart)
	if haveStart && !trace.GotFirstResponseByte.IsZero() {
		timing.TimeToFirstByte = trace.GotFirstResponseByte.Sub(roundTripStart)
	}
	if haveStart {
		if roundTripEnd, ok := transport.TimeFromContext(ctx, transport.KeyRoundTripEnd); ok {
			timing.RoundTripDuration = roundTripEnd.Sub(roundTripStart)
		}
	}

	return timing
}

// Run starts the standalone logging reverse proxy. Request records are
// emitted before proxying; response records are emitted from the proxy's
// response hook so that transport timings are available.
func Run(cfg *config.TranslatedConfig, rec *Recorder, server HTTPServer) error {
	proxyServer, err := proxy.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create proxy server: %w", err)
	}
	proxyServer.SetModifyResponse(rec.RecordHTTPResponse)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if cfg.LoggingEnabled && !rec.pathExcluded(r.URL.Path) {
			rec.RecordRequest(r)
		}
		proxyServer.ServeHTTP(w, r)
	})

	addr := fmt.Sprintf("%s:%s", cfg.ListenIP, cfg.ListenPort)
	if err := server.ListenAndServe(addr, mux); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}
