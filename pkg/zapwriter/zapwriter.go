// Package zapwriter emits request and response records via the zap library.
package zapwriter

import (
	"sort"

	config "github.com/bodylog/bodylog/pkg/core/config"
	"github.com/bodylog/bodylog/pkg/record"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Writer logs records through a zap logger. It satisfies the core.Handler
// interface.
type Writer struct {
	Logger *zap.Logger
	Config *config.TranslatedConfig
}

// New creates a Writer. A nil cfg falls back to the library defaults.
func New(logger *zap.Logger, cfg *config.TranslatedConfig) Writer {
	if cfg == nil {
		cfg = config.Default()
	}
	return Writer{Logger: logger, Config: cfg}
}

// Default creates a Writer backed by a production zap logger.
func Default() (Writer, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return Writer{}, err
	}
	return New(logger, nil), nil
}

// HandleRequest logs one entry per observed request.
func (w Writer) HandleRequest(req *record.Request) error {
	req = w.mask(req).(*record.Request)

	fields := []zap.Field{
		zap.String("request_method", req.Method),
		zap.String("request", req.Path),
		zap.String("args", args(req.Query)),
		zap.Strings("request_headers", headerLines(req.Headers)),
	}
	if req.Client != nil {
		fields = append(fields, zap.String("client_host", req.Client.Host))
		if req.Client.Port != 0 {
			fields = append(fields, zap.Int("client_port", req.Client.Port))
		}
	}
	if req.Body != "" {
		fields = append(fields, zap.String("post_body", req.Body))
	}

	w.Logger.Info("", fields...)

	return nil
}

// HandleResponse logs one entry per observed response.
func (w Writer) HandleResponse(res *record.Response) error {
	res = w.mask(res).(*record.Response)

	fields := []zap.Field{
		zap.Int("status", res.StatusCode),
		zap.Strings("response_headers", headerLines(res.Headers)),
	}
	if res.Request != nil {
		fields = append(fields,
			zap.String("request_method", res.Request.Method),
			zap.String("request", res.Request.Path),
		)
	}
	if res.Body != "" {
		fields = append(fields,
			zap.Int("body_bytes_sent", len(res.Body)),
			zap.String("response_body", res.Body),
		)
	}
	if res.Timing != nil {
		fields = append(fields, zap.Object("timing", timingMarshaler{res.Timing}))
	}

	w.Logger.Info("", fields...)

	return nil
}

func (w Writer) mask(v any) any {
	if w.Config != nil && !w.Config.MaskingEnabled {
		return v
	}

	names := record.DefaultMaskedNames()
	if w.Config != nil && w.Config.MaskedNames != nil {
		names = w.Config.MaskedNames
	}

	switch rec := v.(type) {
	case *record.Request:
		return rec.Masked(names)
	case *record.Response:
		return rec.Masked(names)
	}
	return v
}

func args(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	return "?" + rawQuery
}

func headerLines(headers map[string]string) []string {
	lines := make([]string, 0, len(headers))
	for name, value := range headers {
		lines = append(lines, name+": "+value)
	}
	sort.Strings(lines)
	return lines
}

// timingMarshaler serializes record.Timing type safely.
type timingMarshaler struct {
	timing *record.Timing
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (m timingMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddDuration("connection_duration", m.timing.ConnectionDuration)
	enc.AddDuration("tls_handshake_duration", m.timing.TLSHandshakeDuration)
	enc.AddDuration("time_to_first_byte", m.timing.TimeToFirstByte)
	enc.AddDuration("roundtrip_duration", m.timing.RoundTripDuration)
	return nil
}
