package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	config "github.com/bodylog/bodylog/pkg/core/config"
)

func contextWithShortTimeout(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	t.Cleanup(cancel)
	return ctx
}

func translatedConfig(t *testing.T) *config.TranslatedConfig {
	t.Helper()

	source := &config.SourceConfig{TargetHostDSN: "http://example.com"}
	cfg, err := source.NewTranslatedConfiguration()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return cfg
}

func TestNewProfilingTransportWithNilConfig(t *testing.T) {
	transport, err := NewProfilingTransport(nil)
	if err == nil {
		t.Error("Expected error for nil configuration")
	}
	if transport != nil {
		t.Error("Transport should be nil for nil configuration")
	}
}

func TestRoundTripRecordsTimings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	transport, err := NewProfilingTransport(translatedConfig(t))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	req, _ := http.NewRequest("GET", server.URL, nil)

	before := time.Now()
	response, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer response.Body.Close()

	ctx := response.Request.Context()

	timing, ok := TimingFromContext(ctx)
	if !ok {
		t.Fatal("Expected timing in request context")
	}
	if timing.GetConn.IsZero() || timing.GotConn.IsZero() {
		t.Error("Expected connection trace timestamps to be set")
	}
	if timing.GotFirstResponseByte.IsZero() {
		t.Error("Expected first response byte timestamp to be set")
	}

	roundTripStart, ok := TimeFromContext(ctx, KeyRoundTripStart)
	if !ok {
		t.Fatal("Expected round trip start in request context")
	}
	roundTripEnd, ok := TimeFromContext(ctx, KeyRoundTripEnd)
	if !ok {
		t.Fatal("Expected round trip end in request context")
	}
	if roundTripEnd.Before(roundTripStart) {
		t.Error("Round trip end should not precede its start")
	}
	if roundTripStart.Before(before) {
		t.Error("Round trip start should not precede the call")
	}

	connectionStart, ok := TimeFromContext(ctx, KeyConnectionStart)
	if !ok {
		t.Fatal("Expected connection start in request context")
	}
	connectionEnd, ok := TimeFromContext(ctx, KeyConnectionEnd)
	if !ok {
		t.Fatal("Expected connection end in request context")
	}
	if connectionEnd.Before(connectionStart) {
		t.Error("Connection end should not precede its start")
	}
}

func TestRoundTripError(t *testing.T) {
	transport, err := NewProfilingTransport(translatedConfig(t))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Reserved TEST-NET address, nothing listens there.
	req, _ := http.NewRequest("GET", "http://192.0.2.1:1/", nil)
	req = req.WithContext(contextWithShortTimeout(t))

	response, err := transport.RoundTrip(req)
	if err == nil {
		response.Body.Close()
		t.Fatal("Expected error for unreachable host")
	}
}
