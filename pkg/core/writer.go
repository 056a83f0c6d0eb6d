package core

import (
	"bytes"
	"net/http"
)

// bodyWriter wraps http.ResponseWriter to capture the status code and a
// capped copy of the response body while passing all writes through.
type bodyWriter struct {
	http.ResponseWriter
	statusCode   int
	written      bool
	bytesWritten int
	captureBody  bool
	maxBodyBytes int64
	body         bytes.Buffer
}

func newBodyWriter(w http.ResponseWriter, captureBody bool, maxBodyBytes int64) *bodyWriter {
	return &bodyWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		captureBody:    captureBody,
		maxBodyBytes:   maxBodyBytes,
	}
}

// WriteHeader captures the status code. Only the first call counts.
func (bw *bodyWriter) WriteHeader(statusCode int) {
	if !bw.written {
		bw.statusCode = statusCode
		bw.written = true
	}
	bw.ResponseWriter.WriteHeader(statusCode)
}

// Write passes the bytes through and keeps a capped copy for the record.
func (bw *bodyWriter) Write(b []byte) (int, error) {
	if !bw.written {
		bw.statusCode = http.StatusOK
		bw.written = true
	}

	if bw.captureBody {
		bw.capture(b)
	}

	n, err := bw.ResponseWriter.Write(b)
	bw.bytesWritten += n
	return n, err
}

// Flush implements http.Flusher when the underlying writer supports it.
func (bw *bodyWriter) Flush() {
	if flusher, ok := bw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (bw *bodyWriter) capture(b []byte) {
	if bw.maxBodyBytes <= 0 {
		bw.body.Write(b)
		return
	}

	remaining := bw.maxBodyBytes - int64(bw.body.Len())
	if remaining <= 0 {
		return
	}
	if int64(len(b)) > remaining {
		b = b[:remaining]
	}
	bw.body.Write(b)
}

func (bw *bodyWriter) bodyBytes() []byte {
	if !bw.captureBody {
		return nil
	}
	return bw.body.Bytes()
}
