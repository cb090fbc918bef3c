package client

import (
	"log/slog"
	"net/http"
	"time"
)

// loggingTransport logs every request sent to the agent server at debug
// level.
type loggingTransport struct {
	next http.RoundTripper
}

func (t loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	slog.Debug("HTTP request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("query", r.URL.RawQuery),
	)

	rsp, err := t.next.RoundTrip(r)
	duration := time.Since(start)
	if err != nil {
		slog.Debug("HTTP request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", duration),
			slog.Any("error", err),
		)
		return nil, err
	}

	slog.Debug("HTTP response",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rsp.StatusCode),
		slog.Duration("duration", duration),
	)
	return rsp, nil
}
