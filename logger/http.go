package logger

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const headerRequestID = "X-Request-ID"

// Field names shared by the request logger and handlers.
const (
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"
	FieldBytes     = "bytes"
	FieldRange     = "range"
	FieldRoom      = "room"
	FieldRole      = "role"
)

// HTTPMiddleware attaches a request-scoped logger to every request and logs
// one line when the handler returns. Websocket upgrades are logged as a
// session with the room and role they asked for; media requests carry the
// Range header and the number of body bytes sent.
func HTTPMiddleware(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := r.Header.Get(headerRequestID)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(headerRequestID, reqID)

			child := l.With().
				Str(FieldRequestID, reqID).
				Str(FieldMethod, r.Method).
				Str(FieldPath, r.URL.Path).
				Str(FieldClientIP, remoteHost(r)).
				Logger()

			rw := &responseLog{ResponseWriter: w}
			next.ServeHTTP(rw, r.WithContext(WithLogger(r.Context(), child)))

			latency := float64(time.Since(start).Milliseconds())
			if isUpgrade(r) {
				logUpgrade(child, r, rw, latency)
				return
			}
			ev := child.Info()
			if rng := r.Header.Get("Range"); rng != "" {
				ev = ev.Str(FieldRange, rng)
			}
			ev.Int(FieldStatus, rw.statusCode()).
				Int64(FieldBytes, rw.bytes).
				Float64(FieldLatency, latency).
				Msg("request completed")
		})
	}
}

// logUpgrade reports how a websocket request ended. A hijacked connection
// means the session ran; anything else means the upgrade was refused before
// the handshake completed.
func logUpgrade(l zerolog.Logger, r *http.Request, rw *responseLog, latency float64) {
	q := r.URL.Query()
	if rw.hijacked {
		l.Info().
			Str(FieldRoom, q.Get("room")).
			Str(FieldRole, q.Get("role")).
			Float64(FieldLatency, latency).
			Msg("websocket session ended")
		return
	}
	l.Warn().
		Str(FieldRoom, q.Get("room")).
		Str(FieldRole, q.Get("role")).
		Int(FieldStatus, rw.statusCode()).
		Msg("websocket upgrade refused")
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// responseLog records what the handler did with the response. It stays
// hijackable so the relay can take over the connection.
type responseLog struct {
	http.ResponseWriter
	status   int
	bytes    int64
	hijacked bool
}

func (rw *responseLog) statusCode() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *responseLog) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseLog) Write(p []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(p)
	rw.bytes += int64(n)
	return n, err
}

func (rw *responseLog) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, brw, err := http.NewResponseController(rw.ResponseWriter).Hijack()
	if err != nil {
		return nil, nil, fmt.Errorf("hijack: %w", err)
	}
	rw.hijacked = true
	return conn, brw, nil
}

func (rw *responseLog) Flush() {
	_ = http.NewResponseController(rw.ResponseWriter).Flush()
}

func (rw *responseLog) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// remoteHost prefers the first X-Forwarded-For hop.
func remoteHost(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
