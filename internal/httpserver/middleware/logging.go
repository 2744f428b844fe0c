package middleware

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"chat-widget-engine/utils"
)

// loggingWriter captures status and payload size while passing the optional
// ResponseWriter interfaces through. Hijack in particular must survive the
// wrap or the websocket upgrade on /ws breaks.
type loggingWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *loggingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *loggingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("loggingWriter: underlying ResponseWriter does not support hijacking")
}

func (w *loggingWriter) Push(target string, opts *http.PushOptions) error {
	if p, ok := w.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

type requestLog struct {
	Time       string `json:"time"`
	Method     string `json:"method"`
	URI        string `json:"uri"`
	Status     int    `json:"status"`
	Bytes      int    `json:"bytes"`
	DurationMS int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
	Origin     string `json:"origin,omitempty"`
	UserAgent  string `json:"user_agent"`
	RequestID  string `json:"request_id"`
}

// Logging emits one JSON line per request. The embedding page's Origin is
// recorded since the same widget API serves many customer sites.
func Logging() Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := &loggingWriter{ResponseWriter: w}

			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)

			next(lw, r)

			entry := requestLog{
				Time:       start.UTC().Format(time.RFC3339),
				Method:     r.Method,
				URI:        r.URL.RequestURI(),
				Status:     lw.status,
				Bytes:      lw.bytes,
				DurationMS: time.Since(start).Milliseconds(),
				ClientIP:   utils.RealClientIP(r),
				Origin:     r.Header.Get("Origin"),
				UserAgent:  r.UserAgent(),
				RequestID:  reqID,
			}

			data, err := json.Marshal(entry)
			if err != nil {
				log.Printf("middleware: marshal request log: %v", err)
				return
			}
			log.Println(string(data))
		}
	}
}
