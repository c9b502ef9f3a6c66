package handlers

import (
	"bufio"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"collabhub/internal/auth"
	"collabhub/pkg/logger"

	"github.com/rs/xid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	s.status = http.StatusSwitchingProtocols
	return http.NewResponseController(s.ResponseWriter).Hijack()
}

// RequestID tags every request with an id, reusing a client-supplied one,
// and logs the request once it completes.
func RequestID(log *zap.SugaredLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = xid.New().String()
		}
		w.Header().Set(requestIDHeader, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(logger.WithRequestID(r.Context(), id)))

		log.Debugw("Request handled",
			"method", r.Method, "path", r.URL.Path, "status", rec.status,
			"requestId", id, "duration", time.Since(start))
	})
}

func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	allowAll := slices.Contains(allowedOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(allowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests without a valid bearer token and attaches the
// caller to the request context.
func RequireAuth(verifier Verifier, log *zap.SugaredLogger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := verifier.Verify(r.Context(), auth.TokenFromRequest(r))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		next(w, r.WithContext(auth.WithUser(r.Context(), user)))
	}
}

// originAllowed is the websocket CheckOrigin policy for allowedOrigins.
func originAllowed(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowedOrigins, "*") {
			return true
		}
		return slices.ContainsFunc(allowedOrigins, func(allowed string) bool {
			return strings.EqualFold(allowed, origin)
		})
	}
}
