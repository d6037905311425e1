// Package httpapi exposes the order workflows over HTTP for the customer and
// courier services.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nazeru/escrow-fulfillment-go/internal/order/domain"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/lifecycle"
	"github.com/nazeru/escrow-fulfillment-go/pkg/logging"
	"github.com/nazeru/escrow-fulfillment-go/pkg/metrics"
)

const (
	HeaderPrincipalEmail = "X-Principal-Email"
	HeaderPrincipalRole  = "X-Principal-Role"
	HeaderRequestID      = "X-Request-ID"

	maxBodyBytes = 1 << 20
)

// Server carries what every router shares.
type Server struct {
	Log     logging.Logger
	Metrics *metrics.ServerMetrics
	// Health is optional; when set /health reports its error as 503.
	Health func(ctx context.Context) error
}

type principalKey struct{}

// PrincipalFrom returns the caller attached by requireRole.
func PrincipalFrom(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(principalKey{}).(domain.Principal)
	return p
}

func (s Server) base() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestID, s.instrument)
	r.Get("/health", s.health)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}
	return r
}

func (s Server) health(w http.ResponseWriter, r *http.Request) {
	if s.Health != nil {
		if err := s.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.Metrics == nil {
			return
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		s.Metrics.ObserveRequest(route, rec.status, start)
	})
}

// requireRole reads the principal forwarded by the auth gateway. Both a
// missing principal and a foreign role are answered with the same 401.
func requireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := strings.TrimSpace(r.Header.Get(HeaderPrincipalEmail))
			got := domain.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderPrincipalRole))))
			if email == "" || got != role {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Missing Authorization Header"})
				return
			}
			ctx := context.WithValue(r.Context(), principalKey{}, domain.Principal{Email: email, Role: got})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

const msgBadBody = "Invalid JSON body."

var errBadBody = errors.New("malformed json body")

// decode accepts an empty body as an empty object so the field checks
// report what is missing.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errBadBody
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errBadBody
	}
	return nil
}

// writeError maps workflow failures to status codes. Anything that is not a
// lifecycle error is an internal failure and its detail stays in the log.
func (s Server) writeError(w http.ResponseWriter, r *http.Request, step string, err error) {
	var le *lifecycle.Error
	if !errors.As(err, &le) {
		s.Log.Log(logging.Fields{RequestID: w.Header().Get(HeaderRequestID), Step: step, Status: "error", Error: err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error."})
		return
	}
	code := http.StatusBadRequest
	if errors.Is(err, lifecycle.ErrChainUnavailable) {
		code = http.StatusBadGateway
	}
	fields := logging.Fields{RequestID: w.Header().Get(HeaderRequestID), Step: step, Status: "rejected", Message: le.Message}
	if le.Err != nil {
		fields.Error = le.Err.Error()
	}
	s.Log.Log(fields)
	writeJSON(w, code, map[string]string{"message": le.Message})
}

func writeBadBody(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"message": msgBadBody})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
