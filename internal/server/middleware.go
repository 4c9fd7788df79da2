package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sirupsen/logrus"

	"github.com/sbellem/SiennaNetwork/internal/types"
)

type ctxKey string

const (
	requestIDKey ctxKey = "rewards.requestID"
	senderKey    ctxKey = "rewards.sender"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// WithSender stores the authenticated sender in context
func WithSender(ctx context.Context, sender types.Address) context.Context {
	return context.WithValue(ctx, senderKey, sender)
}

// SenderFromCtx fetches the authenticated sender from context
func SenderFromCtx(ctx context.Context) (types.Address, bool) {
	v, ok := ctx.Value(senderKey).(types.Address)
	return v, ok && !v.IsZero()
}

// RequestIDFromCtx fetches the request id from context
func RequestIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.FromString(id); err != nil {
			id = uuid.Must(uuid.NewV4()).String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// route applies method filtering, rate limiting, the request timeout and
// request metrics. An empty method accepts any.
func (s *Server) route(name, method string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			s.metrics.requestCounter.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
			s.metrics.requestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
			logrus.WithFields(logrus.Fields{
				"route":      name,
				"status":     rec.status,
				"request_id": RequestIDFromCtx(r.Context()),
				"latency":    time.Since(start).String(),
			}).Debug("Request served")
		}()

		if method != "" && r.Method != method {
			s.errorResponse(rec, r, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		if !s.limiter.Allow() {
			s.metrics.rateLimited.Inc()
			s.errorResponse(rec, r, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		ctx := r.Context()
		if s.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
			defer cancel()
		}
		h(rec, r.WithContext(ctx))
	})
}

// authenticated requires a bearer token and stores its subject as sender
func (s *Server) authenticated(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tok, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tok == "" {
			s.errorResponse(w, r, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		sender, err := s.issuer.Verify(tok)
		if err != nil {
			s.errorResponse(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		h(w, r.WithContext(WithSender(r.Context(), sender)))
	}
}
