package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/poundcake/poundcake/internal/database"
)

// RequestIDHeader is the HTTP header used for request IDs.
const RequestIDHeader = "X-Request-ID"

type requestIDContextKey struct{}
type ledgerRefContextKey struct{}

// LedgerMiddleware records every inbound request, read-only queries
// included, in the request ledger: request id, method, path, headers,
// query params, body, and, once the response is written, status code and
// timing. Ledger failures are logged and never fail the request.
type LedgerMiddleware struct {
	db *gorm.DB
}

// NewLedgerMiddleware creates a new ledger middleware.
func NewLedgerMiddleware(db *gorm.DB) *LedgerMiddleware {
	return &LedgerMiddleware{db: db}
}

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Wrap wraps an http.Handler with ledger recording.
func (m *LedgerMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		row := &database.Request{
			RequestID:   requestID,
			Method:      r.Method,
			Path:        r.URL.Path,
			Headers:     headersToJSONB(r.Header),
			QueryParams: queryToJSONB(r),
			Body:        m.captureBody(r),
			ClientHost:  clientHost(r),
		}
		if err := database.CreateRequest(m.db, row); err != nil {
			log.Printf("Failed to record request in ledger: %v", err)
			row = nil
		}

		ctx := context.WithValue(r.Context(), requestIDContextKey{}, requestID)
		if row != nil {
			ctx = context.WithValue(ctx, ledgerRefContextKey{}, row.ID)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		if row != nil {
			elapsed := time.Since(start).Milliseconds()
			if err := database.CompleteRequest(m.db, row.ID, rec.status, elapsed); err != nil {
				log.Printf("Failed to complete ledger row %d: %v", row.ID, err)
			}
		}
	})
}

// captureBody reads a JSON request body into the ledger and restores it for
// the handler. Non-JSON or empty bodies are recorded as nil.
func (m *LedgerMiddleware) captureBody(r *http.Request) database.JSONB {
	if r.Method == http.MethodGet || r.Body == nil {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), r.Body))

	var body database.JSONB
	if err := json.Unmarshal(data, &body); err != nil {
		return nil
	}
	return body
}

func headersToJSONB(h http.Header) database.JSONB {
	out := make(database.JSONB, len(h))
	for name, values := range h {
		if len(values) == 1 {
			out[name] = values[0]
		} else {
			out[name] = values
		}
	}
	return out
}

func queryToJSONB(r *http.Request) database.JSONB {
	query := r.URL.Query()
	if len(query) == 0 {
		return nil
	}
	out := make(database.JSONB, len(query))
	for name, values := range query {
		if len(values) == 1 {
			out[name] = values[0]
		} else {
			out[name] = values
		}
	}
	return out
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// GetRequestID returns the ledger request ID from the context, or an empty
// string.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey{}).(string); ok {
		return id
	}
	return ""
}

// GetLedgerRef returns the ledger row primary key from the context. The
// second return is false if the ledger write failed for this request.
func GetLedgerRef(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(ledgerRefContextKey{}).(uint)
	return id, ok
}
