package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/campus-wallet/internal/auth"
	"github.com/josh-kwaku/campus-wallet/internal/handler"
	"github.com/josh-kwaku/campus-wallet/internal/lock"
	"github.com/josh-kwaku/campus-wallet/internal/logging"
	"github.com/josh-kwaku/campus-wallet/internal/repository"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "X-Idempotent-Replayed"
	maxIdempotencyKey = 128
)

type idempotencyRepository interface {
	Get(ctx context.Context, key string, userID uuid.UUID) (*repository.IdempotencyCacheEntry, error)
	Set(ctx context.Context, entry *repository.IdempotencyCacheEntry) error
}

type inFlightLocker interface {
	Acquire(ctx context.Context, name string) (*lock.Lease, error)
}

// Idempotency makes money-moving requests safe to retry. The first response for a
// user's Idempotency-Key is cached and replayed; a retry that arrives while the
// first is still running gets REQUEST_IN_PROGRESS. Server errors are not cached.
func Idempotency(repo idempotencyRepository, inFlight inFlightLocker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(idempotencyHeader)
			if key == "" {
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
				return
			}
			if len(key) > maxIdempotencyKey {
				handler.RespondAppError(w, handler.ErrInvalidRequest, map[string]string{"field": idempotencyHeader})
				return
			}

			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			log := logging.FromContext(r.Context()).With("idempotency_key", key)
			reqHash := requestHash(r.Method, r.URL.Path, body)

			if replayed(r.Context(), w, repo, log, key, userID, reqHash) {
				return
			}

			lease, err := inFlight.Acquire(r.Context(), userID.String()+":"+key)
			switch {
			case errors.Is(err, lock.ErrNotAcquired):
				handler.RespondAppError(w, handler.ErrRequestInProgress, nil)
				return
			case err != nil:
				log.Warn("idempotency in-flight lock unavailable", "error", err)
			default:
				defer func() {
					if err := lease.Release(context.WithoutCancel(r.Context())); err != nil {
						log.Warn("failed to release idempotency lock", "error", err)
					}
				}()
				// The first request may have finished between the lookup and the lock.
				if replayed(r.Context(), w, repo, log, key, userID, reqHash) {
					return
				}
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError {
				return
			}

			entry := &repository.IdempotencyCacheEntry{
				Key:          key,
				UserID:       userID,
				RequestHash:  reqHash,
				StatusCode:   rec.statusCode,
				ResponseBody: rec.body.Bytes(),
				CreatedAt:    time.Now().UTC(),
			}
			if err := repo.Set(context.WithoutCancel(r.Context()), entry); err != nil {
				log.Error("idempotency cache store failed", "error", err)
			}
		})
	}
}

// replayed writes the cached response, or a conflict when the key was used for a
// different request. It reports whether a response was written.
func replayed(ctx context.Context, w http.ResponseWriter, repo idempotencyRepository, log *slog.Logger, key string, userID uuid.UUID, reqHash string) bool {
	cached, err := repo.Get(ctx, key, userID)
	if err != nil {
		log.Error("idempotency cache lookup failed", "error", err)
		handler.RespondAppError(w, handler.ErrInternalError, nil)
		return true
	}
	if cached == nil {
		return false
	}
	if cached.RequestHash != reqHash {
		handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
		return true
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(cached.StatusCode)
	if _, err := w.Write(cached.ResponseBody); err != nil {
		log.Error("failed to write idempotent replay", "error", err)
	}
	return true
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
