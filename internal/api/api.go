// Package api exposes the job tracker over JSON HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/svtfetch/backend/internal/errors"
	"github.com/svtfetch/backend/internal/logger"
)

const maxBodyBytes = 1 << 20

// errorLogging adapts an error-returning handler, logging server-side failures
func errorLogging(log *logger.Logger, h apperrors.Handler) http.Handler {
	return apperrors.HandleFunc(func(w http.ResponseWriter, r *http.Request) error {
		err := h(w, r)
		if err != nil && !apperrors.IsClientError(err) {
			log.Error(r.Context(), "request failed", err, map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
			})
		}
		return err
	})
}

// decodeJSON reads a bounded JSON request body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.BadRequest("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return apperrors.BadRequest("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) error {
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), status, data)
	return nil
}

// urlRequest is the body of every probe endpoint
type urlRequest struct {
	URL   string `json:"url"`
	Token string `json:"token,omitempty"`
}
