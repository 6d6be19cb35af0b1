package errors

import (
	stderrors "errors"
	"net/http"
)

// Handler is an http handler that reports failure by returning an error
type Handler func(w http.ResponseWriter, r *http.Request) error

// HandleFunc adapts a Handler. A returned error is written as the JSON
// error envelope; errors that are not AppErrors become 500s, and an
// oversized body becomes 413.
func HandleFunc(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			err = New(CodeInvalidRequest, "request body too large", CategoryClient, http.StatusRequestEntityTooLarge)
		}
		WriteError(w, GetRequestID(r.Context()), err)
	}
}
