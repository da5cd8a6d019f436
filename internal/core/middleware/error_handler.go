package middleware

import (
	"net/http"

	"github.com/Nzyazin/tutorledger/internal/core/logger"
)

type ErrorHandler struct {
	handler http.Handler
	log     logger.Logger
}

func WithErrorHandler(log logger.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return &ErrorHandler{handler: h, log: log}
	}
}

// ServeHTTP logs every 5xx written by downstream handlers.
func (eh *ErrorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	eh.handler.ServeHTTP(rec, r)

	if rec.status >= http.StatusInternalServerError {
		eh.log.Error("request processing failed",
			logger.StringField("method", r.Method),
			logger.StringField("path", r.URL.Path),
			logger.IntField("status", rec.status),
		)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
