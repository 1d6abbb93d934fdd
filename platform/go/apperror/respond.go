package apperror

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// body is the uniform JSON error envelope emitted at the pipeline boundary.
type body struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Writer formats recognized and unrecognized failures into the uniform JSON
// body. Stack traces are attached only outside production.
type Writer struct {
	logger     *zap.Logger
	production bool
}

func NewWriter(logger *zap.Logger, production bool) *Writer {
	if logger == nil {
		panic("apperror writer requires logger")
	}
	return &Writer{logger: logger, production: production}
}

// Write renders err as JSON. Unrecognized errors are reported as 500 without
// leaking internals in production.
func (wr *Writer) Write(w http.ResponseWriter, err error) {
	appErr, ok := AsError(err)
	if !ok {
		appErr = Wrap(KindInternal, "internal server error", err)
	}

	if appErr.Status >= http.StatusInternalServerError {
		wr.logger.Error("request failed", zap.String("kind", string(appErr.Kind)), zap.Error(err))
	}

	payload := body{Error: errorBody{Code: string(appErr.Kind), Message: appErr.Message}}
	if !wr.production && appErr.Err != nil {
		payload.Error.Message = appErr.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Recoverer converts panics into a 500 response through the same boundary.
func (wr *Writer) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				wr.logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
				payload := body{Error: errorBody{Code: string(KindInternal), Message: "internal server error"}}
				if !wr.production {
					payload.Error.Stack = string(debug.Stack())
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(payload)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
