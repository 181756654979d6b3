// Package ingress implements the HTTP surface:
// POST /_matrix/push/v1/notify dispatch endpoint and the static GET /health
// check. It is a thin adapter — all dispatch logic lives in
// internal/dispatch; this package only (de)serializes the wire contract and
// maps internal outcomes to status codes.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-push-gateway/internal/dispatch"
	"github.com/tinywideclouds/go-push-gateway/internal/notification"
)

// defaultTimeout is used when a Handler is built without an explicit one.
const defaultTimeout = 30 * time.Second

// Handler wires the dispatch engine to the HTTP push-notify contract.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	timeout    time.Duration
	logger     *slog.Logger
}

// NewHandler builds a Handler around an already-configured Dispatcher.
// timeout bounds the overall ingress call; <= 0 selects
// the documented default of 30s.
func NewHandler(dispatcher *dispatch.Dispatcher, timeout time.Duration, logger *slog.Logger) *Handler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Handler{dispatcher: dispatcher, timeout: timeout, logger: logger.With("component", "ingress")}
}

// errorBody is the JSON shape for 4xx/5xx replies.
type errorBody struct {
	ErrCode string `json:"errcode"`
	Error   string `json:"error"`
}

// Notify implements POST /_matrix/push/v1/notify. It derives the overall
// ingress timeout from r's context before handing off to the Dispatcher.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	logger := h.logger.With("request_id", requestID)

	if r.Header.Get("Content-Type") != "" && r.Header.Get("Content-Type") != "application/json" {
		writeError(w, http.StatusBadRequest, "M_NOT_JSON", "content-type must be application/json")
		return
	}

	var req notification.Request
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "M_BAD_JSON", "malformed request body: "+err.Error())
		return
	}

	if err := req.Notification.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "M_MISSING_PARAM", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rejected, err := h.dispatcher.Dispatch(ctx, &req.Notification)
	if err != nil {
		var transientErr *dispatch.TransientError
		if errors.As(err, &transientErr) {
			logger.Warn("ingress returning 502 after transient dispatch failure", "reasons", transientErr.Reasons)
			writeError(w, http.StatusBadGateway, "M_UNKNOWN", transientErr.Error())
			return
		}
		logger.Error("dispatch returned an unexpected error", "err", err)
		writeError(w, http.StatusBadGateway, "M_UNKNOWN", "internal dispatch error")
		return
	}

	writeJSON(w, http.StatusOK, notification.Response{Rejected: rejected})
}

// Health implements the static GET /health check.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Recover catches panics from programmer errors at the ingress boundary
// and turns them into a 500, logging the panic value instead of
// crashing the process.
func (h *Handler) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("recovered from panic at ingress boundary", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "M_UNKNOWN", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, errcode, msg string) {
	writeJSON(w, status, errorBody{ErrCode: errcode, Error: msg})
}
