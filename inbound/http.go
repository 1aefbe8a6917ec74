package inbound

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-relay/core"
)

const defaultMaxBodyBytes int64 = 1 << 20 // 1 MiB

// Handler is the HTTP surface for inbound callbacks. Mount it wherever the
// host router keeps webhook routes; it only answers POST.
type Handler struct {
	Processor    *Processor
	Logger       core.Logger
	MaxBodyBytes int64
}

func NewHandler(processor *Processor, logger core.Logger) *Handler {
	return &Handler{
		Processor:    processor,
		Logger:       glog.Ensure(logger),
		MaxBodyBytes: defaultMaxBodyBytes,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Processor == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method_not_allowed"})
		return
	}

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_request"})
		return
	}
	if int64(len(body)) > limit {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "payload_too_large"})
		return
	}

	result, err := h.Processor.Process(r.Context(), r.Header, body)
	if err != nil {
		status, code := errorResponse(err)
		if status >= 500 {
			h.Logger.Error("inbound callback failed", "error", err.Error())
		}
		writeJSON(w, status, map[string]any{"error": code})
		return
	}

	response := map[string]any{"status": "ok"}
	if result.Deduped {
		response["deduped"] = true
		writeJSON(w, http.StatusOK, response)
		return
	}
	response["workflow_id"] = result.Outcome.Workflow.ID
	response["applied"] = result.Outcome.Applied
	if chained := result.Outcome.Chained; chained != nil {
		response["chained_item_id"] = chained.ID
	}
	writeJSON(w, http.StatusOK, response)
}

func errorResponse(err error) (int, string) {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		status := richErr.Code
		if status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}
		return status, errorCode(richErr.TextCode)
	}
	return http.StatusInternalServerError, "internal_error"
}

func errorCode(textCode string) string {
	code := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(textCode), "RELAY_"))
	if code == "" {
		return "internal_error"
	}
	return code
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
