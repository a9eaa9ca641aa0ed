package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"swarmorch/internal/errdefs"
	"swarmorch/pkg/sdk/types"
)

// --- Error mapping ---

func httpStatus(err error) int {
	switch errdefs.KindOf(err) {
	case errdefs.KindNotFound:
		return http.StatusNotFound
	case errdefs.KindConflict:
		return http.StatusConflict
	case errdefs.KindInvalidArgument:
		return http.StatusBadRequest
	case errdefs.KindTimeout:
		return http.StatusGatewayTimeout
	case errdefs.KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		slog.ErrorContext(r.Context(), "request failed", "component", "api", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, types.ErrorBody{Error: err.Error(), Kind: errdefs.KindOf(err).String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "component", "api", "err", err)
	}
}
