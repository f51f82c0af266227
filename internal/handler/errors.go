package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/teachmate/internal/handler/views"
	appI18n "github.com/pavelanni/teachmate/internal/i18n"
	"github.com/pavelanni/teachmate/internal/orchestrator"
	"github.com/pavelanni/teachmate/internal/retrieval"
	"github.com/pavelanni/teachmate/internal/validation"
)

// failure maps an error onto an HTTP status and a localized message.
func failure(ctx context.Context, err error) (int, string) {
	var verr *validation.ValidationError
	var gerr *orchestrator.GenerationError
	var xerr *orchestrator.ExportError

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, appI18n.Td(ctx, "ErrValidation", map[string]any{
			"Fields": strings.Join(verr.FieldNames(), ", "),
		})
	case errors.As(err, &gerr):
		return http.StatusBadGateway, appI18n.T(ctx, generationMessage(gerr.Reason()))
	case errors.Is(err, orchestrator.ErrChatPending):
		return http.StatusConflict, appI18n.T(ctx, "ErrChatPending")
	case errors.Is(err, orchestrator.ErrNoArtifact):
		return http.StatusNotFound, appI18n.T(ctx, "ErrNoArtifact")
	case errors.As(err, &xerr):
		return http.StatusInternalServerError, appI18n.T(ctx, "ErrExport")
	case errors.Is(err, retrieval.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType, appI18n.T(ctx, "ErrUnsupportedFile")
	case errors.Is(err, retrieval.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, appI18n.T(ctx, "ErrFileTooLarge")
	case errors.Is(err, retrieval.ErrNoText):
		return http.StatusBadRequest, appI18n.T(ctx, "ErrNoText")
	case errors.Is(err, retrieval.ErrUnreadableFile):
		return http.StatusBadRequest, appI18n.T(ctx, "ErrUnreadableFile")
	case errors.Is(err, retrieval.ErrBadFilename):
		return http.StatusBadRequest, appI18n.T(ctx, "ErrBadFilename")
	}
	return http.StatusInternalServerError, appI18n.T(ctx, "ErrInternal")
}

func generationMessage(reason string) string {
	switch reason {
	case "auth":
		return "ErrBackendAuth"
	case "rate_limit":
		return "ErrBackendRateLimit"
	case "network":
		return "ErrBackendNetwork"
	case "malformed_response":
		return "ErrBackendMalformed"
	}
	return "ErrGeneration"
}

// fieldErrors indexes validation messages by field for inline display.
func fieldErrors(err error) map[string]string {
	var verr *validation.ValidationError
	if !errors.As(err, &verr) {
		return nil
	}
	out := make(map[string]string, len(verr.Fields))
	for _, f := range verr.Fields {
		out[f.Field] = f.Message
	}
	return out
}

// logFailure logs err at a level matching the status it maps to.
func logFailure(r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
		return
	}
	slog.Warn("request rejected", "path", r.URL.Path, "status", status, "error", err)
}

// renderFailure shows msg as an error panel, or as a bare page for full loads.
func (h *Handler) renderFailure(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render(w, r, status, views.ErrorPage(views.ErrorData{Status: status, Message: msg}))
}
