package httpadapter

import (
	"net/http"

	"github.com/kirillkom/conversational-search/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrPassageNotFound):
		// Indexed passage absent from the text store.
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	body := map[string]string{"error": err.Error()}
	if stage := domain.FailedStage(err); stage != "" {
		body["stage"] = stage
	}
	writeJSON(w, mapErrorToHTTPStatus(err), body)
}
