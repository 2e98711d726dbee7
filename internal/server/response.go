package server

import (
	"errors"
	"net/http"

	"brandpulse/internal/analysis"
	"brandpulse/internal/integrations/llm"
	"brandpulse/internal/integrations/reddit"
	"brandpulse/internal/pipeline"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// respondServiceError maps analysis errors onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	var svcErr *llm.ServiceError
	switch {
	case errors.Is(err, analysis.ErrInvalidBrand), errors.Is(err, analysis.ErrInvalidRange):
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, analysis.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, analysis.ErrNothingClassified):
		RespondError(c, http.StatusConflict, "nothing_classified", err)
	case errors.Is(err, reddit.ErrRateLimited):
		RespondError(c, http.StatusTooManyRequests, "rate_limited", err)
	case errors.Is(err, pipeline.ErrMissingCredentials), errors.Is(err, reddit.ErrMissingCredentials):
		RespondError(c, http.StatusServiceUnavailable, "missing_credentials", err)
	case errors.As(err, &svcErr):
		RespondError(c, http.StatusBadGateway, "model_service_error", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
