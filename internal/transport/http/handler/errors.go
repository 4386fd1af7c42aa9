package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"crawlmind/internal/app"
	"crawlmind/internal/extract"
	"crawlmind/internal/knowledge"
	"crawlmind/internal/logger"
	"crawlmind/internal/transport/http/response"
)

// writeAppError maps pipeline errors onto HTTP statuses and the error
// envelope. The message is the user-facing one.
func writeAppError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, response.CodeInternalServer
	switch {
	case errors.Is(err, app.ErrInvalidAPIKey):
		status, code = http.StatusBadRequest, response.CodeInvalidAPIKey
	case errors.Is(err, app.ErrNoSources), errors.Is(err, app.ErrMissingCredential),
		errors.Is(err, app.ErrEmptyQuestion), errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, extract.ErrInvalidSource):
		status, code = http.StatusBadRequest, response.CodeBadRequest
	case errors.Is(err, extract.ErrNoContent):
		status, code = http.StatusUnprocessableEntity, response.CodeNoContent
	case errors.Is(err, app.ErrEmbeddingService):
		status, code = http.StatusBadGateway, response.CodeUpstreamError
	case errors.Is(err, knowledge.ErrNoKnowledgeBase):
		status, code = http.StatusNotFound, response.CodeNoKnowledgeBase
	case errors.Is(err, knowledge.ErrCollectionNotFound):
		status, code = http.StatusNotFound, response.CodeCollectionNotFound
	case errors.Is(err, app.ErrAuditLogDisabled):
		status, code = http.StatusNotFound, response.CodeNotEnabled
	case app.KindOf(err) == app.KindStore:
		status, code = http.StatusInternalServerError, response.CodeStoreError
	}
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	response.Fail(c, status, code, string(app.KindOf(err)), app.UserMessage(err))
}
