package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"crawlmind/internal/app"
	"crawlmind/internal/extract"
	"crawlmind/internal/transport/http/middleware"
	"crawlmind/internal/transport/http/response"
)

type RAGHandler struct {
	ingestion      *app.IngestionService
	query          *app.QueryService
	knowledge      *app.KnowledgeService
	sessions       *app.SessionService
	maxUploadBytes int64
}

type QueryRequest struct {
	Question  string `json:"question" binding:"required,max=4000"`
	APIKey    string `json:"api_key"`
	SessionID string `json:"session_id" binding:"max=128"`
}

func NewRAGHandler(
	ingestion *app.IngestionService,
	query *app.QueryService,
	knowledge *app.KnowledgeService,
	sessions *app.SessionService,
	maxUploadMB int,
) *RAGHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 20
	}
	return &RAGHandler{
		ingestion:      ingestion,
		query:          query,
		knowledge:      knowledge,
		sessions:       sessions,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

// Ingest accepts a multipart form with "urls" (repeatable, or newline
// separated), "files" (repeatable), "api_key" and "session_id".
func (h *RAGHandler) Ingest(c *gin.Context) {
	profile, ok := middleware.ProfileFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sources, err := h.collectSources(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	sess, err := h.sessions.Open(ctx, profile.ID, c.PostForm("session_id"), c.PostForm("api_key"))
	if err != nil {
		writeAppError(c, err)
		return
	}

	result, err := h.ingestion.Ingest(ctx, app.IngestInput{Session: sess, Sources: sources})
	if err != nil {
		writeAppError(c, err)
		return
	}
	if err := h.sessions.Save(ctx, sess); err != nil {
		writeAppError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *RAGHandler) collectSources(c *gin.Context) ([]extract.Source, error) {
	var sources []extract.Source
	for _, raw := range c.PostFormArray("urls") {
		for _, u := range strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == '\r' }) {
			if u = strings.TrimSpace(u); u != "" {
				sources = append(sources, extract.URL(u))
			}
		}
	}

	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return sources, nil
		}
		return nil, fmt.Errorf("invalid multipart form")
	}
	for _, fh := range form.File["files"] {
		if fh.Size > h.maxUploadBytes {
			return nil, fmt.Errorf("file %s is too large (max %d MB)", fh.Filename, h.maxUploadBytes>>20)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s", fh.Filename)
		}
		content, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s", fh.Filename)
		}
		sources = append(sources, extract.File(fh.Filename, content))
	}
	return sources, nil
}

func (h *RAGHandler) Query(c *gin.Context) {
	profile, ok := middleware.ProfileFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	ctx := c.Request.Context()
	sess, err := h.sessions.Open(ctx, profile.ID, req.SessionID, req.APIKey)
	if err != nil {
		writeAppError(c, err)
		return
	}

	result, askErr := h.query.Ask(ctx, sess, req.Question)
	// Failed questions are recorded too, so the session is saved either way.
	if err := h.sessions.Save(ctx, sess); err != nil {
		writeAppError(c, err)
		return
	}
	if askErr != nil {
		writeAppError(c, askErr)
		return
	}
	response.OK(c, result)
}

func (h *RAGHandler) Transcript(c *gin.Context) {
	profile, ok := middleware.ProfileFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sess, err := h.sessions.Open(c.Request.Context(), profile.ID, c.Query("session_id"), "")
	if err != nil {
		writeAppError(c, err)
		return
	}
	response.OK(c, gin.H{
		"session_id":     sess.SessionID,
		"collection_ref": sess.CollectionRef,
		"transcript":     sess.Transcript,
	})
}

func (h *RAGHandler) ResetTranscript(c *gin.Context) {
	profile, ok := middleware.ProfileFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	if err := h.sessions.Reset(c.Request.Context(), profile.ID, c.Query("session_id")); err != nil {
		writeAppError(c, err)
		return
	}
	response.OK(c, nil)
}

func (h *RAGHandler) ListCollections(c *gin.Context) {
	profile, ok := middleware.ProfileFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	collections, err := h.knowledge.ListCollections(c.Request.Context(), profile.ID)
	if err != nil {
		writeAppError(c, err)
		return
	}
	response.OK(c, collections)
}

func (h *RAGHandler) DropCollection(c *gin.Context) {
	profile, ok := middleware.ProfileFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	if err := h.knowledge.DropCollection(c.Request.Context(), profile.ID, c.Param("name")); err != nil {
		writeAppError(c, err)
		return
	}
	response.OK(c, nil)
}

// ClearStore removes the caller's whole knowledge base.
func (h *RAGHandler) ClearStore(c *gin.Context) {
	profile, ok := middleware.ProfileFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	result, err := h.knowledge.Clear(c.Request.Context(), profile.ID)
	if err != nil {
		writeAppError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *RAGHandler) ListIngestions(c *gin.Context) {
	profile, ok := middleware.ProfileFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	records, err := h.knowledge.ListIngestions(profile.ID, limit)
	if err != nil {
		writeAppError(c, err)
		return
	}
	response.OK(c, records)
}
