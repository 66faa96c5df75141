package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/storefront-ai/assistant-hub/internal/config"
	"github.com/storefront-ai/assistant-hub/internal/dispatch"
	"github.com/storefront-ai/assistant-hub/internal/extract"
	"github.com/storefront-ai/assistant-hub/internal/http/api/apiutil"
	"github.com/storefront-ai/assistant-hub/internal/provider"
	"github.com/storefront-ai/assistant-hub/internal/uploads"
)

// DispatchHandler runs chat and file analysis requests.
type DispatchHandler struct {
	dispatcher *dispatch.Dispatcher
	analysis   config.AnalysisConfig
}

// NewDispatchHandler constructs a DispatchHandler.
func NewDispatchHandler(d *dispatch.Dispatcher, analysis config.AnalysisConfig) *DispatchHandler {
	return &DispatchHandler{dispatcher: d, analysis: analysis}
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat sends the caller's message to an assistant.
func (h *DispatchHandler) Chat(c *gin.Context) {
	var body chatRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	outcome, errChat := h.dispatcher.Chat(c.Request.Context(), apiutil.UserID(c), c.Param("key"), body.Message)
	if errChat != nil {
		writeDispatchError(c, errChat)
		return
	}
	writeOutcome(c, outcome)
}

// Analyze sends uploaded files to the analysis provider.
func (h *DispatchHandler) Analyze(c *gin.Context) {
	form, errForm := c.MultipartForm()
	if errForm != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid multipart form")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		apiutil.Fail(c, http.StatusBadRequest, dispatch.ErrNoFiles.Error())
		return
	}
	if h.analysis.MaxFiles > 0 && len(headers) > h.analysis.MaxFiles {
		apiutil.Fail(c, http.StatusBadRequest, "too many files")
		return
	}

	files := make([]extract.File, 0, len(headers))
	for _, fh := range headers {
		path, errSave := uploads.SaveTemp(fh, h.analysis.MaxFileBytes)
		if errSave != nil {
			// Analyze owns cleanup only for the files it receives.
			for _, saved := range files {
				removeQuietly(saved.Path)
			}
			if errors.Is(errSave, uploads.ErrTooLarge) {
				apiutil.Fail(c, http.StatusBadRequest, "file too large: "+fh.Filename)
				return
			}
			log.WithError(errSave).Error("analyze: store upload failed")
			apiutil.Fail(c, http.StatusInternalServerError, "store upload failed")
			return
		}
		files = append(files, extract.File{
			Name:     fh.Filename,
			Path:     path,
			MimeType: fh.Header.Get("Content-Type"),
			Size:     fh.Size,
		})
	}

	message := c.PostForm("message")
	if strings.TrimSpace(message) == "" {
		message = c.PostForm("prompt")
	}
	outcome, errAnalyze := h.dispatcher.Analyze(c.Request.Context(), apiutil.UserID(c), c.Param("key"), message, files)
	if errAnalyze != nil {
		writeDispatchError(c, errAnalyze)
		return
	}
	writeOutcome(c, outcome)
}

func writeOutcome(c *gin.Context, outcome dispatch.Outcome) {
	apiutil.OK(c, http.StatusOK, gin.H{
		"message": outcome.Message,
		"points":  outcome.Points,
		"cost":    outcome.Cost,
		"usage": gin.H{
			"prompt_tokens":     outcome.Usage.PromptTokens,
			"completion_tokens": outcome.Usage.CompletionTokens,
			"total_tokens":      outcome.Usage.TotalTokens,
		},
	})
}

// writeDispatchError maps dispatch failures onto HTTP responses. Provider
// failures are reported with 200 and success=false.
func writeDispatchError(c *gin.Context, err error) {
	var perr *provider.Error
	switch {
	case errors.As(err, &perr):
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "AI service error: " + perr.Error()})
	case errors.Is(err, dispatch.ErrEmptyMessage),
		errors.Is(err, dispatch.ErrNoFiles),
		errors.Is(err, dispatch.ErrUnreadableFile):
		apiutil.Fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrInsufficientPoints):
		apiutil.Fail(c, http.StatusBadRequest, "insufficient points")
	case errors.Is(err, dispatch.ErrAssistantNotFound), errors.Is(err, dispatch.ErrUserNotFound):
		apiutil.Fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrAssistantInactive),
		errors.Is(err, dispatch.ErrAssistantForbidden),
		errors.Is(err, dispatch.ErrUserDisabled):
		apiutil.Fail(c, http.StatusForbidden, err.Error())
	default:
		log.WithError(err).Error("dispatch failed")
		apiutil.Fail(c, http.StatusInternalServerError, "dispatch failed")
	}
}
