package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/storefront-ai/assistant-hub/internal/http/api/apiutil"
	"github.com/storefront-ai/assistant-hub/internal/uploads"
)

// UploadHandler stores images referenced from chats and avatars.
type UploadHandler struct {
	store *uploads.Store
}

// NewUploadHandler constructs an UploadHandler.
func NewUploadHandler(st *uploads.Store) *UploadHandler {
	return &UploadHandler{store: st}
}

// Image stores the multipart "file" field and returns its public URL.
func (h *UploadHandler) Image(c *gin.Context) {
	fh, errForm := c.FormFile("file")
	if errForm != nil {
		apiutil.Fail(c, http.StatusBadRequest, "missing file")
		return
	}
	saved, errSave := h.store.SaveImage(fh)
	if errSave != nil {
		switch {
		case errors.Is(errSave, uploads.ErrTooLarge), errors.Is(errSave, uploads.ErrNotImage):
			apiutil.Fail(c, http.StatusBadRequest, errSave.Error())
		default:
			log.WithError(errSave).Error("upload: save image failed")
			apiutil.Fail(c, http.StatusInternalServerError, "save image failed")
		}
		return
	}
	apiutil.OK(c, http.StatusCreated, gin.H{
		"url":       saved.URL,
		"name":      saved.Name,
		"mime_type": saved.MimeType,
		"size":      saved.Size,
	})
}

func removeQuietly(path string) {
	if errRemove := os.Remove(path); errRemove != nil && !errors.Is(errRemove, os.ErrNotExist) {
		log.WithError(errRemove).WithField("path", path).Warn("remove upload failed")
	}
}
