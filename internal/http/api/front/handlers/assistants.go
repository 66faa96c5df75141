package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/storefront-ai/assistant-hub/internal/http/api/apiutil"
	"github.com/storefront-ai/assistant-hub/internal/store"
)

// AssistantHandler serves the assistant catalogue.
type AssistantHandler struct {
	store *store.Store
}

// NewAssistantHandler constructs an AssistantHandler.
func NewAssistantHandler(st *store.Store) *AssistantHandler {
	return &AssistantHandler{store: st}
}

// List returns assistants in catalogue order. Non-admins only see active ones.
func (h *AssistantHandler) List(c *gin.Context) {
	admin := apiutil.IsAdmin(c)
	activeOnly := !admin || strings.EqualFold(strings.TrimSpace(c.Query("status")), "active")
	rows, errList := h.store.ListAssistants(c.Request.Context(), activeOnly)
	if errList != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "list assistants failed")
		return
	}
	category := strings.TrimSpace(c.Query("category"))
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		if category != "" && rows[i].Category != category {
			continue
		}
		out = append(out, apiutil.AssistantView(&rows[i], admin))
	}
	apiutil.OK(c, http.StatusOK, gin.H{"assistants": out})
}

// Get returns one assistant by key.
func (h *AssistantHandler) Get(c *gin.Context) {
	admin := apiutil.IsAdmin(c)
	assistant, errFind := h.store.FindAssistantByKey(c.Request.Context(), c.Param("key"))
	if errFind != nil {
		if errors.Is(errFind, store.ErrAssistantNotFound) {
			apiutil.Fail(c, http.StatusNotFound, "assistant not found")
			return
		}
		apiutil.Fail(c, http.StatusInternalServerError, "query assistant failed")
		return
	}
	if !assistant.IsActive && !admin {
		apiutil.Fail(c, http.StatusNotFound, "assistant not found")
		return
	}
	apiutil.OK(c, http.StatusOK, gin.H{"assistant": apiutil.AssistantView(assistant, admin)})
}
