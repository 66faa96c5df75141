package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"github.com/storefront-ai/assistant-hub/internal/http/api/apiutil"
	"github.com/storefront-ai/assistant-hub/internal/models"
	"gorm.io/gorm"
)

// defaultTemperature applies when a new assistant omits temperature.
const defaultTemperature = 0.7

const maxKeyLength = 128

var errKeyTaken = errors.New("assistant key already exists")

// AssistantHandler manages assistant configuration.
type AssistantHandler struct {
	db *gorm.DB
}

// NewAssistantHandler constructs an AssistantHandler.
func NewAssistantHandler(db *gorm.DB) *AssistantHandler {
	return &AssistantHandler{db: db}
}

// assistantConfigRequest is the vendor binding in create and update bodies.
type assistantConfigRequest struct {
	ModelType    *models.ModelType `json:"model_type"`
	APIKey       *string           `json:"api_key"`
	APIURL       *string           `json:"api_url"`
	BotID        *string           `json:"bot_id"`
	SystemPrompt *string           `json:"system_prompt"`
	Model        *string           `json:"model"`
	Temperature  *float64          `json:"temperature"`
	MaxTokens    *int              `json:"max_tokens"`
	Extra        json.RawMessage   `json:"extra"`
}

// assistantRequest is shared by Create and Update; nil fields are left unchanged.
type assistantRequest struct {
	Key         *string                 `json:"key"`
	Name        *string                 `json:"name"`
	Description *string                 `json:"description"`
	Avatar      *string                 `json:"avatar"`
	Category    *string                 `json:"category"`
	SortOrder   *int                    `json:"sort_order"`
	Config      *assistantConfigRequest `json:"config"`
	PointsCost  *int64                  `json:"points_cost"`
	IsActive    *bool                   `json:"is_active"`
}

// Create adds an assistant. The key defaults to a slug of the name.
func (h *AssistantHandler) Create(c *gin.Context) {
	var body assistantRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	assistant := models.Assistant{
		Config:   models.AssistantConfig{ModelType: models.ModelTypeCoze, Temperature: defaultTemperature},
		IsActive: true,
	}
	if body.Name == nil || strings.TrimSpace(*body.Name) == "" {
		apiutil.Fail(c, http.StatusBadRequest, "missing name")
		return
	}
	if body.Key == nil || strings.TrimSpace(*body.Key) == "" {
		generated := slug.Make(*body.Name)
		body.Key = &generated
	}
	if errApply := applyAssistantRequest(&assistant, &body); errApply != nil {
		apiutil.Fail(c, http.StatusBadRequest, errApply.Error())
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errUnique := ensureKeyFree(tx, 0, assistant.Key); errUnique != nil {
			return errUnique
		}
		return tx.Create(&assistant).Error
	})
	if errTx != nil {
		if errors.Is(errTx, errKeyTaken) {
			apiutil.Fail(c, http.StatusConflict, errKeyTaken.Error())
			return
		}
		apiutil.Fail(c, http.StatusInternalServerError, "create assistant failed")
		return
	}
	apiutil.OK(c, http.StatusCreated, gin.H{"assistant": apiutil.AssistantView(&assistant, true)})
}

// Update modifies an assistant by ID.
func (h *AssistantHandler) Update(c *gin.Context) {
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}
	var body assistantRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}

	var assistant models.Assistant
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Take(&assistant, id).Error; errFind != nil {
			return errFind
		}
		if errApply := applyAssistantRequest(&assistant, &body); errApply != nil {
			return badRequest{errApply}
		}
		if errUnique := ensureKeyFree(tx, assistant.ID, assistant.Key); errUnique != nil {
			return errUnique
		}
		assistant.UpdatedAt = time.Now().UTC()
		return tx.Save(&assistant).Error
	})
	if errTx != nil {
		var bad badRequest
		switch {
		case errors.Is(errTx, gorm.ErrRecordNotFound):
			apiutil.Fail(c, http.StatusNotFound, "not found")
		case errors.As(errTx, &bad):
			apiutil.Fail(c, http.StatusBadRequest, bad.Error())
		case errors.Is(errTx, errKeyTaken):
			apiutil.Fail(c, http.StatusConflict, errKeyTaken.Error())
		default:
			apiutil.Fail(c, http.StatusInternalServerError, "update assistant failed")
		}
		return
	}
	apiutil.OK(c, http.StatusOK, gin.H{"assistant": apiutil.AssistantView(&assistant, true)})
}

// Delete removes an assistant and its per-user overrides. Ledger rows keep
// their assistant_id.
func (h *AssistantHandler) Delete(c *gin.Context) {
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}
	var deleted int64
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errDelPerms := tx.Where("assistant_id = ?", id).Delete(&models.UserAssistantPermission{}).Error; errDelPerms != nil {
			return errDelPerms
		}
		res := tx.Delete(&models.Assistant{}, id)
		deleted = res.RowsAffected
		return res.Error
	})
	if errTx != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "delete failed")
		return
	}
	if deleted == 0 {
		apiutil.Fail(c, http.StatusNotFound, "not found")
		return
	}
	c.Status(http.StatusNoContent)
}

// badRequest marks validation failures raised inside a transaction.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }

func applyAssistantRequest(a *models.Assistant, body *assistantRequest) error {
	if body.Key != nil {
		key := strings.TrimSpace(*body.Key)
		if key == "" || len(key) > maxKeyLength || key != slug.Make(key) {
			return errors.New("key must be a lowercase slug")
		}
		a.Key = key
	}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			return errors.New("missing name")
		}
		a.Name = name
	}
	if body.Description != nil {
		a.Description = strings.TrimSpace(*body.Description)
	}
	if body.Avatar != nil {
		a.Avatar = strings.TrimSpace(*body.Avatar)
	}
	if body.Category != nil {
		a.Category = strings.TrimSpace(*body.Category)
	}
	if body.SortOrder != nil {
		a.SortOrder = *body.SortOrder
	}
	if body.PointsCost != nil {
		if *body.PointsCost < 0 {
			return errors.New("points_cost must not be negative")
		}
		a.PointsCost = *body.PointsCost
	}
	if body.IsActive != nil {
		a.IsActive = *body.IsActive
	}
	if cfg := body.Config; cfg != nil {
		if cfg.ModelType != nil {
			a.Config.ModelType = *cfg.ModelType
		}
		if cfg.APIKey != nil {
			a.Config.APIKey = strings.TrimSpace(*cfg.APIKey)
		}
		if cfg.APIURL != nil {
			a.Config.APIURL = strings.TrimSpace(*cfg.APIURL)
		}
		if cfg.BotID != nil {
			a.Config.BotID = strings.TrimSpace(*cfg.BotID)
		}
		if cfg.SystemPrompt != nil {
			a.Config.SystemPrompt = *cfg.SystemPrompt
		}
		if cfg.Model != nil {
			a.Config.Model = strings.TrimSpace(*cfg.Model)
		}
		if cfg.Temperature != nil {
			if *cfg.Temperature < 0 || *cfg.Temperature > 2 {
				return errors.New("temperature must be between 0 and 2")
			}
			a.Config.Temperature = *cfg.Temperature
		}
		if cfg.MaxTokens != nil {
			if *cfg.MaxTokens < 0 {
				return errors.New("max_tokens must not be negative")
			}
			a.Config.MaxTokens = *cfg.MaxTokens
		}
		if len(cfg.Extra) > 0 {
			if !json.Valid(cfg.Extra) {
				return errors.New("extra must be valid json")
			}
			a.Config.Extra = models.JSONValue(cfg.Extra)
		}
	}
	if !a.Config.ModelType.Valid() {
		return errors.New("model_type must be coze or deepseek")
	}
	if a.Config.ModelType == models.ModelTypeCoze && a.Config.BotID == "" {
		return errors.New("bot_id is required for coze assistants")
	}
	return nil
}

func ensureKeyFree(tx *gorm.DB, exceptID uint64, key string) error {
	q := tx.Model(&models.Assistant{}).Where("key = ?", key)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	var count int64
	if errCount := q.Count(&count).Error; errCount != nil {
		return errCount
	}
	if count > 0 {
		return errKeyTaken
	}
	return nil
}
