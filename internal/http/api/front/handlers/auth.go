package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/storefront-ai/assistant-hub/internal/config"
	"github.com/storefront-ai/assistant-hub/internal/http/api/apiutil"
	"github.com/storefront-ai/assistant-hub/internal/ledger"
	"github.com/storefront-ai/assistant-hub/internal/models"
	"github.com/storefront-ai/assistant-hub/internal/security"
	"github.com/storefront-ai/assistant-hub/internal/settings"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errAccountExists     = errors.New("username or email already registered")
	errInviteRequired    = errors.New("invite code is required")
	errInviteUnavailable = errors.New("invite code is invalid or already used")
)

// AuthHandler serves registration and login.
type AuthHandler struct {
	db       *gorm.DB
	jwtCfg   config.JWTConfig
	ledger   *ledger.Ledger
	settings *settings.Store
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig, l *ledger.Ledger, st *settings.Store) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg, ledger: l, settings: st}
}

type registerRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	InviteCode string `json:"invite_code"`
}

// Register creates an account, seeds its starting balance, and signs it in.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	username := strings.TrimSpace(body.Username)
	email := strings.ToLower(strings.TrimSpace(body.Email))
	inviteCode := strings.TrimSpace(body.InviteCode)
	if username == "" {
		apiutil.Fail(c, http.StatusBadRequest, "missing username")
		return
	}
	if !strings.Contains(email, "@") {
		apiutil.Fail(c, http.StatusBadRequest, "invalid email")
		return
	}
	if len(body.Password) < security.MinPasswordLength {
		apiutil.Fail(c, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}
	if inviteCode == "" && h.settings.RequireInviteCode() {
		apiutil.Fail(c, http.StatusBadRequest, errInviteRequired.Error())
		return
	}

	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "hash password failed")
		return
	}

	ctx := c.Request.Context()
	now := time.Now().UTC()
	registerPoints := h.settings.RegisterPoints()
	user := models.User{
		Username: username,
		Email:    email,
		Password: hash,
		Role:     models.RoleUser,
		Enabled:  true,
	}
	var seeded *models.PointsHistory
	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if errCount := tx.Model(&models.User{}).
			Where("username = ? OR email = ?", username, email).
			Count(&count).Error; errCount != nil {
			return errCount
		}
		if count > 0 {
			return errAccountExists
		}

		var invite *models.InviteCode
		if inviteCode != "" {
			invite = &models.InviteCode{}
			if errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("code = ?", inviteCode).
				Take(invite).Error; errFind != nil {
				if errors.Is(errFind, gorm.ErrRecordNotFound) {
					return errInviteUnavailable
				}
				return errFind
			}
			if !invite.Usable(now) {
				return errInviteUnavailable
			}
			user.InviteCodeID = &invite.ID
		}

		if errCreate := tx.Create(&user).Error; errCreate != nil {
			return errCreate
		}
		if invite != nil {
			res := tx.Model(&models.InviteCode{}).
				Where("id = ? AND used_by IS NULL", invite.ID).
				Updates(map[string]any{"used_by": user.ID, "used_at": now, "updated_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errInviteUnavailable
			}
		}
		if registerPoints > 0 {
			row, errApply := h.ledger.ApplyTx(ctx, tx, ledger.Entry{
				UserID:      user.ID,
				Delta:       registerPoints,
				Type:        models.PointsTypeRegister,
				Description: "Registration bonus",
			})
			if errApply != nil {
				return errApply
			}
			seeded = &row
			user.Points = row.Balance
		}
		return nil
	})
	if errTx != nil {
		switch {
		case errors.Is(errTx, errAccountExists), errors.Is(errTx, gorm.ErrDuplicatedKey):
			apiutil.Fail(c, http.StatusConflict, errAccountExists.Error())
		case errors.Is(errTx, errInviteUnavailable):
			apiutil.Fail(c, http.StatusBadRequest, errInviteUnavailable.Error())
		default:
			log.WithError(errTx).Error("register: create account failed")
			apiutil.Fail(c, http.StatusInternalServerError, "create account failed")
		}
		return
	}
	if seeded != nil {
		h.ledger.Publish(ctx, *seeded)
	}

	token, expiresAt, errToken := security.IssueUserToken(h.jwtCfg.Secret, user.ID, string(user.Role), h.jwtCfg.Expiry)
	if errToken != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "issue token failed")
		return
	}
	apiutil.OK(c, http.StatusCreated, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"user":       apiutil.UserView(&user),
	})
}

type loginRequest struct {
	Username string `json:"username"` // Username or email.
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

// Login exchanges credentials for a token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	identity := strings.TrimSpace(body.Username)
	if identity == "" || body.Password == "" {
		apiutil.Fail(c, http.StatusBadRequest, "missing username or password")
		return
	}

	ctx := c.Request.Context()
	var user models.User
	if errFind := h.db.WithContext(ctx).
		Where("username = ? OR email = ?", identity, strings.ToLower(identity)).
		Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			apiutil.Fail(c, http.StatusUnauthorized, "invalid credentials")
			return
		}
		apiutil.Fail(c, http.StatusInternalServerError, "query user failed")
		return
	}
	if !security.CheckPassword(user.Password, body.Password) {
		apiutil.Fail(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !user.Enabled {
		apiutil.Fail(c, http.StatusForbidden, "user disabled")
		return
	}
	if user.TOTPSecret != "" {
		code := strings.TrimSpace(body.TOTPCode)
		if code == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "totp code required", "totp_required": true})
			return
		}
		if !security.ValidateTOTP(user.TOTPSecret, code) {
			apiutil.Fail(c, http.StatusUnauthorized, "invalid totp code")
			return
		}
	}

	now := time.Now().UTC()
	if errUpdate := h.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		UpdateColumn("last_login_at", now).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("user_id", user.ID).Warn("login: record last login failed")
	} else {
		user.LastLoginAt = &now
	}

	token, expiresAt, errToken := security.IssueUserToken(h.jwtCfg.Secret, user.ID, string(user.Role), h.jwtCfg.Expiry)
	if errToken != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "issue token failed")
		return
	}
	apiutil.OK(c, http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"user":       apiutil.UserView(&user),
	})
}
