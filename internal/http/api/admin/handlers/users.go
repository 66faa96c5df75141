package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	dbutil "github.com/storefront-ai/assistant-hub/internal/db"
	"github.com/storefront-ai/assistant-hub/internal/http/api/apiutil"
	"github.com/storefront-ai/assistant-hub/internal/ledger"
	"github.com/storefront-ai/assistant-hub/internal/models"
	"github.com/storefront-ai/assistant-hub/internal/security"
	"gorm.io/gorm"
)

var errUserConflict = errors.New("username or email already in use")

// maxPointsAdjustment bounds a single admin grant or starting balance.
const maxPointsAdjustment int64 = 1_000_000_000

// UserHandler manages user account endpoints.
type UserHandler struct {
	db     *gorm.DB
	ledger *ledger.Ledger
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB, l *ledger.Ledger) *UserHandler {
	return &UserHandler{db: db, ledger: l}
}

// createUserRequest defines the request body for user creation.
type createUserRequest struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
	Points   int64       `json:"points"`
}

// Create creates a new user account with an optional starting balance.
func (h *UserHandler) Create(c *gin.Context) {
	var body createUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" {
		apiutil.Fail(c, http.StatusBadRequest, "missing username")
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if !strings.Contains(email, "@") {
		apiutil.Fail(c, http.StatusBadRequest, "invalid email")
		return
	}
	if len(body.Password) < security.MinPasswordLength {
		apiutil.Fail(c, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}
	role := body.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		apiutil.Fail(c, http.StatusBadRequest, "invalid role")
		return
	}
	if body.Points < 0 {
		apiutil.Fail(c, http.StatusBadRequest, "points must not be negative")
		return
	}
	if body.Points > maxPointsAdjustment {
		apiutil.Fail(c, http.StatusBadRequest, "points out of range")
		return
	}

	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "hash password failed")
		return
	}

	ctx := c.Request.Context()
	user := models.User{
		Username: username,
		Email:    email,
		Password: hash,
		Role:     role,
		Enabled:  true,
	}
	var seeded *models.PointsHistory
	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errUnique := ensureUnique(tx, 0, username, email); errUnique != nil {
			return errUnique
		}
		if errCreate := tx.Create(&user).Error; errCreate != nil {
			return errCreate
		}
		if body.Points == 0 {
			return nil
		}
		row, errApply := h.ledger.ApplyTx(ctx, tx, ledger.Entry{
			UserID:      user.ID,
			Delta:       body.Points,
			Type:        models.PointsTypeAdminGrant,
			Description: "Starting balance",
		})
		if errApply != nil {
			return errApply
		}
		seeded = &row
		user.Points = row.Balance
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, errUserConflict) || errors.Is(errTx, gorm.ErrDuplicatedKey) {
			apiutil.Fail(c, http.StatusConflict, errUserConflict.Error())
			return
		}
		apiutil.Fail(c, http.StatusInternalServerError, "create user failed")
		return
	}
	if seeded != nil {
		h.ledger.Publish(ctx, *seeded)
	}
	apiutil.OK(c, http.StatusCreated, gin.H{"user": apiutil.UserView(&user)})
}

// List returns users with optional filters.
func (h *UserHandler) List(c *gin.Context) {
	searchQ := strings.TrimSpace(c.Query("search"))
	roleQ := strings.TrimSpace(c.Query("role"))
	page, size := apiutil.Page(c)

	q := h.db.WithContext(c.Request.Context()).Model(&models.User{})
	if searchQ != "" {
		searchPattern := "%" + searchQ + "%"
		ciPattern := dbutil.ContainsPattern(h.db, searchQ)
		q = q.Where(
			dbutil.CaseInsensitiveLikeExpr(h.db, "username")+" OR "+
				dbutil.CaseInsensitiveLikeExpr(h.db, "email")+" OR CAST(id AS TEXT) LIKE ?",
			ciPattern,
			ciPattern,
			searchPattern,
		)
	}
	if roleQ != "" {
		q = q.Where("role = ?", roleQ)
	}

	var total int64
	if errCount := q.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "count users failed")
		return
	}
	var rows []models.User
	if errFind := q.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&rows).Error; errFind != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "list users failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, apiutil.UserView(&rows[i]))
	}
	apiutil.OK(c, http.StatusOK, gin.H{"users": out, "total": total, "page": page, "page_size": size})
}

// Get returns a user by ID.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Take(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			apiutil.Fail(c, http.StatusNotFound, "not found")
			return
		}
		apiutil.Fail(c, http.StatusInternalServerError, "query failed")
		return
	}
	apiutil.OK(c, http.StatusOK, gin.H{"user": apiutil.UserView(&user)})
}

// updateUserRequest defines the request body for user updates.
type updateUserRequest struct {
	Username *string      `json:"username"`
	Email    *string      `json:"email"`
	Role     *models.Role `json:"role"`
	Enabled  *bool        `json:"enabled"`
}

// Update modifies a user account.
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}
	var body updateUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	self := id == apiutil.UserID(c)

	updates := map[string]any{"updated_at": time.Now().UTC()}
	var username, email string
	if body.Username != nil {
		username = strings.TrimSpace(*body.Username)
		if username != "" {
			updates["username"] = username
		}
	}
	if body.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*body.Email))
		if !strings.Contains(email, "@") {
			apiutil.Fail(c, http.StatusBadRequest, "invalid email")
			return
		}
		updates["email"] = email
	}
	if body.Role != nil {
		if !body.Role.Valid() {
			apiutil.Fail(c, http.StatusBadRequest, "invalid role")
			return
		}
		if self && *body.Role != models.RoleAdmin {
			apiutil.Fail(c, http.StatusBadRequest, "cannot remove your own admin role")
			return
		}
		updates["role"] = *body.Role
	}
	if body.Enabled != nil {
		if self && !*body.Enabled {
			apiutil.Fail(c, http.StatusBadRequest, "cannot disable yourself")
			return
		}
		updates["enabled"] = *body.Enabled
	}

	var rowsAffected int64
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errUnique := ensureUnique(tx, id, username, email); errUnique != nil {
			return errUnique
		}
		res := tx.Model(&models.User{}).Where("id = ?", id).Updates(updates)
		rowsAffected = res.RowsAffected
		return res.Error
	})
	if errTx != nil {
		if errors.Is(errTx, errUserConflict) || errors.Is(errTx, gorm.ErrDuplicatedKey) {
			apiutil.Fail(c, http.StatusConflict, errUserConflict.Error())
			return
		}
		apiutil.Fail(c, http.StatusInternalServerError, "update failed")
		return
	}
	if rowsAffected == 0 {
		apiutil.Fail(c, http.StatusNotFound, "not found")
		return
	}
	apiutil.OK(c, http.StatusOK, nil)
}

// Disable blocks a user from signing in and dispatching.
func (h *UserHandler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

// Enable reactivates a user account.
func (h *UserHandler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *UserHandler) setEnabled(c *gin.Context, enabled bool) {
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}
	if !enabled && id == apiutil.UserID(c) {
		apiutil.Fail(c, http.StatusBadRequest, "cannot disable yourself")
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"enabled": enabled, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "update failed")
		return
	}
	if res.RowsAffected == 0 {
		apiutil.Fail(c, http.StatusNotFound, "not found")
		return
	}
	apiutil.OK(c, http.StatusOK, gin.H{"enabled": enabled})
}

// changePasswordRequest defines the request body for password changes.
type changePasswordRequest struct {
	Password string `json:"password"`
}

// ChangePassword updates a user's password.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}
	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if len(body.Password) < security.MinPasswordLength {
		apiutil.Fail(c, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}
	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "hash password failed")
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"password": hash, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "change password failed")
		return
	}
	if res.RowsAffected == 0 {
		apiutil.Fail(c, http.StatusNotFound, "not found")
		return
	}
	apiutil.OK(c, http.StatusOK, nil)
}

// grantPointsRequest adjusts a balance; negative points deduct.
type grantPointsRequest struct {
	Points      int64  `json:"points"`
	Description string `json:"description"`
}

// GrantPoints adds or deducts points on a user's balance.
func (h *UserHandler) GrantPoints(c *gin.Context) {
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}
	var body grantPointsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		apiutil.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Points == 0 {
		apiutil.Fail(c, http.StatusBadRequest, "points must not be zero")
		return
	}
	if body.Points > maxPointsAdjustment || body.Points < -maxPointsAdjustment {
		apiutil.Fail(c, http.StatusBadRequest, "points out of range")
		return
	}
	description := strings.TrimSpace(body.Description)
	if description == "" {
		description = "Adjusted by admin #" + strconv.FormatUint(apiutil.UserID(c), 10)
	}
	balance, errGrant := h.ledger.Grant(c.Request.Context(), id, body.Points, description)
	if errGrant != nil {
		switch {
		case errors.Is(errGrant, ledger.ErrUserNotFound):
			apiutil.Fail(c, http.StatusNotFound, "not found")
		case errors.Is(errGrant, ledger.ErrInsufficientPoints):
			apiutil.Fail(c, http.StatusBadRequest, "deduction exceeds balance")
		case errors.Is(errGrant, ledger.ErrBalanceOverflow):
			apiutil.Fail(c, http.StatusBadRequest, "points out of range")
		default:
			apiutil.Fail(c, http.StatusInternalServerError, "adjust points failed")
		}
		return
	}
	apiutil.OK(c, http.StatusOK, gin.H{"points": balance})
}

// History lists a user's ledger entries.
func (h *UserHandler) History(c *gin.Context) {
	id, ok := apiutil.ParseID(c, "id")
	if !ok {
		return
	}
	page, size := apiutil.Page(c)
	result, errHistory := h.ledger.History(c.Request.Context(), id, page, size)
	if errHistory != nil {
		apiutil.Fail(c, http.StatusInternalServerError, "list history failed")
		return
	}
	items := make([]gin.H, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, apiutil.HistoryView(&result.Items[i]))
	}
	apiutil.OK(c, http.StatusOK, gin.H{
		"items":     items,
		"total":     result.Total,
		"page":      result.Page,
		"page_size": result.PageSize,
	})
}

// ensureUnique rejects a username or email held by a user other than exceptID.
func ensureUnique(tx *gorm.DB, exceptID uint64, username, email string) error {
	if username == "" && email == "" {
		return nil
	}
	q := tx.Model(&models.User{})
	switch {
	case username != "" && email != "":
		q = q.Where("username = ? OR email = ?", username, email)
	case username != "":
		q = q.Where("username = ?", username)
	default:
		q = q.Where("email = ?", email)
	}
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	var count int64
	if errCount := q.Count(&count).Error; errCount != nil {
		return errCount
	}
	if count > 0 {
		return errUserConflict
	}
	return nil
}
