package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayLedger/app/models"
	"github.com/ManuelReschke/PayLedger/app/repository"
	"github.com/ManuelReschke/PayLedger/internal/pkg/entitlements"
	"github.com/ManuelReschke/PayLedger/internal/pkg/usercontext"
)

const (
	defaultUserPageSize = 50
	maxUserPageSize     = 200
)

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UserController serves the caller's entitlement and the admin user directory.
type UserController struct {
	users repository.UserRepository
	now   func() time.Time
}

// NewUserController creates a user controller with repository
func NewUserController(users repository.UserRepository) *UserController {
	return &UserController{users: users, now: time.Now}
}

// HandleGetEntitlement returns the access the caller currently holds.
func (uc *UserController) HandleGetEntitlement(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	user, err := uc.users.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	ent := entitlements.FromUser(user)
	now := uc.now()
	return c.JSON(fiber.Map{
		"user_id":       ent.UserID,
		"is_subscribed": ent.IsSubscribed,
		"expires_at":    formatTimePtr(ent.ExpiresAt),
		"active":        ent.IsActive(now),
		"kind":          ent.Kind(now),
	})
}

// HandleAdminListUsers returns a page of users with the total count.
func (uc *UserController) HandleAdminListUsers(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	limit := c.QueryInt("limit", defaultUserPageSize)
	if limit <= 0 || limit > maxUserPageSize {
		limit = defaultUserPageSize
	}

	users, err := uc.users.List(offset, limit)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load users")
	}
	total, err := uc.users.Count()
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count users")
	}
	return c.JSON(fiber.Map{"users": users, "total": total, "offset": offset, "limit": limit})
}

// HandleAdminCreateUser adds a user to the directory.
func (uc *UserController) HandleAdminCreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = models.ROLE_USER
	}
	user := &models.User{
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.ToLower(strings.TrimSpace(req.Email)),
		Role:   role,
		Status: models.STATUS_ACTIVE,
	}
	if err := user.Validate(); err != nil {
		return errorJSON(c, fiber.StatusUnprocessableEntity, "unprocessable_entity", err.Error())
	}

	if err := uc.users.Create(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errorJSON(c, fiber.StatusConflict, "conflict", "Email already registered")
		}
		log.Errorf("[Admin] Create user failed: %v", err)
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create user")
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}
