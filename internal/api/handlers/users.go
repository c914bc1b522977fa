package handlers

import (
	"errors"
	"net/http"

	"companion-api/internal/api/middleware"
	"companion-api/internal/models"
	"companion-api/internal/services"
	"companion-api/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type UserHandler struct {
	userService *services.UserService
	validator   *validator.Validate
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
		validator:   validator.New(),
	}
}

// CreateUser creates a user and returns its API token
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	resp, err := h.userService.CreateUser(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrUserExists) {
			utils.ErrorResponse(c, http.StatusConflict, "User already exists", nil)
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "User created successfully", resp)
}

// Me returns the authenticated caller
func (h *UserHandler) Me(c *gin.Context) {
	auth, ok := middleware.CurrentUser(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	user, err := h.userService.GetUser(c.Request.Context(), auth.ID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "User not found", nil)
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve user", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "User retrieved successfully", user)
}

// Login binds the token-authenticated caller to the browser session
func (h *UserHandler) Login(c *gin.Context) {
	auth, ok := middleware.CurrentUser(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	sess := middleware.CurrentSession(c)
	if sess == nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Sessions are not enabled", nil)
		return
	}

	sess.Set(middleware.UserIDKey, auth.ID)
	utils.SuccessResponse(c, http.StatusOK, "Logged in", auth)
}

// Logout empties the session, which clears its cookie
func (h *UserHandler) Logout(c *gin.Context) {
	if sess := middleware.CurrentSession(c); sess != nil {
		sess.Clear()
	}
	utils.SuccessResponse(c, http.StatusOK, "Logged out", nil)
}
