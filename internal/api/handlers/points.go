package handlers

import (
	"net/http"
	"strconv"

	"companion-api/internal/models"
	"companion-api/internal/services"
	"companion-api/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type PointsHandler struct {
	userService *services.UserService
	validator   *validator.Validate
}

func NewPointsHandler(userService *services.UserService) *PointsHandler {
	return &PointsHandler{
		userService: userService,
		validator:   validator.New(),
	}
}

func parseTwitchID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("twitch_id"), 10, 64)
	if err != nil || id <= 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Bad Twitch ID.", nil)
		return 0, false
	}
	return id, true
}

// GetPoints returns a viewer's balance
func (h *PointsHandler) GetPoints(c *gin.Context) {
	twitchID, ok := parseTwitchID(c)
	if !ok {
		return
	}

	points, err := h.userService.GetPoints(c.Request.Context(), twitchID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve points", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Points retrieved successfully", points)
}

// AddPoints credits or debits a viewer
func (h *PointsHandler) AddPoints(c *gin.Context) {
	twitchID, ok := parseTwitchID(c)
	if !ok {
		return
	}

	var req models.AddPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	points, err := h.userService.AddPoints(c.Request.Context(), twitchID, req.Amount)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to update points", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Points updated successfully", points)
}
