package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"companion-api/internal/api/middleware"
	"companion-api/internal/models"
	"companion-api/internal/services"
	"companion-api/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type QuoteHandler struct {
	quoteService *services.QuoteService
	validator    *validator.Validate
}

func NewQuoteHandler(quoteService *services.QuoteService) *QuoteHandler {
	return &QuoteHandler{
		quoteService: quoteService,
		validator:    validator.New(),
	}
}

// GetQuote returns a single quote by its numeric id
func (h *QuoteHandler) GetQuote(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Bad quote ID.", nil)
		return
	}

	quote, err := h.quoteService.GetQuote(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrQuoteNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "Quote not found.", nil)
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve quote", err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// CreateQuote adds a quote; the caller becomes its author
func (h *QuoteHandler) CreateQuote(c *gin.Context) {
	var req models.CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	user, ok := middleware.CurrentUser(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}
	addedBy, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	quote, err := h.quoteService.AddQuote(c.Request.Context(), addedBy, &req)
	if err != nil {
		if errors.Is(err, services.ErrQuoteExists) {
			utils.ErrorResponse(c, http.StatusConflict, "Quote already exists", nil)
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to create quote", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Quote created successfully", quote)
}
