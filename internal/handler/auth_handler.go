package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AnjithKrishna7/exam-seat-allocator/internal/dto"
	"github.com/AnjithKrishna7/exam-seat-allocator/internal/service"
	appErrors "github.com/AnjithKrishna7/exam-seat-allocator/pkg/errors"
	"github.com/AnjithKrishna7/exam-seat-allocator/pkg/response"
)

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Login exchanges admin credentials for an access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	res, err := h.service.Login(req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}
