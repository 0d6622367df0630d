package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/thereayou/roomchat/internal/handlers/dto"
	"github.com/thereayou/roomchat/internal/middleware"
	"github.com/thereayou/roomchat/internal/services"
)

type AuthHandler struct {
	auth   *services.AuthService
	groups []string
	log    *slog.Logger
}

// NewAuthHandler accepts registrations only for the given groups.
func NewAuthHandler(authService *services.AuthService, groups []string, log *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, groups: groups, log: log}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(h.groups) > 0 && !lo.Contains(h.groups, req.Group) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown group", "groups": h.groups})
		return
	}

	user, token, err := h.auth.Register(c.Request.Context(), services.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Group:    req.Group,
	})
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		if errors.Is(err, services.ErrPasswordTooLong) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("Registration failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, dto.AuthResponse{User: dto.NewUserResponse(user), Token: token})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.log.Error("Login failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not log in"})
		return
	}

	c.JSON(http.StatusOK, dto.AuthResponse{User: dto.NewUserResponse(user), Token: token})
}

// Logout blacklists the token until it expires.
func (h *AuthHandler) Logout(c *gin.Context) {
	token := c.GetString(middleware.TokenKey)
	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		h.log.Warn("Logout failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not revoke token"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewUserResponse(middleware.CurrentUser(c)))
}
