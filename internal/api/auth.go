package api

import (
	"net/http"
	"strings"

	"retail-service/internal/models"
	"retail-service/internal/service"

	"github.com/gin-gonic/gin"
)

const userKey = "user"

type loginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireAuth resolves the bearer token into the calling user
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.authService.Authenticate(c.Request.Context(), bearerToken(c))
		if err != nil {
			h.fail(c, err)
			c.Abort()
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// optionalAuth sets the calling user when a valid token is present
func (h *Handler) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if user, err := h.authService.Authenticate(c.Request.Context(), token); err == nil {
				c.Set(userKey, user)
			}
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

// register handles user registration
func (h *Handler) register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		badBody(c, err)
		return
	}

	user, err := h.authService.Register(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Usuário cadastrado com sucesso", "id": user.ID})
}

// login exchanges username and password for a bearer token
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, service.ErrBadCredentials)
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

// refreshToken issues a new token to the calling user
func (h *Handler) refreshToken(c *gin.Context) {
	token, err := h.authService.Refresh(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

// me returns the calling user
func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}
