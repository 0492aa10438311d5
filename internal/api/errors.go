package api

import (
	"errors"
	"net/http"

	"retail-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const insufficientStockMessage = "Um ou mais produtos não possui estoque sucifiente"

type errorMapping struct {
	target error
	status int
	detail string
}

// errorTable is matched in order with errors.Is
var errorTable = []errorMapping{
	{service.ErrOrderNotFound, http.StatusBadRequest, "Ordem não localizada"},
	{service.ErrClientNotFound, http.StatusBadRequest, "Cliente não localizado"},
	{service.ErrProductNotFound, http.StatusBadRequest, "Um ou mais produto não foi localizado"},
	{service.ErrSectionNotFound, http.StatusBadRequest, "Categoria não localizada"},
	{service.ErrStatusNotFound, http.StatusBadRequest, "Status inválido"},
	{service.ErrOrderClosed, http.StatusBadRequest, "Ordem não pode ser alterada. Verifique se a mesma não está cancelada ou entregue."},
	{service.ErrItemNotInOrder, http.StatusBadRequest, "Um ou mais produto não existe na ordem"},
	{service.ErrInvalidQuantity, http.StatusBadRequest, "Um ou mais produto informado possui quantidade além do disponível na ordem."},
	{service.ErrCancelViaStatus, http.StatusBadRequest, "Utilize o cancelamento da ordem para cancelá-la"},
	{service.ErrInvalidTransition, http.StatusBadRequest, "Transição de status inválida"},
	{service.ErrInactiveUser, http.StatusBadRequest, "Inactive user"},
	{service.ErrRequestInProgress, http.StatusConflict, "Requisição com esta chave de idempotência em andamento"},
	{service.ErrForbidden, http.StatusForbidden, "Operação não permitida"},
	{service.ErrInvalidInput, http.StatusBadRequest, "Requisição inválida"},
}

// fail writes the response for a service error as {"detail": ...}
func (h *Handler) fail(c *gin.Context, err error) {
	var stockErr *service.InsufficientStockError
	var validationErr *service.ValidationError
	var accessErr *service.AccessError

	switch {
	case errors.As(err, &stockErr):
		c.JSON(http.StatusBadRequest, gin.H{"detail": gin.H{
			"message": insufficientStockMessage,
			"details": stockErr.Items,
		}})
		return
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"detail": validationErr.Message})
		return
	case errors.As(err, &accessErr):
		c.JSON(http.StatusForbidden, gin.H{"detail": accessErr.Message})
		return
	case errors.Is(err, service.ErrBadCredentials):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Incorrect username or password"})
		return
	case errors.Is(err, service.ErrUnauthorized):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
		return
	}

	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			c.JSON(m.status, gin.H{"detail": m.detail})
			return
		}
	}

	h.logger.Error("Request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
}

// noContentOn answers 204 when err matches target, reporting whether it did
func noContentOn(c *gin.Context, err, target error) bool {
	if errors.Is(err, target) {
		c.Status(http.StatusNoContent)
		return true
	}
	return false
}

func badBody(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
}
