package api

import (
	"net/http"

	"retail-service/internal/service"

	"github.com/gin-gonic/gin"
)

// listClients handles client listing filtered by name or email
func (h *Handler) listClients(c *gin.Context) {
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}

	clients, err := h.clientService.List(c.Request.Context(), int(offset), c.Query("filter"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(clients) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, clients)
}

// createClient handles client creation
func (h *Handler) createClient(c *gin.Context) {
	var req service.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	client, err := h.clientService.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cliente cadastrado com sucesso", "id": client.ID})
}

// getClient handles get client by ID
func (h *Handler) getClient(c *gin.Context) {
	clientID, ok := paramID(c, "id")
	if !ok {
		return
	}

	client, err := h.clientService.Get(c.Request.Context(), clientID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, client)
}

// updateClient applies a partial client update; admin only
func (h *Handler) updateClient(c *gin.Context) {
	clientID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	client, err := h.clientService.Update(c.Request.Context(), currentUser(c), clientID, req)
	if noContentOn(c, err, service.ErrClientNotFound) {
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cliente atualizado com sucesso", "detail": client})
}

// deleteClient removes a client without orders; admin only
func (h *Handler) deleteClient(c *gin.Context) {
	clientID, ok := paramID(c, "id")
	if !ok {
		return
	}

	err := h.clientService.Delete(c.Request.Context(), currentUser(c), clientID)
	if noContentOn(c, err, service.ErrClientNotFound) {
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cliente deletado com sucesso"})
}
