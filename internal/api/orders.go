package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"retail-service/internal/models"
	"retail-service/internal/service"

	"github.com/gin-gonic/gin"
)

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// listOrders handles order listing with optional filters
func (h *Handler) listOrders(c *gin.Context) {
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}
	orderID, ok := queryInt(c, "id")
	if !ok {
		return
	}
	clientID, ok := queryInt(c, "client_id")
	if !ok {
		return
	}

	orders, err := h.orderService.List(c.Request.Context(), service.ListOrdersRequest{
		Offset:      int(offset),
		StartDate:   c.Query("start_date"),
		EndDate:     c.Query("end_date"),
		Section:     c.Query("section"),
		OrderID:     orderID,
		OrderStatus: c.Query("order_status"),
		ClientID:    clientID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(orders) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, orders)
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	orderID, err := h.orderService.Create(c.Request.Context(), req, idempotencyKey(c))
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Um ou mais produtos não localizado"})
			return
		}
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Ordem criada com sucesso", "id": orderID})
}

// idempotencyKey scopes the Idempotency-Key header to the calling user
func idempotencyKey(c *gin.Context) string {
	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		return ""
	}
	if user := currentUser(c); user != nil {
		return fmt.Sprintf("user-%d:%s", user.ID, key)
	}
	return key
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := paramID(c, "id")
	if !ok {
		return
	}

	detail, err := h.orderService.GetDetail(c.Request.Context(), orderID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// updateOrder applies status and line item changes in one transaction
func (h *Handler) updateOrder(c *gin.Context) {
	orderID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	res, err := h.orderService.Update(c.Request.Context(), orderID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	if res.Cancelled {
		c.JSON(http.StatusOK, gin.H{"message": "Ordem cancelada com sucesso."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Ordem atualizada com sucesso", "details": res.Detail})
}

// deleteOrder cancels and removes an order; admin only
func (h *Handler) deleteOrder(c *gin.Context) {
	orderID, ok := paramID(c, "id")
	if !ok {
		return
	}

	err := h.orderService.Delete(c.Request.Context(), currentUser(c), orderID)
	if noContentOn(c, err, service.ErrOrderNotFound) {
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Ordem deletada com sucesso"})
}

// orderTimeline lists the recorded events of an order
func (h *Handler) orderTimeline(c *gin.Context) {
	orderID, ok := paramID(c, "id")
	if !ok {
		return
	}

	entries, err := h.orderService.Timeline(c.Request.Context(), orderID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

// includeProduct adds a line item quantity to an open order
func (h *Handler) includeProduct(c *gin.Context) {
	orderID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req models.LineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	if err := h.orderService.IncludeProduct(c.Request.Context(), orderID, req.ProductID, req.Quantity); err != nil {
		h.fail(c, err)
		return
	}
	h.respondDetail(c, orderID, "Produto incluído na ordem")
}

// removeProduct returns quantity units of a product from an open order
func (h *Handler) removeProduct(c *gin.Context) {
	orderID, ok := paramID(c, "id")
	if !ok {
		return
	}
	productID, ok := paramID(c, "product_id")
	if !ok {
		return
	}
	quantity, err := strconv.Atoi(c.Query("quantity"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Quantidade inválida"})
		return
	}

	if err := h.orderService.RemoveProduct(c.Request.Context(), orderID, productID, quantity); err != nil {
		h.fail(c, err)
		return
	}
	h.respondDetail(c, orderID, "Produto removido da ordem")
}

// changeStatus moves an open order to another status
func (h *Handler) changeStatus(c *gin.Context) {
	orderID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	if err := h.orderService.ChangeStatus(c.Request.Context(), orderID, req.Status); err != nil {
		h.fail(c, err)
		return
	}
	h.respondDetail(c, orderID, "Status da ordem atualizado")
}

// cancelOrder returns the order's stock and closes it
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.orderService.Cancel(c.Request.Context(), orderID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ordem cancelada com sucesso."})
}

func (h *Handler) respondDetail(c *gin.Context, orderID int64, message string) {
	detail, err := h.orderService.GetDetail(c.Request.Context(), orderID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "details": detail})
}
