package api

import (
	"errors"
	"net/http"
	"strconv"

	"retail-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// listProducts handles product listing with optional filters
func (h *Handler) listProducts(c *gin.Context) {
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}
	req := service.ListProductsRequest{Offset: int(offset), Category: c.Query("category")}
	if raw := c.Query("sell_value"); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Preço de venda inválido"})
			return
		}
		req.SellValue = v
	}
	if raw := c.Query("available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Parâmetro inválido: available"})
			return
		}
		req.Available = v
	}

	products, err := h.productService.List(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(products) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, products)
}

// createProduct handles product creation; admin only
func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	res, err := h.productService.Create(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": res.Message, "details": res.Detail})
}

// getProduct handles get product by ID
func (h *Handler) getProduct(c *gin.Context) {
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	product, err := h.productService.Get(c.Request.Context(), productID)
	if errors.Is(err, service.ErrProductNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Produto não localizado"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

// updateProduct applies a partial product update; admin only
func (h *Handler) updateProduct(c *gin.Context) {
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	res, err := h.productService.Update(c.Request.Context(), currentUser(c), productID, req)
	if noContentOn(c, err, service.ErrProductNotFound) {
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": res.Message, "details": res.Detail})
}

// deleteProduct removes a product no order refers to; admin only
func (h *Handler) deleteProduct(c *gin.Context) {
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	err := h.productService.Delete(c.Request.Context(), currentUser(c), productID)
	if noContentOn(c, err, service.ErrProductNotFound) {
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Produto deletado com sucesso"})
}
