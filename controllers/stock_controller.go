package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vendiko/vendiko-api/services"
)

// StockRequest is the body of every stock mutation endpoint.
type StockRequest struct {
	Items []services.StockItem `json:"items" binding:"required"`
}

// StockController exposes the reservation engine's five operations. This is
// the remote surface ReservationClient talks to when checkout runs in a
// separate process.
type StockController struct {
	stock *services.StockService
}

// NewStockController creates the stock controller.
func NewStockController(stock *services.StockService) *StockController {
	return &StockController{stock: stock}
}

// Reserve handles POST /api/v1/stock/reserve
func (ct *StockController) Reserve(c *gin.Context) {
	ct.run(c, ct.stock.Reserve)
}

// Release handles POST /api/v1/stock/release
func (ct *StockController) Release(c *gin.Context) {
	ct.run(c, ct.stock.Release)
}

// Ship handles POST /api/v1/stock/ship
func (ct *StockController) Ship(c *gin.Context) {
	ct.run(c, ct.stock.Ship)
}

// Restock handles POST /api/v1/stock/restock
func (ct *StockController) Restock(c *gin.Context) {
	ct.run(c, ct.stock.Restock)
}

// ReturnStock handles POST /api/v1/stock/return
func (ct *StockController) ReturnStock(c *gin.Context) {
	ct.run(c, ct.stock.ReturnStock)
}

func (ct *StockController) run(c *gin.Context, op func(context.Context, []services.StockItem) error) {
	var req StockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	if err := op(c.Request.Context(), req.Items); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"items": req.Items,
		},
	})
}
