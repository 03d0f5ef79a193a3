package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vendiko/vendiko-api/middleware"
	"github.com/vendiko/vendiko-api/services"
)

// CheckoutController exposes the checkout orchestrator.
type CheckoutController struct {
	checkout *services.CheckoutService
}

// NewCheckoutController creates the checkout controller.
func NewCheckoutController(checkout *services.CheckoutService) *CheckoutController {
	return &CheckoutController{checkout: checkout}
}

// Checkout handles POST /api/v1/checkout - turns the caller's cart into an
// order split per vendor (customers only)
func (ct *CheckoutController) Checkout(c *gin.Context) {
	principal, err := middleware.GetPrincipal(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	var req services.CheckoutInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	order, err := ct.checkout.Checkout(c.Request.Context(), principal.UserID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"order_id": order.ID,
			"order":    order,
		},
	})
}
