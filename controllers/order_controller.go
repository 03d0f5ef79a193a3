package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vendiko/vendiko-api/middleware"
	"github.com/vendiko/vendiko-api/services"
)

// OrderController exposes the suborder state machine, whole-order
// cancellation and the payment settlement callback.
type OrderController struct {
	suborders *services.SuborderService
}

// NewOrderController creates the order controller.
func NewOrderController(suborders *services.SuborderService) *OrderController {
	return &OrderController{suborders: suborders}
}

// AssignDeliveryRequest is the body of the delivery assignment endpoint.
type AssignDeliveryRequest struct {
	DeliveryBoyID uint `json:"delivery_boy_id" binding:"required"`
}

// Pack handles PATCH /api/v1/suborders/:id/pack (vendors)
func (ct *OrderController) Pack(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	suborder, err := ct.suborders.Pack(c.Request.Context(), principal, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": suborder})
}

// AssignDelivery handles POST /api/v1/suborders/:id/assign (vendors/admins)
func (ct *OrderController) AssignDelivery(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req AssignDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	suborder, err := ct.suborders.AssignDelivery(c.Request.Context(), principal, id, req.DeliveryBoyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": suborder})
}

// CancelSuborder handles POST /api/v1/suborders/:id/cancel
func (ct *OrderController) CancelSuborder(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	suborder, err := ct.suborders.CancelSuborder(c.Request.Context(), principal, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": suborder})
}

// CancelOrder handles POST /api/v1/orders/:id/cancel
func (ct *OrderController) CancelOrder(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := ct.suborders.CancelOrder(c.Request.Context(), principal, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": order})
}

// SettlePayment handles POST /api/v1/orders/:id/payment - the payment
// collaborator's settlement callback. The signature was already verified
// upstream; the core only reacts to the signal.
func (ct *OrderController) SettlePayment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := ct.suborders.SettlePayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": order})
}

// principalOrAbort extracts the verified principal or writes the
// unauthorized envelope.
func principalOrAbort(c *gin.Context) (services.Principal, bool) {
	principal, err := middleware.GetPrincipal(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return services.Principal{}, false
	}
	return principal, true
}
