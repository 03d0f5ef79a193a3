package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vendiko/vendiko-api/services"
)

// DeliveryController exposes the courier task lifecycle.
type DeliveryController struct {
	delivery *services.DeliveryService
}

// NewDeliveryController creates the delivery controller.
func NewDeliveryController(delivery *services.DeliveryService) *DeliveryController {
	return &DeliveryController{delivery: delivery}
}

// UpdateStatusRequest is the body of the assignment status endpoint.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ScheduleReturnPickupRequest is the body of the return pickup endpoint.
type ScheduleReturnPickupRequest struct {
	DeliveryBoyID uint `json:"delivery_boy_id" binding:"required"`
}

// ListTasks handles GET /api/v1/delivery/tasks (delivery agents)
func (ct *DeliveryController) ListTasks(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	tasks, err := ct.delivery.ListTasks(c.Request.Context(), principal.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": tasks})
}

// UpdateStatus handles PATCH /api/v1/delivery/:id/status
func (ct *DeliveryController) UpdateStatus(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	assignment, err := ct.delivery.UpdateStatus(c.Request.Context(), principal, id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": assignment})
}

// ApproveReturn handles POST /api/v1/order-items/:id/return (vendors/admins)
func (ct *DeliveryController) ApproveReturn(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	item, err := ct.delivery.ApproveReturn(c.Request.Context(), principal, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": item})
}

// ScheduleReturnPickup handles POST /api/v1/orders/:id/return-pickup
func (ct *DeliveryController) ScheduleReturnPickup(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req ScheduleReturnPickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	assignment, err := ct.delivery.ScheduleReturnPickup(c.Request.Context(), principal, id, req.DeliveryBoyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": assignment})
}

// DepositCash handles POST /api/v1/delivery/:id/deposit
func (ct *DeliveryController) DepositCash(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	assignment, err := ct.delivery.DepositCash(c.Request.Context(), principal, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": assignment})
}
