package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vendiko/vendiko-api/services"
)

// respondError maps a service failure to its HTTP status and the standard
// error envelope. The code is the stable machine-checkable kind; the message
// is whatever the service attached after it.
func respondError(c *gin.Context, err error) {
	code := services.Code(err)
	c.JSON(statusFor(err), gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": messageFor(err, code),
		},
	})
}

// respondValidation reports a malformed request body.
func respondValidation(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, services.ErrInsufficientWarehouseStock),
		errors.Is(err, services.ErrCancellationBlocked):
		return http.StatusConflict
	case errors.Is(err, services.ErrDownstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFor strips the leading code from the error text so the envelope
// does not repeat it.
func messageFor(err error, code string) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, code+": "); ok {
		return rest
	}
	if code == "INTERNAL_ERROR" {
		return "Something went wrong"
	}
	return msg
}
