package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vendiko/vendiko-api/services"
)

// ProductController exposes the cached product read paths.
type ProductController struct {
	products *services.ProductService
}

// NewProductController creates the product controller.
func NewProductController(products *services.ProductService) *ProductController {
	return &ProductController{products: products}
}

// GetProduct handles GET /api/v1/products/:id
func (ct *ProductController) GetProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	product, err := ct.products.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": product})
}

// ListVendorProducts handles GET /api/v1/vendors/:id/products
func (ct *ProductController) ListVendorProducts(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	products, err := ct.products.ListVendorProducts(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": products})
}

// VendorInventory handles GET /api/v1/vendors/:id/inventory
func (ct *ProductController) VendorInventory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	summary, err := ct.products.VendorInventory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": summary})
}

// AdminInventory handles GET /api/v1/inventory (admins only)
func (ct *ProductController) AdminInventory(c *gin.Context) {
	summary, err := ct.products.AdminInventory(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": summary})
}

// parseID reads a positive integer path parameter, writing the validation
// envelope on failure.
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid " + name + " parameter",
			},
		})
		return 0, false
	}
	return uint(id), true
}
