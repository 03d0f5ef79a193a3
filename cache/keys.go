package cache

import (
	"fmt"
	"time"
)

// TTL tiers. Hot lists and search results turn over quickly, single-entity
// reads are near-static, computed aggregates sit in between.
const (
	TTLHotList   = 60 * time.Second
	TTLEntity    = time.Hour
	TTLAggregate = 10 * time.Minute
)

// ProductKey is the single-entity cache key for a product row.
func ProductKey(productID uint) string {
	return fmt.Sprintf("product:%d", productID)
}

// VendorProductsKey caches a vendor's product listing.
func VendorProductsKey(vendorID uint) string {
	return fmt.Sprintf("products:vendor:%d", vendorID)
}

// VendorInventoryKey caches a vendor's inventory dashboard aggregate.
func VendorInventoryKey(vendorID uint) string {
	return fmt.Sprintf("inventory:vendor:%d", vendorID)
}

// AdminInventoryKey caches the platform-wide inventory aggregate.
func AdminInventoryKey() string {
	return "inventory:admin"
}

// UserCartKey caches a user's cart/order snapshot.
func UserCartKey(userID uint) string {
	return fmt.Sprintf("cart:user:%d", userID)
}

// AgentTasksKey caches a delivery agent's computed task list.
func AgentTasksKey(agentID uint) string {
	return fmt.Sprintf("tasks:agent:%d", agentID)
}
