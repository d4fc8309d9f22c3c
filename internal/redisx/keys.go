package redisx

import "time"

// Key namespaces are prefixed by the owning service so that services sharing one
// Redis never collide.
const (
	// Cart hash: cart:{user_id} -> field {item_id} = {"quantity":..,"price":..,"productName":..}
	KeyCart = "cart:%s"

	// Cache-aside namespaces, see internal/cache.Keys.
	NamespaceProduct  = "catalog:product"
	NamespaceCategory = "catalog:category"
	NamespaceVariant  = "catalog:variant"
)

var TTLCart = 7 * 24 * time.Hour
