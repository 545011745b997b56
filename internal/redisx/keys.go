package redisx

import "time"

const (
	// Cache status order: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"
)

var TTLStatusCache = 5 * time.Minute
