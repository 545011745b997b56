package orders

const TopicOrderCreated = "order_created"

// Partition key = order_id so every event of one order stays ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
