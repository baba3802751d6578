package orders

const (
	TopicOrderCreated       = "shop.order.created"
	TopicOrderStatusChanged = "shop.order.status"
)

// Partition key = order_id, so all events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
