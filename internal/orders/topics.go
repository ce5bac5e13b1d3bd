package orders

const (
	TopicOrderCreated   = "checkout.order.created"
	TopicOrderCancelled = "checkout.order.cancelled"
)

// PartitionKey keys events by order id so all events for one order land on
// the same partition and keep their relative order.
func PartitionKey(orderID string) []byte {
	return []byte(orderID)
}
