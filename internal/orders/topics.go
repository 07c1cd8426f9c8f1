package orders

const TopicNotifications = "booking.notifications"

// Partition key = order_id so every event of one order stays in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
