// Package kafka forwards device readings to a Kafka topic.
//
// It wraps a segmentio/kafka-go Writer keyed by device ID, so every
// reading from one device lands on the same partition and downstream
// consumers see them in arrival order.
//
// # Usage
//
//	producer, err := kafka.NewProducer(cfg.Kafka)
//	if errors.Is(err, kafka.ErrDisabled) {
//	    // forwarding not configured
//	}
//	defer producer.Close()
//
//	err = producer.Forward(ctx, "7", payload)
package kafka
