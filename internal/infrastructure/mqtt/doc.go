// Package mqtt provides the broker link for the device server.
//
// This package manages:
//   - The single process-wide connection to the broker
//   - Static credentials and TLS (strict by default)
//   - Subscriptions to the configured topic filters, restored on reconnect
//   - One callback for every inbound message
//   - Publishing with QoS acknowledgement
//
// # Architecture
//
//	Devices ↔ MQTT Broker ↔ Link ↔ (gateway, dispatcher)
//
// Devices publish readings on device/{id}/readings/sendReading and
// receive commands and settings on device/{id}/command/sendCommand and
// device/{id}/settings/changeSettings.
//
// # Failure Model
//
// The initial Connect is not retried: a broker that cannot be reached at
// startup is a fatal error for the process. After the first successful
// connection paho reconnects with backoff and the link re-subscribes.
//
// # Usage
//
//	link := mqtt.New(cfg.MQTT, logger)
//	link.OnMessage(func(topic string, payload []byte) error {
//	    return queue.Publish(topic, payload)
//	})
//	if err := link.Connect(ctx); err != nil {
//	    return err
//	}
//	defer link.Close()
//
//	link.Publish(mqtt.Topics{}.Command(7), payload, 1, false)
package mqtt
