// Package gateway is the outbound face of the device server.
//
// A Gateway publishes messages to devices through the broker link with a
// chosen DeliveryGuarantee, and owns the lifecycle of the link together
// with the inbound dispatch queue: Start brings the queue up before the
// link connects, so no message can arrive before it can be routed.
//
// Every SendMessage first reports "Message sent on topic: {topic}" to an
// Observer. The default BrokerDebugObserver publishes that line, retained,
// on the debug topic; NopObserver turns it off.
//
// # Usage
//
//	gw := gateway.New(link, queue, logger,
//	    gateway.WithObserver(gateway.NewBrokerDebugObserver(link, mqtt.TopicDebug, logger)),
//	)
//	if err := gw.Start(ctx); err != nil {
//	    return err // broker unreachable
//	}
//	defer gw.Stop()
//
//	err := gw.SendJSON(ctx, mqtt.Topics{}.Command(7), cmd.Payload())
package gateway
