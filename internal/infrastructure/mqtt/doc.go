// Package mqtt provides MQTT client connectivity for climated.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Concurrent delivery of messages with their retain/QoS/id metadata
//   - Last Will and Testament (LWT) on climated/status/{client_id}
//
// # Architecture
//
// Sensors publish readings to topics matching the configured pattern
// (for example home/house-1/sensors/{deviceId}/reading). The serve command
// subscribes to the pattern's wildcard filter and hands every message to
// the ingest consumer:
//
//	Sensors → MQTT Broker → mqtt.Client → ingest.Consumer → SQLite
//
// Messages are delivered unordered: paho runs each handler call in its own
// goroutine, so a slow insert does not hold up other devices. Ordering per
// device is not needed because readings are keyed by timestamp.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("home/house-1/sensors/+/reading", 1,
//	    func(msg mqtt.Message) error {
//	        _, err := consumer.Handle(ctx, msg.Topic, msg.Payload, ingest.Meta{
//	            Retained: msg.Retained, QoS: msg.QoS, MessageID: msg.ID(),
//	        })
//	        return err
//	    })
package mqtt
