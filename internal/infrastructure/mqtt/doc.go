// Package mqtt provides MQTT client connectivity for Tanklog Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Tanklog uses MQTT as the ingestion transport: field collectors batch
// raw sensor readings and publish them to the broker, where the core
// picks them up, syncs them into history, and publishes the result.
//
//	Collectors → MQTT Broker → Tanklog Core → history store
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to reading batches from every device
//	err = client.Subscribe(mqtt.Topics{}.AllReadings(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a sync result
//	topic := mqtt.Topics{}.SyncResult("tanks", "tank-main")
//	client.Publish(topic, []byte(`{"synced":2,"skipped":0}`), 1, false)
package mqtt
