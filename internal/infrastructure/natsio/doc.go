// Package natsio is an optional second transport for sensor readings.
//
// Readings published on NATS subjects derived from the MQTT topic pattern
// (home.house-1.sensors.temp001.reading for home/house-1/sensors/temp001/reading)
// are translated back to topics and handed to the same ingest consumer as
// MQTT deliveries.
//
// NATS delivers messages for one subscription on a single goroutine; the
// client fans them out to a fixed pool of workers so handling runs
// concurrently, as with MQTT.
package natsio
