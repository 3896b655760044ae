// Package influxdb mirrors accepted climate readings into InfluxDB.
//
// The mirror is optional (influxdb.enabled) and registered as an observer of
// the ingest consumer. Each accepted reading becomes one point in the
// "climate" measurement, tagged by device and room, timestamped with the
// reading's own time at millisecond precision.
//
// # Usage
//
//	mirror, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer mirror.Close()
//	consumer.AddObserver(mirror)
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval). Batch
// errors are delivered to the SetOnError callback; connection and health
// check errors are returned directly.
package influxdb
