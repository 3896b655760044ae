// Package ingest turns transport deliveries into stored readings.
//
// A Pipeline runs the fixed sequence for one message:
//
//	decode topic -> normalize payload -> resolve device (Policy)
//	  -> current placement -> dedup key -> insert -> update last seen
//
// Every step before the device policy is pure, so a message that fails
// decoding or validation writes nothing. Failures come back as the typed
// error of the step that raised them: *topic.TopicFormatError,
// *reading.ValidationError, *device.UnknownDeviceError or
// *reading.DuplicateReadingError.
//
// A Consumer wraps a Pipeline for transports. It bounds concurrent calls,
// counts outcomes, logs each rejection with its cause, notifies Observers of
// accepted readings and lets shutdown stop new deliveries and wait for the
// ones in flight.
package ingest
