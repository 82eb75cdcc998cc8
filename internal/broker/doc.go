// Package broker defines the capabilities the connector loops need from a
// streaming broker client, and the errors those clients report.
//
// The loops only ever hold a Sender or a Receiver. Concrete clients live in
// subpackages: kafka (segmentio/kafka-go), redisstream (Redis Streams) and
// memory (in-process, for tests and local runs).
package broker
