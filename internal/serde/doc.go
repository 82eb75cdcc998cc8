// Package serde encodes record keys and values as Avro in the schema
// registry wire format: a zero magic byte, the big-endian schema ID and
// the Avro binary payload.
package serde
