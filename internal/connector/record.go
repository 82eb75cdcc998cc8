package connector

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/glizzus/kafka-connector/internal/broker"
)

// Map keys recognised when a DataFunc returns a map[string]any.
const (
	KeyField        = "key"
	ValueField      = "value"
	TimestampField  = "timestamp"
	PartitionField  = "partition"
	OnDeliveryField = "on_delivery"
)

var recordFields = []string{KeyField, ValueField, TimestampField, PartitionField, OnDeliveryField}

// conversion is the outcome of interpreting a DataFunc result.
type conversion struct {
	record broker.Record
	// skip is set when there is nothing to produce.
	skip string
	// ignored lists map keys that are not record fields.
	ignored []string
}

func toRecord(data any) (conversion, error) {
	switch d := data.(type) {
	case nil:
		return conversion{skip: "data function returned nothing"}, nil
	case broker.Record:
		if d.IsEmpty() {
			return conversion{skip: "record has no fields set"}, nil
		}
		return conversion{record: d}, nil
	case *broker.Record:
		if d == nil || d.IsEmpty() {
			return conversion{skip: "record has no fields set"}, nil
		}
		return conversion{record: *d}, nil
	case map[string]any:
		return recordFromMap(d)
	default:
		return conversion{skip: fmt.Sprintf("data of type %T is not a record", data)}, nil
	}
}

func recordFromMap(m map[string]any) (conversion, error) {
	var c conversion
	found := false
	for k := range m {
		if slices.Contains(recordFields, k) {
			found = true
		} else {
			c.ignored = append(c.ignored, k)
		}
	}
	slices.Sort(c.ignored)
	if !found {
		c.skip = "data has none of the keys " + fmt.Sprint(recordFields)
		return c, nil
	}

	c.record.Key = m[KeyField]
	c.record.Value = m[ValueField]

	if raw, ok := m[TimestampField]; ok && raw != nil {
		ts, err := toTimestamp(raw)
		if err != nil {
			return conversion{}, err
		}
		c.record.Timestamp = ts
	}
	if raw, ok := m[PartitionField]; ok && raw != nil {
		p, err := toPartition(raw)
		if err != nil {
			return conversion{}, err
		}
		c.record.Partition = &p
	}
	if raw, ok := m[OnDeliveryField]; ok && raw != nil {
		switch fn := raw.(type) {
		case broker.DeliveryFunc:
			c.record.OnDelivery = fn
		case func(broker.DeliveryReport):
			c.record.OnDelivery = fn
		default:
			return conversion{}, &RecordError{Field: OnDeliveryField, Reason: fmt.Sprintf("expected a delivery callback, got %T", raw)}
		}
	}

	if c.record.IsEmpty() {
		c.skip = "record has no fields set"
	}
	return c, nil
}

// toTimestamp accepts a time.Time or an integer of unix milliseconds.
func toTimestamp(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case int64:
		return time.UnixMilli(v), nil
	case int:
		return time.UnixMilli(int64(v)), nil
	default:
		return time.Time{}, &RecordError{Field: TimestampField, Reason: fmt.Sprintf("expected time.Time or unix milliseconds, got %T", raw)}
	}
}

func toPartition(raw any) (int32, error) {
	var n int64
	switch v := raw.(type) {
	case int32:
		return v, nil
	case int:
		n = int64(v)
	case int64:
		n = v
	default:
		return 0, &RecordError{Field: PartitionField, Reason: fmt.Sprintf("expected an integer, got %T", raw)}
	}
	if n < 0 || n > math.MaxInt32 {
		return 0, &RecordError{Field: PartitionField, Reason: fmt.Sprintf("%d is out of range", n)}
	}
	return int32(n), nil
}
