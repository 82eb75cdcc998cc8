package kafka

import (
	"slices"

	"github.com/segmentio/kafka-go"
)

// partitionBalancer sends a record to the partition it asked for, when
// the topic has it, and leaves every other record to fallback.
type partitionBalancer struct {
	fallback kafka.Balancer
}

func newPartitionBalancer() *partitionBalancer {
	return &partitionBalancer{fallback: &kafka.Hash{}}
}

func (b *partitionBalancer) Balance(msg kafka.Message, partitions ...int) int {
	if d, ok := msg.WriterData.(*delivery); ok && d.partition != nil {
		if p := int(*d.partition); slices.Contains(partitions, p) {
			return p
		}
	}
	return b.fallback.Balance(msg, partitions...)
}

var _ kafka.Balancer = (*partitionBalancer)(nil)
