package kafka

import (
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

type recordState uint8

const (
	recordPending recordState = iota
	recordDone
	recordRejected
)

type trackedRecord struct {
	rec   *kgo.Record
	state recordState
}

type topicPartition struct {
	topic     string
	partition int32
}

// offsetTracker decides which offset is safe to commit on each partition. A
// partition only advances over a contiguous run of finished records, so a
// record still in flight or rejected holds back every later offset.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[topicPartition][]trackedRecord
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[topicPartition][]trackedRecord)}
}

// track registers a polled record. Records of a partition must be tracked in
// offset order.
func (t *offsetTracker) track(r *kgo.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tp := topicPartition{topic: r.Topic, partition: r.Partition}
	t.partitions[tp] = append(t.partitions[tp], trackedRecord{rec: r})
}

// done marks r finished and returns the highest record that can now be
// committed on its partition, or nil when the partition cannot advance.
func (t *offsetTracker) done(r *kgo.Record) *kgo.Record {
	return t.settle(r, recordDone)
}

// reject pins its partition at r. Nothing at or after r is committed until
// the partition is reassigned.
func (t *offsetTracker) reject(r *kgo.Record) {
	t.settle(r, recordRejected)
}

func (t *offsetTracker) settle(r *kgo.Record, state recordState) *kgo.Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	tp := topicPartition{topic: r.Topic, partition: r.Partition}
	queue := t.partitions[tp]

	for i := range queue {
		if queue[i].rec.Offset == r.Offset {
			queue[i].state = state
			break
		}
	}

	var commit *kgo.Record
	n := 0
	for n < len(queue) && queue[n].state == recordDone {
		commit = queue[n].rec
		n++
	}
	if n == len(queue) {
		delete(t.partitions, tp)
	} else {
		t.partitions[tp] = queue[n:]
	}

	return commit
}

// forget drops partitions this member no longer owns. Their uncommitted
// records are redelivered to the new owner.
func (t *offsetTracker) forget(assigned map[string][]int32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for topic, partitions := range assigned {
		for _, p := range partitions {
			delete(t.partitions, topicPartition{topic: topic, partition: p})
		}
	}
}

// pending reports the tracked records not yet committable on a partition.
func (t *offsetTracker) pending(topic string, partition int32) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.partitions[topicPartition{topic: topic, partition: partition}])
}
