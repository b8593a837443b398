package model

import (
	"sort"
	"sync"
)

// DeliveryList is the ordered working set of one delivery task.
//
// It keeps messages sorted by the total delivery order (Message.Before) and
// supports inserting freshly polled messages into an already partially drained
// set. The poll step (producer) and the delivery/confirm step (consumer) may
// run on different goroutines, so all access is guarded by a mutex.
type DeliveryList struct {
	mu   sync.Mutex
	msgs []Message
	seen map[int64]struct{}
}

// NewDeliveryList creates an empty delivery list.
func NewDeliveryList() *DeliveryList {
	return &DeliveryList{
		seen: make(map[int64]struct{}),
	}
}

// Insert adds messages in their total-order position. Messages whose ID is
// already present are skipped, so a poll that races with confirmation cannot
// duplicate a message within the working set.
func (l *DeliveryList) Insert(msgs ...Message) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	inserted := 0
	for _, m := range msgs {
		if _, ok := l.seen[m.ID]; ok {
			continue
		}
		idx := sort.Search(len(l.msgs), func(i int) bool {
			return m.Before(l.msgs[i])
		})
		l.msgs = append(l.msgs, Message{})
		copy(l.msgs[idx+1:], l.msgs[idx:])
		l.msgs[idx] = m
		l.seen[m.ID] = struct{}{}
		inserted++
	}
	return inserted
}

// Snapshot returns the current contents in delivery order.
// The returned slice is a copy and safe to iterate without the lock.
func (l *DeliveryList) Snapshot() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Remove drops the messages with the given IDs, typically after confirmation.
func (l *DeliveryList) Remove(ids ...int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := l.msgs[:0]
	for _, m := range l.msgs {
		if _, ok := drop[m.ID]; ok {
			delete(l.seen, m.ID)
			continue
		}
		kept = append(kept, m)
	}
	l.msgs = kept
}

// IDs returns the IDs currently held, in delivery order.
func (l *DeliveryList) IDs() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]int64, len(l.msgs))
	for i, m := range l.msgs {
		out[i] = m.ID
	}
	return out
}

// Len returns the number of messages in the working set.
func (l *DeliveryList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}
