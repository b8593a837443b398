package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func listMsg(id int64, priority int, pubTime time.Time) Message {
	return Message{ID: id, Priority: priority, PubTime: pubTime}
}

func TestDeliveryList_InsertKeepsOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewDeliveryList()

	// Inserted out of order on purpose.
	l.Insert(listMsg(1, 5, base))
	l.Insert(listMsg(2, 9, base.Add(time.Minute)))
	l.Insert(listMsg(3, 5, base.Add(-time.Minute)))

	assert.Equal(t, []int64{2, 3, 1}, l.IDs())
}

func TestDeliveryList_InsertIntoPartiallyDrainedSet(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewDeliveryList()

	l.Insert(
		listMsg(1, 9, base),
		listMsg(2, 5, base),
	)
	l.Remove(1)

	// A newly polled high-priority message lands ahead of the remainder.
	l.Insert(listMsg(3, 9, base.Add(time.Second)))

	assert.Equal(t, []int64{3, 2}, l.IDs())
}

func TestDeliveryList_DuplicateIDsSkipped(t *testing.T) {
	base := time.Now()
	l := NewDeliveryList()

	assert.Equal(t, 1, l.Insert(listMsg(7, 5, base)))
	assert.Equal(t, 0, l.Insert(listMsg(7, 5, base)))
	assert.Equal(t, 1, l.Len())

	// Once removed the ID may be inserted again (redelivery after crash).
	l.Remove(7)
	assert.Equal(t, 1, l.Insert(listMsg(7, 5, base)))
}

func TestDeliveryList_Snapshot(t *testing.T) {
	base := time.Now()
	l := NewDeliveryList()
	l.Insert(listMsg(1, 5, base), listMsg(2, 5, base.Add(time.Second)))

	snap := l.Snapshot()
	assert.Len(t, snap, 2)

	// Mutating the snapshot must not affect the list.
	snap[0].ID = 99
	assert.Equal(t, []int64{1, 2}, l.IDs())
}

func TestDeliveryList_Remove(t *testing.T) {
	base := time.Now()
	l := NewDeliveryList()
	l.Insert(
		listMsg(1, 5, base),
		listMsg(2, 5, base.Add(time.Second)),
		listMsg(3, 5, base.Add(2*time.Second)),
	)

	l.Remove(1, 3)

	assert.Equal(t, []int64{2}, l.IDs())
	assert.Equal(t, 1, l.Len())
}
