package model

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMessage(t *testing.T) {
	beforeCreate := time.Now()
	msg := NewMessage(`{"orderId": 42}`, 7)

	assert.Equal(t, int64(0), msg.ID)
	assert.NotEmpty(t, msg.PubMsgID)
	assert.Equal(t, 7, msg.Priority)
	assert.Equal(t, StatusInitialized, msg.DeliveryStatus)
	assert.Equal(t, len(`{"orderId": 42}`), msg.Size)
	assert.False(t, msg.ExtPubTime.Valid)
	assert.False(t, msg.DeliveryTime.Valid)

	assert.WithinDuration(t, beforeCreate, msg.PubTime, 1*time.Second)
	assert.WithinDuration(t, beforeCreate.Add(DefaultExpiry), msg.ExpirationTime, 1*time.Second)
}

func TestNewMessage_PriorityClamping(t *testing.T) {
	tests := []struct {
		name     string
		priority int
		expected int
	}{
		{"Negative priority clamped to 0", -3, 0},
		{"Zero priority kept", 0, 0},
		{"Mid-range priority kept", 5, 5},
		{"Max priority kept", 9, 9},
		{"Above max clamped to 9", 12, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewMessage("data", tt.priority)
			assert.Equal(t, tt.expected, msg.Priority)
		})
	}
}

func TestMessage_Before(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mk := func(priority int, extPubTime *time.Time, pubTime time.Time) Message {
		m := Message{Priority: priority, PubTime: pubTime}
		if extPubTime != nil {
			m.ExtPubTime = sql.NullTime{Time: *extPubTime, Valid: true}
		}
		return m
	}

	earlier := base.Add(-1 * time.Hour)

	tests := []struct {
		name   string
		a, b   Message
		before bool
	}{
		{
			name:   "Higher priority sorts first regardless of publish order",
			a:      mk(9, nil, base.Add(time.Minute)),
			b:      mk(5, nil, base),
			before: true,
		},
		{
			name:   "Lower priority sorts after",
			a:      mk(3, nil, base),
			b:      mk(4, nil, base),
			before: false,
		},
		{
			name:   "Equal priority: publisher timestamp beats broker timestamp",
			a:      mk(5, &earlier, base.Add(time.Minute)),
			b:      mk(5, nil, base),
			before: true,
		},
		{
			name:   "Equal priority and order time: pub_time breaks the tie",
			a:      mk(5, &base, base),
			b:      mk(5, &base, base.Add(time.Second)),
			before: true,
		},
		{
			name:   "Identical keys are not before each other",
			a:      mk(5, nil, base),
			b:      mk(5, nil, base),
			before: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.before, tt.a.Before(tt.b))
		})
	}
}

func TestMessage_MarkDelivered(t *testing.T) {
	msg := NewMessage("data", 5)
	now := time.Now()

	msg.MarkDelivered(now)

	assert.Equal(t, StatusDelivered, msg.DeliveryStatus)
	assert.True(t, msg.DeliveryTime.Valid)
	assert.Equal(t, now, msg.DeliveryTime.Time)
}

func TestMessage_IsExpired(t *testing.T) {
	msg := NewMessage("data", 5)

	assert.False(t, msg.IsExpired(time.Now()))
	assert.True(t, msg.IsExpired(msg.ExpirationTime.Add(time.Second)))
}

func TestMessage_WithSubKey(t *testing.T) {
	msg := NewMessage("data", 5)
	bound := msg.WithSubKey("sk.abc")

	assert.Equal(t, "sk.abc", bound.SubKey)
	assert.Empty(t, msg.SubKey, "original message must stay unbound")
	assert.Equal(t, msg.PubMsgID, bound.PubMsgID)
}
