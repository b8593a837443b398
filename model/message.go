package model

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus represents the delivery state of a queued message.
type DeliveryStatus string

const (
	// StatusInitialized indicates the message is enqueued and awaiting delivery.
	StatusInitialized DeliveryStatus = "initialized"

	// StatusDelivered indicates the message was delivered and confirmed.
	StatusDelivered DeliveryStatus = "delivered"
)

// Message represents one message enqueued for delivery to one subscription.
// A publish operation creates one row per matching subscription; the row is the
// unit the delivery task polls, delivers and confirms.
//
// Messages are immutable after creation except for the confirmation step, which
// flips DeliveryStatus to DELIVERED and records DeliveryTime. Confirmed rows are
// never handed to a delivery task again; physical retention is the store's
// concern.
type Message struct {
	ID             int64          `json:"id"`                                  // Durable row ID
	PubMsgID       string         `json:"pubMsgID" db:"pub_msg_id"`            // Publisher-visible message ID
	CorrelID       string         `json:"correlID" db:"correl_id"`             // Correlation ID supplied by the publisher
	InReplyTo      string         `json:"inReplyTo" db:"in_reply_to"`          // ID of the message this one replies to
	SubKey         string         `json:"subKey" db:"sub_key"`                 // Subscription queue this row belongs to
	Priority       int            `json:"priority"`                            // 0..9, higher delivered first
	PubTime        time.Time      `json:"pubTime" db:"pub_time"`               // Broker-assigned publication time
	ExtPubTime     sql.NullTime   `json:"extPubTime" db:"ext_pub_time"`        // Publisher-supplied time, may be absent
	ExpirationTime time.Time      `json:"expirationTime" db:"expiration_time"` // After this the message is not delivered
	TargetService  string         `json:"targetService" db:"target_service"`   // Set when published directly to a service
	Data           string         `json:"data"`                                // Payload
	Size           int            `json:"size"`                                // Payload size in bytes
	DeliveryStatus DeliveryStatus `json:"deliveryStatus" db:"delivery_status"` // INITIALIZED or DELIVERED
	DeliveryTime   sql.NullTime   `json:"deliveryTime" db:"delivery_time"`     // Set on confirmation
}

// TableName returns the database table name for Message.
func (m Message) TableName() string {
	return tablePrefix + "message"
}

// DefaultExpiry is applied when the publisher does not set an expiration.
const DefaultExpiry = 24 * time.Hour

// NewMessage creates a message ready for enqueue, status INITIALIZED.
// The pub_msg_id is generated here; the durable row ID is assigned by the store.
// Priority is clamped to 0..9.
func NewMessage(data string, priority int) Message {
	if priority < 0 {
		priority = 0
	}
	if priority > MaxPriority {
		priority = MaxPriority
	}

	now := time.Now()
	return Message{
		ID:             0,
		PubMsgID:       uuid.NewString(),
		Priority:       priority,
		PubTime:        now,
		ExpirationTime: now.Add(DefaultExpiry),
		Data:           data,
		Size:           len(data),
		DeliveryStatus: StatusInitialized,
	}
}

// WithSubKey returns a copy of the message bound to a subscription queue.
// Used by the fan-out step, which enqueues one row per matching subscription.
func (m Message) WithSubKey(subKey string) Message {
	m.SubKey = subKey
	return m
}

// MarkDelivered records a successful, confirmed delivery.
func (m *Message) MarkDelivered(now time.Time) {
	m.DeliveryStatus = StatusDelivered
	m.DeliveryTime = sql.NullTime{Time: now, Valid: true}
}

// IsExpired reports whether the message has passed its expiration time.
func (m Message) IsExpired(now time.Time) bool {
	return now.After(m.ExpirationTime)
}

// orderTime is the second component of the total order key: the
// publisher-supplied timestamp when present, the broker timestamp otherwise.
func (m Message) orderTime() time.Time {
	if m.ExtPubTime.Valid {
		return m.ExtPubTime.Time
	}
	return m.PubTime
}

// Before reports whether m sorts ahead of other in delivery order.
// The total order key is (9 - priority, ext_pub_time or pub_time, pub_time),
// ascending: higher priority first, then the oldest publisher timestamp, then
// the oldest broker timestamp as the final tie-breaker.
func (m Message) Before(other Message) bool {
	pa, pb := MaxPriority-m.Priority, MaxPriority-other.Priority
	if pa != pb {
		return pa < pb
	}

	ta, tb := m.orderTime(), other.orderTime()
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}

	return m.PubTime.Before(other.PubTime)
}
