package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coregx/broker"
	"github.com/coregx/broker/model"
)

// MessageStore is an in-memory broker.MessageStore.
//
// Rows live in a map keyed by the store-assigned ID. All operations are
// linearized behind a single mutex, so the at-least-once confirmation
// contract holds trivially: there are no transactions to deadlock.
type MessageStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]model.Message

	// servers maps sub_key to the name of the owning delivery server.
	servers map[string]string

	// ConfirmHook, when set, runs before each confirmation with the IDs
	// about to be confirmed. A returned error aborts the confirmation.
	// Used by tests to inject store failures.
	ConfirmHook func(subKey string, messageIDs []int64) error
}

// NewMessageStore creates an empty in-memory message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		rows:    make(map[int64]model.Message),
		servers: make(map[string]string),
	}
}

// Enqueue stores one row per message, assigning sequential IDs.
func (s *MessageStore) Enqueue(_ context.Context, msgs ...model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range msgs {
		s.nextID++
		m.ID = s.nextID
		m.DeliveryStatus = model.StatusInitialized
		s.rows[m.ID] = m
	}
	return nil
}

// GetPending returns undelivered messages matching the query in delivery
// order. Returns ErrNoData when nothing is pending.
func (s *MessageStore) GetPending(_ context.Context, q broker.PendingQuery) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[string]struct{}, len(q.SubKeys))
	for _, k := range q.SubKeys {
		keys[k] = struct{}{}
	}
	excluded := make(map[int64]struct{}, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	now := time.Now()
	var pending []model.Message
	for _, m := range s.rows {
		if m.DeliveryStatus != model.StatusInitialized {
			continue
		}
		if _, ok := keys[m.SubKey]; !ok {
			continue
		}
		if _, ok := excluded[m.ID]; ok {
			continue
		}
		if !m.PubTime.After(q.Since) || m.PubTime.After(q.MaxPubTime) {
			continue
		}
		if !q.IncludeExpired && m.IsExpired(now) {
			continue
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		return nil, broker.ErrNoData
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].Before(pending[j]) })
	return pending, nil
}

// ConfirmDelivered marks the rows delivered. Unknown or already-confirmed
// IDs are skipped, matching the idempotent UPDATE of the SQL adapter.
func (s *MessageStore) ConfirmDelivered(_ context.Context, subKey string, messageIDs []int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ConfirmHook != nil {
		if err := s.ConfirmHook(subKey, messageIDs); err != nil {
			return err
		}
	}

	for _, id := range messageIDs {
		m, ok := s.rows[id]
		if !ok || m.SubKey != subKey || m.DeliveryStatus != model.StatusInitialized {
			continue
		}
		m.MarkDelivered(now)
		s.rows[id] = m
	}
	return nil
}

// GetDeliveryServerForSubKey returns the server name owning the sub_key.
// Returns ErrNoData when no server has claimed it.
func (s *MessageStore) GetDeliveryServerForSubKey(_ context.Context, subKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, ok := s.servers[subKey]
	if !ok {
		return "", broker.ErrNoData
	}
	return name, nil
}

// SetDeliveryServerForSubKey records the server owning the sub_key.
func (s *MessageStore) SetDeliveryServerForSubKey(_ context.Context, subKey, serverName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.servers[subKey] = serverName
	return nil
}

// Get returns a stored row by ID. Used by tests to assert delivery state.
func (s *MessageStore) Get(id int64) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.rows[id]
	return m, ok
}

// All returns every stored row in delivery order. Used by tests.
func (s *MessageStore) All() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Message, 0, len(s.rows))
	for _, m := range s.rows {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
