package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coregx/broker"
	"github.com/coregx/broker/model"
	"github.com/coregx/broker/retry"
)

// DefaultWriteTimeout bounds a single WebSocket write.
const DefaultWriteTimeout = 10 * time.Second

// wsFrame is the wire shape of one delivered message.
type wsFrame struct {
	PubMsgID string    `json:"pubMsgID"`
	CorrelID string    `json:"correlID,omitempty"`
	Priority int       `json:"priority"`
	PubTime  time.Time `json:"pubTime"`
	Data     string    `json:"data"`
}

// WebSocketSession owns one accepted WebSocket connection bound to one
// subscription. Unlike the other transports, WebSocket delivery is not routed
// through the generic dispatcher: the session drains its subscription's queue
// itself while the connection lives, and the queue simply accumulates while no
// session is attached.
type WebSocketSession struct {
	subKey string

	conn         *websocket.Conn
	store        broker.MessageStore
	logger       broker.Logger
	pollInterval time.Duration
	backoff      *retry.Backoff
	deadlock     retry.DeadlockPolicy
	writeTimeout time.Duration

	// writeMu serializes frame writes; gorilla/websocket allows at most one
	// concurrent writer.
	writeMu sync.Mutex

	lastPollTime time.Time
	list         *model.DeliveryList
}

// NewWebSocketSession binds an accepted connection to a subscription's queue.
func NewWebSocketSession(conn *websocket.Conn, sub *model.Subscription, store broker.MessageStore, logger broker.Logger) *WebSocketSession {
	if logger == nil {
		logger = &broker.NoopLogger{}
	}
	return &WebSocketSession{
		subKey:       sub.SubKey,
		conn:         conn,
		store:        store,
		logger:       logger,
		pollInterval: retry.DefaultPollInterval,
		backoff:      retry.DefaultBackoff(),
		deadlock:     retry.DefaultDeadlockPolicy(broker.IsDeadlock),
		writeTimeout: DefaultWriteTimeout,
		list:         model.NewDeliveryList(),
	}
}

// Run drains the subscription's queue over the connection until the context
// is canceled or a write fails. Any write failure ends the session: the peer
// is gone or the connection is no longer usable, and the queued messages wait
// for the next session. Only a store confirmation failure is retried over the
// same connection after a backoff.
func (s *WebSocketSession) Run(ctx context.Context) error {
	defer s.conn.Close()

	s.logger.Infof("WebSocket session started: sub_key=%s", s.subKey)

	for ctx.Err() == nil {
		if s.list.Len() == 0 {
			if err := s.poll(ctx); err != nil && !broker.IsNoData(err) {
				s.logger.Errorf("WebSocket poll failed: sub_key=%s: %v", s.subKey, err)
			}
			if s.list.Len() == 0 {
				s.sleep(ctx, s.pollInterval)
				continue
			}
		}

		if err := s.deliverPass(ctx); err != nil {
			var wf *writeFailure
			if errors.As(err, &wf) {
				if isClosedConn(wf.err) {
					s.logger.Infof("WebSocket session closed by peer: sub_key=%s", s.subKey)
					return nil
				}
				s.logger.Warnf("WebSocket write failed, ending session: sub_key=%s: %v", s.subKey, wf.err)
				return wf.err
			}
			s.logger.Warnf("WebSocket confirm failed: sub_key=%s: %v", s.subKey, err)
			s.sleep(ctx, s.backoff.Next())
		}
	}
	return ctx.Err()
}

// writeFailure distinguishes a failed frame write from a store error: the
// former ends the session, the latter is retried over the same connection.
type writeFailure struct{ err error }

func (e *writeFailure) Error() string { return e.err.Error() }
func (e *writeFailure) Unwrap() error { return e.err }

func (s *WebSocketSession) poll(ctx context.Context) error {
	msgs, err := s.store.GetPending(ctx, broker.PendingQuery{
		SubKeys:    []string{s.subKey},
		Since:      s.lastPollTime,
		MaxPubTime: time.Now(),
		ExcludeIDs: s.list.IDs(),
	})
	if err != nil {
		return err
	}

	// Advance the window only behind the newest pub_time actually seen,
	// trailing by PollOverlap so a row committed after this read is caught
	// by a later poll.
	var newest time.Time
	for _, m := range msgs {
		if m.PubTime.After(newest) {
			newest = m.PubTime
		}
	}
	if bound := newest.Add(-retry.PollOverlap); bound.After(s.lastPollTime) {
		s.lastPollTime = bound
	}

	s.list.Insert(msgs...)
	return nil
}

func (s *WebSocketSession) deliverPass(ctx context.Context) error {
	var deliveredIDs []int64
	var passErr error

	for _, msg := range s.list.Snapshot() {
		if ctx.Err() != nil {
			break
		}
		if err := s.writeFrame(msg); err != nil {
			passErr = &writeFailure{err: err}
			break
		}
		deliveredIDs = append(deliveredIDs, msg.ID)
	}

	if len(deliveredIDs) > 0 {
		err := s.deadlock.Run(ctx, s.logger, func(ctx context.Context) error {
			return s.store.ConfirmDelivered(ctx, s.subKey, deliveredIDs, time.Now())
		})
		if err != nil {
			return err
		}
		s.list.Remove(deliveredIDs...)
	}

	return passErr
}

func (s *WebSocketSession) writeFrame(msg model.Message) error {
	frame, err := json.Marshal(wsFrame{
		PubMsgID: msg.PubMsgID,
		CorrelID: msg.CorrelID,
		Priority: msg.Priority,
		PubTime:  msg.PubTime,
		Data:     msg.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *WebSocketSession) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func isClosedConn(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) ||
		websocket.IsUnexpectedCloseError(err)
}
