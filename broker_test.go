package broker_test

import (
	"context"
	"fmt"
	"sync"

	broker "github.com/coregx/broker"
	"github.com/coregx/broker/model"
)

// recordingSender implements broker.RESTSender, broker.AMQPSender and
// broker.ServiceInvoker, recording every delivery in order. FailOn marks
// pub_msg_ids that fail once; the failure is consumed on its first hit so the
// retry then succeeds.
type recordingSender struct {
	mu        sync.Mutex
	delivered []model.Message
	failOn    map[string]int // pub_msg_id -> remaining failures
}

func newRecordingSender() *recordingSender {
	return &recordingSender{failOn: make(map[string]int)}
}

func (s *recordingSender) FailOnce(pubMsgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[pubMsgID]++
}

func (s *recordingSender) deliver(msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failOn[msg.PubMsgID] > 0 {
		s.failOn[msg.PubMsgID]--
		return fmt.Errorf("simulated downstream failure for %s", msg.PubMsgID)
	}
	s.delivered = append(s.delivered, msg)
	return nil
}

func (s *recordingSender) Send(_ context.Context, _ *model.Subscription, msg model.Message) error {
	return s.deliver(msg)
}

func (s *recordingSender) Publish(_ context.Context, _ *model.Subscription, msg model.Message) error {
	return s.deliver(msg)
}

func (s *recordingSender) Invoke(_ context.Context, _ string, msg model.Message) error {
	return s.deliver(msg)
}

func (s *recordingSender) Delivered() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.delivered))
	copy(out, s.delivered)
	return out
}

// restDispatcher builds a dispatcher with only the given REST sender.
func restDispatcher(sender broker.RESTSender) *broker.Dispatcher {
	d, err := broker.NewDispatcher(broker.WithRESTSender(sender))
	if err != nil {
		panic(err)
	}
	return d
}
