package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coregx/broker/model"
)

// DefaultHTTPTimeout bounds a single delivery attempt. A callback that does
// not answer within it counts as a failed delivery and is retried by the
// delivery task's backoff.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPSender implements broker.RESTSender on top of net/http.
//
// The subscription supplies the method, callback URL and content type; the
// message payload is sent as the request body. Any response outside 2xx is a
// delivery failure.
type HTTPSender struct {
	client *http.Client
}

// NewHTTPSender creates a sender with a default client. Pass nil to use a
// client with DefaultHTTPTimeout.
func NewHTTPSender(client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &HTTPSender{client: client}
}

// Send delivers the message to the subscription's callback URL.
func (s *HTTPSender) Send(ctx context.Context, sub *model.Subscription, msg model.Message) error {
	if sub.CallbackURL == "" {
		return fmt.Errorf("subscription %s has no callback URL", sub.SubKey)
	}

	method := sub.HTTPMethod
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, sub.CallbackURL, strings.NewReader(msg.Data))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", sub.CallbackURL, err)
	}

	contentType := sub.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Broker-Msg-ID", msg.PubMsgID)
	if msg.CorrelID != "" {
		req.Header.Set("X-Broker-Correl-ID", msg.CorrelID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", sub.CallbackURL, err)
	}
	defer resp.Body.Close()

	// The body is drained so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback %s returned status %d", sub.CallbackURL, resp.StatusCode)
	}
	return nil
}
