// Package transport provides the concrete delivery senders plugged into the
// broker's dispatcher.
//
// Each sender covers one endpoint family:
//
//   - HTTPSender posts messages to a subscription's callback URL
//   - AMQPSender publishes messages to a RabbitMQ exchange
//   - ServiceRegistry invokes in-process handler functions
//   - WebSocketSession pushes messages down an accepted WebSocket connection
//
// Senders report failure as an error and never confirm anything themselves;
// confirmation is the delivery task's job and happens only after the sender
// returns nil.
package transport
