package model

import "fmt"

// EndpointType identifies the transport family a subscription delivers to.
// The set is closed: the dispatcher switches over it exhaustively, so adding a
// value here requires a matching dispatcher arm.
type EndpointType string

const (
	// EndpointREST delivers over an outgoing HTTP connection.
	EndpointREST EndpointType = "rest"

	// EndpointAMQP publishes to an outgoing AMQP connection.
	EndpointAMQP EndpointType = "amqp"

	// EndpointWebSocket is delivered by the owning connection's own task,
	// never by the generic dispatcher.
	EndpointWebSocket EndpointType = "wsx"

	// EndpointService invokes an internal service synchronously.
	EndpointService EndpointType = "srv"
)

// ParseEndpointType converts a stored string into an EndpointType.
// Unknown values are a configuration error.
func ParseEndpointType(s string) (EndpointType, error) {
	switch EndpointType(s) {
	case EndpointREST, EndpointAMQP, EndpointWebSocket, EndpointService:
		return EndpointType(s), nil
	default:
		return "", fmt.Errorf("unknown endpoint type: %q", s)
	}
}

// Endpoint represents a delivery target a subscription can be bound to.
type Endpoint struct {
	ID   int64        `json:"id"`
	Name string       `json:"name"`
	Type EndpointType `json:"type" db:"endpoint_type"`
}

// TableName returns the database table name for Endpoint.
func (e Endpoint) TableName() string {
	return tablePrefix + "endpoint"
}
