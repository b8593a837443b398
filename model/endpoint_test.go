package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEndpointType(t *testing.T) {
	tests := []struct {
		input    string
		expected EndpointType
		wantErr  bool
	}{
		{"rest", EndpointREST, false},
		{"amqp", EndpointAMQP, false},
		{"wsx", EndpointWebSocket, false},
		{"srv", EndpointService, false},
		{"", "", true},
		{"smtp", "", true},
		{"REST", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEndpointType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
