package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/broker/model"
)

func TestHTTPSender_Send(t *testing.T) {
	var gotMethod, gotContentType, gotMsgID, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotMsgID = r.Header.Get("X-Broker-Msg-ID")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := model.NewSubscription("orders", "billing", model.EndpointREST)
	sub.CallbackURL = server.URL
	sub.HTTPMethod = http.MethodPut
	sub.ContentType = "application/xml"

	msg := model.NewMessage("<order/>", 5)

	sender := NewHTTPSender(nil)
	require.NoError(t, sender.Send(context.Background(), &sub, msg))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "application/xml", gotContentType)
	assert.Equal(t, msg.PubMsgID, gotMsgID)
	assert.Equal(t, "<order/>", gotBody)
}

func TestHTTPSender_Send_Defaults(t *testing.T) {
	var gotMethod, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
	}))
	defer server.Close()

	sub := model.NewSubscription("orders", "billing", model.EndpointREST)
	sub.CallbackURL = server.URL

	sender := NewHTTPSender(nil)
	require.NoError(t, sender.Send(context.Background(), &sub, model.NewMessage("{}", 5)))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
}

func TestHTTPSender_Send_NonSuccessStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"200 OK", http.StatusOK, false},
		{"204 No Content", http.StatusNoContent, false},
		{"301 redirect-class", http.StatusMovedPermanently, true},
		{"404 Not Found", http.StatusNotFound, true},
		{"500 Internal Server Error", http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			sub := model.NewSubscription("orders", "billing", model.EndpointREST)
			sub.CallbackURL = server.URL

			err := NewHTTPSender(nil).Send(context.Background(), &sub, model.NewMessage("{}", 5))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHTTPSender_Send_MissingCallbackURL(t *testing.T) {
	sub := model.NewSubscription("orders", "billing", model.EndpointREST)

	err := NewHTTPSender(nil).Send(context.Background(), &sub, model.NewMessage("{}", 5))
	require.Error(t, err)
}

func TestHTTPSender_Send_ConnectionRefused(t *testing.T) {
	sub := model.NewSubscription("orders", "billing", model.EndpointREST)
	sub.CallbackURL = "http://127.0.0.1:1/unreachable"

	err := NewHTTPSender(nil).Send(context.Background(), &sub, model.NewMessage("{}", 5))
	require.Error(t, err)
}
