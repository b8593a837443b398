// Package api provides HTTP handlers for the broker server REST API.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gorilla/websocket"

	"github.com/coregx/broker"
	"github.com/coregx/broker/model"
	"github.com/coregx/broker/transport"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	publisher *broker.Publisher
	control   *broker.ControlHandler
	registry  *broker.Registry
	store     broker.MessageStore
	logger    broker.Logger

	upgrader websocket.Upgrader
}

// NewHandler creates a new API handler.
func NewHandler(
	publisher *broker.Publisher,
	control *broker.ControlHandler,
	registry *broker.Registry,
	store broker.MessageStore,
	logger broker.Logger,
) *Handler {
	return &Handler{
		publisher: publisher,
		control:   control,
		registry:  registry,
		store:     store,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// PublishRequest represents a publish message request.
type PublishRequest struct {
	TopicName  string     `json:"topicName"`
	Publisher  string     `json:"publisher"`
	Data       string     `json:"data"`
	CorrelID   string     `json:"correlID"`
	InReplyTo  string     `json:"inReplyTo"`
	Priority   *int       `json:"priority"`
	ExtPubTime *time.Time `json:"extPubTime"`
}

// Validate checks the publish request fields.
func (r PublishRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TopicName, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Publisher, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Priority, validation.Min(0), validation.Max(model.MaxPriority)),
	)
}

// SubscribeRequest represents a subscription creation request.
type SubscribeRequest struct {
	TopicName    string   `json:"topicName"`
	Subscriber   string   `json:"subscriber"`
	EndpointName string   `json:"endpointName"`
	EndpointType string   `json:"endpointType"`
	Patterns     []string `json:"patterns"`

	CallbackURL    string `json:"callbackURL"`
	HTTPMethod     string `json:"httpMethod"`
	ContentType    string `json:"contentType"`
	AMQPExchange   string `json:"amqpExchange"`
	AMQPRoutingKey string `json:"amqpRoutingKey"`
	ServiceName    string `json:"serviceName"`
}

// Validate checks the subscribe request fields.
func (r SubscribeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TopicName, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Subscriber, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.EndpointName, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.EndpointType, validation.Required, validation.In(
			string(model.EndpointREST),
			string(model.EndpointAMQP),
			string(model.EndpointWebSocket),
			string(model.EndpointService),
		)),
	)
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandlePublish handles POST /api/v1/publish
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	result, err := h.publisher.Publish(r.Context(), broker.PublishRequest{
		TopicName:  req.TopicName,
		Publisher:  req.Publisher,
		Data:       req.Data,
		CorrelID:   req.CorrelID,
		InReplyTo:  req.InReplyTo,
		Priority:   req.Priority,
		ExtPubTime: req.ExtPubTime,
	})

	if err != nil {
		if result != nil && !result.Accepted {
			h.respondError(w, http.StatusForbidden, "Not authorized to publish to this topic", "AUTHORIZATION_ERROR")
			return
		}
		h.logger.Errorf("Failed to publish message: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to publish message", "PUBLISH_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusCreated, result, "Message published successfully")
}

// HandleSubscribe handles POST /api/v1/subscribe
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	allowed, err := h.publisher.CheckSubscribeAccess(r.Context(), req.TopicName, req.Subscriber)
	if err != nil {
		h.logger.Errorf("Failed to check subscribe access: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to check access", "ACCESS_CHECK_ERROR")
		return
	}
	if !allowed {
		h.respondError(w, http.StatusForbidden, "Not authorized to subscribe to this topic", "AUTHORIZATION_ERROR")
		return
	}

	// The transport config travels inside the command, so the subscription
	// is fully configured before its delivery task starts.
	endpointType, _ := model.ParseEndpointType(req.EndpointType)
	if err := h.control.Apply(r.Context(), broker.Command{
		Kind:           broker.CmdCreateSubscription,
		TopicName:      req.TopicName,
		EndpointName:   req.EndpointName,
		EndpointType:   endpointType,
		Patterns:       req.Patterns,
		CallbackURL:    req.CallbackURL,
		HTTPMethod:     req.HTTPMethod,
		ContentType:    req.ContentType,
		AMQPExchange:   req.AMQPExchange,
		AMQPRoutingKey: req.AMQPRoutingKey,
		ServiceName:    req.ServiceName,
	}); err != nil {
		h.logger.Errorf("Failed to create subscription: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to create subscription", "SUBSCRIBE_ERROR")
		return
	}

	sub, ok := h.registry.FindSubscription(req.TopicName, req.EndpointName)
	if !ok {
		h.respondError(w, http.StatusInternalServerError, "Subscription not found after create", "SUBSCRIBE_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusCreated, sub, "Subscription created successfully")
}

// HandleUnsubscribe handles DELETE /api/v1/subscriptions/:subKey
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	subKey := strings.TrimPrefix(r.URL.Path, "/api/v1/subscriptions/")
	if subKey == "" || strings.Contains(subKey, "/") {
		h.respondError(w, http.StatusBadRequest, "Invalid sub_key", "INVALID_SUB_KEY")
		return
	}

	if err := h.control.Apply(r.Context(), broker.Command{
		Kind:   broker.CmdDeleteSubscription,
		SubKey: subKey,
	}); err != nil {
		h.logger.Errorf("Failed to unsubscribe: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to unsubscribe", "UNSUBSCRIBE_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, nil, "Unsubscribed successfully")
}

// HandleListTopics handles GET /api/v1/topics
func (h *Handler) HandleListTopics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	h.respondSuccess(w, http.StatusOK, h.registry.TopicNames(), "")
}

// HandleControl handles POST /api/v1/control
//
// The body is one broker.Command; every topic and subscription management
// operation is expressible through it.
func (h *Handler) HandleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var cmd broker.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	if err := h.control.Apply(r.Context(), cmd); err != nil {
		if broker.IsNoData(err) {
			h.respondError(w, http.StatusNotFound, "Target not found", "NOT_FOUND")
			return
		}
		h.logger.Errorf("Control command failed: kind=%s: %v", cmd.Kind, err)
		h.respondError(w, http.StatusBadRequest, err.Error(), "CONTROL_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, nil, "Command applied")
}

// HandleWebSocket handles GET /api/v1/ws?subKey=...
//
// The connection is upgraded and bound to the subscription's queue; the
// session drains it for as long as the connection lives.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	subKey := r.URL.Query().Get("subKey")
	if subKey == "" {
		h.respondError(w, http.StatusBadRequest, "subKey query parameter is required", "INVALID_SUB_KEY")
		return
	}

	sub, ok := h.registry.GetSubscription(subKey)
	if !ok {
		h.respondError(w, http.StatusNotFound, "Subscription not found", "NOT_FOUND")
		return
	}
	if sub.EndpointType != model.EndpointWebSocket {
		h.respondError(w, http.StatusBadRequest, "Subscription is not a WebSocket endpoint", "INVALID_ENDPOINT_TYPE")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: sub_key=%s: %v", subKey, err)
		return
	}

	// The session blocks this handler goroutine for the life of the
	// connection; the upgrade hijacked it from the HTTP server anyway.
	session := transport.NewWebSocketSession(conn, sub, h.store, h.logger)
	if err := session.Run(r.Context()); err != nil && r.Context().Err() == nil {
		h.logger.Warnf("WebSocket session ended: sub_key=%s: %v", subKey, err)
	}
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"topics":    len(h.registry.TopicNames()),
	}

	h.respondSuccess(w, http.StatusOK, health, "")
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}
