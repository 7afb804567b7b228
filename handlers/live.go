package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cyverse-de/skill-swap/metrics"
	"github.com/streadway/amqp"
)

// LiveEventCategory is the first component of the routing key used for relayed live events.
const LiveEventCategory = "live"

// LiveEventRequest represents a deserialized live event relayed from another instance.
type LiveEventRequest struct {
	User  string          `json:"user"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// LiveEvent is a message handler that delivers relayed live events to the connections held by this instance.
type LiveEvent struct {
	publisher Publisher
}

// NewLiveEvent returns a new live event handler.
func NewLiveEvent(publisher Publisher) *LiveEvent {
	return &LiveEvent{publisher: publisher}
}

// HandleMessage handles a single AMQP delivery.
func (h *LiveEvent) HandleMessage(_ context.Context, delivery amqp.Delivery) error {

	// Parse the message body.
	var request LiveEventRequest
	err := json.Unmarshal(delivery.Body, &request)
	if err != nil {
		return NewUnrecoverableError("unable to parse message body: %s", err.Error())
	}

	// The user in the routing key wins if both are present.
	if parts := strings.SplitN(delivery.RoutingKey, ".", 2); len(parts) == 2 && parts[1] != "" {
		request.User = parts[1]
	}

	return h.Relay("amqp", request)
}

// Relay delivers a live event received through the named relay to the connections held by this instance.
func (h *LiveEvent) Relay(relay string, request LiveEventRequest) error {
	user := strings.TrimSpace(request.User)
	if user == "" {
		return NewUnrecoverableError("no user specified for live event")
	}
	if request.Event == "" {
		return NewUnrecoverableError("no event name specified for live event")
	}

	// The payload is passed through untouched so that it's encoded exactly as the sender encoded it.
	h.publisher.Publish(user, request.Event, request.Data)
	metrics.LiveEventsRelayed.WithLabelValues(relay).Inc()

	return nil
}
