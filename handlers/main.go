package handlers

import (
	"context"

	"github.com/streadway/amqp"
)

// MessageHandler describes the interface used to handle AMQP messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, delivery amqp.Delivery) error
}

// Publisher delivers events to the live connections held by this instance.
type Publisher interface {
	Publish(userID, event string, payload interface{})
}

// InitMessageHandlers returns a map from routing key category to message handler.
func InitMessageHandlers(publisher Publisher) map[string]MessageHandler {
	return map[string]MessageHandler{
		LiveEventCategory: NewLiveEvent(publisher),
	}
}
