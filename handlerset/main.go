// Package handlerset connects the service to the AMQP exchange. Live events are published to the exchange so
// that every running instance can deliver them to the connections it holds, and e-mail requests are handed off
// to the e-mail service through the same exchange.
package handlerset

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cyverse-de/messaging/v9"
	"github.com/cyverse-de/skill-swap/common"
	"github.com/cyverse-de/skill-swap/handlers"
	"github.com/cyverse-de/skill-swap/model"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// LiveEventKey returns the routing key used for live events sent to a user.
func LiveEventKey(userID string) string {
	return handlers.LiveEventCategory + "." + userID
}

// liveEventOpts are the options used when publishing live events. Live events are only useful to connections
// that are open when they're sent, so they aren't persisted by the broker.
var liveEventOpts = &messaging.PublishingOpts{
	DeliveryMode: amqp.Transient,
	ContentType:  "application/json",
}

// amqpClient is the part of the messaging client used to publish messages.
type amqpClient interface {
	PublishOpts(key string, body []byte, opts *messaging.PublishingOpts) error
	PublishEmailRequest(request *messaging.EmailRequest) error
}

// HandlerSet represents a set of AMQP message handlers along with the client they consume from.
type HandlerSet struct {
	settings   *common.AMQPSettings
	client     *messaging.Client
	publisher  amqpClient
	queueName  string
	handlerFor map[string]handlers.MessageHandler
	fallback   handlers.Publisher
	log        *logrus.Entry
}

// New creates a new handler set. The client reconnects to the broker on its own, re-establishing both the
// publishing channel and any consumers that have been added. Live events that can't be published to the exchange
// are delivered to the fallback publisher instead, which keeps connections held by this instance up to date.
func New(
	amqpSettings *common.AMQPSettings,
	handlerFor map[string]handlers.MessageHandler,
	fallback handlers.Publisher,
	log *logrus.Entry,
) (*HandlerSet, error) {
	wrapMsg := "unable to create the message handler set"

	// Route the messaging library's log output through our logger.
	messaging.Info = log.WithField("source", "messaging")
	messaging.Warn = log.WithField("source", "messaging")
	messaging.Error = log.WithField("source", "messaging")

	// Create the AMQP client and start its event loop. Consumers can only be added once the loop is running.
	client, err := messaging.NewClient(amqpSettings.URI, true)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	go client.Listen()

	if err = client.SetupPublishing(amqpSettings.ExchangeName); err != nil {
		client.Close()
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Build and return the handler set.
	handlerSet := HandlerSet{
		settings:   amqpSettings,
		client:     client,
		publisher:  client,
		queueName:  "skill-swap-live-" + uuid.NewString(),
		handlerFor: handlerFor,
		fallback:   fallback,
		log:        log,
	}
	return &handlerSet, nil
}

// Publish sends a live event to every instance of the service. Failures are logged and the event is delivered
// to this instance's connections directly.
func (hs *HandlerSet) Publish(userID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err == nil {
		var body []byte
		request := handlers.LiveEventRequest{User: userID, Event: event, Data: data}
		if body, err = json.Marshal(request); err == nil {
			err = hs.publisher.PublishOpts(LiveEventKey(userID), body, liveEventOpts)
		}
	}
	if err != nil {
		hs.log.WithFields(logrus.Fields{"user": userID, "event": event}).
			WithError(err).Error("unable to publish a live event")
		if hs.fallback != nil {
			hs.fallback.Publish(userID, event, payload)
		}
	}
}

// RequestEmail asks the e-mail service to send a notification to a user.
func (hs *HandlerSet) RequestEmail(_ context.Context, user *model.User, notification *model.Notification) error {
	wrapMsg := "unable to request an e-mail notification"

	values := make(map[string]interface{}, len(notification.Payload)+2)
	for k, v := range notification.Payload {
		values[k] = v
	}
	values["message"] = notification.Message
	values["timestamp"] = common.FormatTimestamp(notification.CreatedAt)

	request := &messaging.EmailRequest{
		TemplateName:   string(notification.Type),
		TemplateValues: values,
		Subject:        notification.Title,
		ToAddress:      user.Email,
	}
	if err := hs.publisher.PublishEmailRequest(request); err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	return nil
}

// handleDelivery passes a delivery to the handler for its category and acknowledges it accordingly.
func (hs *HandlerSet) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	category := strings.SplitN(delivery.RoutingKey, ".", 2)[0]
	log := hs.log.WithField("routing-key", delivery.RoutingKey)

	handler, ok := hs.handlerFor[category]
	if !ok {
		log.Warn("no handler registered for the message category")
		if err := delivery.Reject(false); err != nil {
			log.WithError(err).Error("unable to reject the message")
		}
		return
	}

	var ackErr error
	err := handler.HandleMessage(ctx, delivery)
	switch {
	case err == nil:
		ackErr = delivery.Ack(false)
	case handlers.IsRecoverable(err):
		log.WithError(err).Warn("requeueing message")
		ackErr = delivery.Nack(false, true)
	default:
		log.WithError(err).Error("discarding message")
		ackErr = delivery.Reject(false)
	}
	if ackErr != nil {
		log.WithError(ackErr).Error("unable to acknowledge the message")
	}
}

// Listen starts consuming live events from the exchange. Each instance consumes from its own auto-delete queue
// so that every instance sees every event. The client keeps the consumer alive across reconnects.
func (hs *HandlerSet) Listen() {
	hs.client.AddDeletableConsumer(
		hs.settings.ExchangeName,
		hs.settings.ExchangeType,
		hs.queueName,
		handlers.LiveEventCategory+".#",
		hs.handleDelivery,
	)
	hs.log.WithField("queue", hs.queueName).Info("listening for live events")
}

// Close closes a message handler set.
func (hs *HandlerSet) Close() {
	if hs.client != nil {
		hs.client.Close()
	}
}
