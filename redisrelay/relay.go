// Package redisrelay relays live events between instances of the service through Redis pub/sub. It's an
// alternative to the AMQP relay for deployments that already run Redis.
package redisrelay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cyverse-de/skill-swap/handlers"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "skill-swap:live"

const publishTimeout = 3 * time.Second

// Relay publishes live events to a Redis channel and delivers the events it receives from that channel to the
// connections held by this instance.
type Relay struct {
	client   *redis.Client
	channel  string
	handler  *handlers.LiveEvent
	fallback handlers.Publisher
	log      *logrus.Entry
}

// New creates a new relay. Events that can't be published are delivered to the fallback publisher instead.
func New(
	client *redis.Client,
	channel string,
	handler *handlers.LiveEvent,
	fallback handlers.Publisher,
	log *logrus.Entry,
) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{
		client:   client,
		channel:  channel,
		handler:  handler,
		fallback: fallback,
		log:      log.WithField("channel", channel),
	}
}

// Publish sends a live event to every instance of the service.
func (r *Relay) Publish(userID, event string, payload interface{}) {
	err := r.publish(userID, event, payload)
	if err != nil {
		r.log.WithFields(logrus.Fields{"user": userID, "event": event}).
			WithError(err).Error("unable to publish a live event")
		if r.fallback != nil {
			r.fallback.Publish(userID, event, payload)
		}
	}
}

func (r *Relay) publish(userID, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(handlers.LiveEventRequest{User: userID, Event: event, Data: data})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, r.channel, body).Err()
}

// Listen delivers events from the channel until the context is cancelled.
func (r *Relay) Listen(ctx context.Context) error {
	wrapMsg := "unable to listen for live events"

	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	r.log.Info("listening for live events")
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("the live event subscription was closed")
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *Relay) handle(payload string) {
	var request handlers.LiveEventRequest
	if err := json.Unmarshal([]byte(payload), &request); err != nil {
		r.log.WithError(err).Error("discarding unparseable live event")
		return
	}
	if err := r.handler.Relay("redis", request); err != nil {
		r.log.WithError(err).Error("discarding live event")
	}
}
