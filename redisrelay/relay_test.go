package redisrelay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cyverse-de/skill-swap/handlers"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(userID, event string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, userID+":"+event)
}

func (p *recordingPublisher) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func TestRelayDeliversPublishedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	local := &recordingPublisher{}
	fallback := &recordingPublisher{}
	relay := New(client, "", handlers.NewLiveEvent(local), fallback, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- relay.Listen(ctx) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(DefaultChannel)[DefaultChannel] == 1
	}, 5*time.Second, 10*time.Millisecond)

	relay.Publish("sarahr", "notificationCount", map[string]int{"count": 1})
	relay.Publish("sarahr", "notification", map[string]string{"id": "n1"})

	assert.Eventually(t, func() bool {
		return len(local.recorded()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"sarahr:notificationCount", "sarahr:notification"}, local.recorded())
	assert.Empty(t, fallback.recorded())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("the relay did not stop listening")
	}
}

func TestRelayIgnoresInvalidEvents(t *testing.T) {
	local := &recordingPublisher{}
	relay := New(nil, "", handlers.NewLiveEvent(local), nil, quietLogger())

	relay.handle("{")
	relay.handle(`{"event": "notification"}`)

	assert.Empty(t, local.recorded())
}

func TestRelayFallsBackWhenRedisIsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	fallback := &recordingPublisher{}
	relay := New(client, "", handlers.NewLiveEvent(&recordingPublisher{}), fallback, quietLogger())
	relay.Publish("sarahr", "notificationCount", map[string]int{"count": 1})

	assert.Equal(t, []string{"sarahr:notificationCount"}, fallback.recorded())
}
