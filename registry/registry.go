// Package registry keeps track of the live connections that each user has open and delivers events to all of
// them. Every connection has its own bounded queue and writer goroutine, so publishing never waits on a
// subscriber. A connection whose queue fills up or whose write fails is dropped; the persistent store remains
// the record of truth for anything the connection missed.
package registry

import (
	"sync"

	"github.com/cyverse-de/skill-swap/metrics"
	"github.com/sirupsen/logrus"
)

// DefaultQueueSize is the number of events that may be waiting for a single connection.
const DefaultQueueSize = 64

// Conn is a live connection to a single client.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Event is the frame written to a live connection.
type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data"`
}

// Registry maps user identifiers to their live connections.
type Registry struct {
	mu        sync.RWMutex
	users     map[string]map[*Subscription]struct{}
	queueSize int
	log       *logrus.Entry
}

// New returns a new registry. Events that can't be queued for a connection within queueSize events cause the
// connection to be dropped.
func New(queueSize int, log *logrus.Entry) *Registry {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Registry{
		users:     make(map[string]map[*Subscription]struct{}),
		queueSize: queueSize,
		log:       log,
	}
}

// Subscription is a single live connection that belongs to a user.
type Subscription struct {
	registry *Registry
	userID   string
	conn     Conn
	send     chan Event
	done     chan struct{}
	once     sync.Once
}

// UserID returns the identifier of the user that owns the subscription.
func (s *Subscription) UserID() string {
	return s.userID
}

// Done returns a channel that is closed once the subscription has left the registry.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Send queues an event for this connection only. It returns false if the connection has been dropped.
func (s *Subscription) Send(name string, data interface{}) bool {
	return s.enqueue(Event{Name: name, Data: data})
}

// Leave removes the subscription from the registry and closes the connection. It may be called more than once.
func (s *Subscription) Leave() {
	s.registry.remove(s)
}

func (s *Subscription) enqueue(event Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- event:
		return true
	default:
		return false
	}
}

// writeLoop drains the queue in order until the subscription leaves or a write fails.
func (s *Subscription) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case event := <-s.send:
			if err := s.conn.WriteJSON(event); err != nil {
				s.registry.log.WithFields(logrus.Fields{
					"user":  s.userID,
					"event": event.Name,
				}).WithError(err).Warn("dropping live connection after a failed write")
				metrics.LiveConnectionsDropped.WithLabelValues("write").Inc()
				s.Leave()
				return
			}
		}
	}
}

// Join adds a connection for a user and starts delivering events to it.
func (r *Registry) Join(userID string, conn Conn) *Subscription {
	sub := &Subscription{
		registry: r,
		userID:   userID,
		conn:     conn,
		send:     make(chan Event, r.queueSize),
		done:     make(chan struct{}),
	}

	r.mu.Lock()
	subs, ok := r.users[userID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		r.users[userID] = subs
	}
	subs[sub] = struct{}{}
	count := len(subs)
	r.mu.Unlock()
	metrics.LiveConnections.Inc()

	go sub.writeLoop()

	r.log.WithFields(logrus.Fields{"user": userID, "connections": count}).Debug("live connection joined")
	return sub
}

func (r *Registry) remove(sub *Subscription) {
	sub.once.Do(func() {
		r.mu.Lock()
		if subs, ok := r.users[sub.userID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(r.users, sub.userID)
			}
		}
		r.mu.Unlock()
		metrics.LiveConnections.Dec()

		close(sub.done)
		if err := sub.conn.Close(); err != nil {
			r.log.WithField("user", sub.userID).WithError(err).Debug("error closing live connection")
		}
		r.log.WithField("user", sub.userID).Debug("live connection left")
	})
}

// Publish delivers an event to every live connection that belongs to the user. Publishing to a user without
// live connections does nothing. Connections that can't keep up are dropped.
func (r *Registry) Publish(userID, event string, payload interface{}) {
	var slow []*Subscription

	r.mu.RLock()
	for sub := range r.users[userID] {
		if !sub.enqueue(Event{Name: event, Data: payload}) {
			slow = append(slow, sub)
		}
	}
	r.mu.RUnlock()

	for _, sub := range slow {
		r.log.WithFields(logrus.Fields{"user": userID, "event": event}).Warn("dropping slow live connection")
		metrics.LiveConnectionsDropped.WithLabelValues("slow").Inc()
		sub.Leave()
	}
}

// Connections returns the number of live connections that a user has.
func (r *Registry) Connections(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// Close drops every live connection.
func (r *Registry) Close() {
	var all []*Subscription

	r.mu.RLock()
	for _, subs := range r.users {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	r.mu.RUnlock()

	for _, sub := range all {
		sub.Leave()
	}
}
