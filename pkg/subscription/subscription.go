package subscription

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"
)

// Subscription errors.
var (
	ErrResourceExhausted    = errors.New("maximum subscriptions reached")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidTopic         = errors.New("invalid topic name")
	ErrNilDeliver           = errors.New("deliver callback is required")
)

// Default subscription limits.
const (
	DefaultMaxSubscriptions = 256
	DefaultDepth            = 10
)

// Config holds subscription manager configuration.
type Config struct {
	// MaxSubscriptions is the maximum number of live subscriptions.
	MaxSubscriptions int

	// DefaultDepth is used when Subscribe is called with depth <= 0.
	DefaultDepth int
}

// DefaultConfig returns the default subscription configuration.
func DefaultConfig() Config {
	return Config{
		MaxSubscriptions: DefaultMaxSubscriptions,
		DefaultDepth:     DefaultDepth,
	}
}

// Sample is one published message on a topic.
type Sample struct {
	Topic       string
	Seq         uint32
	Payload     []byte
	PublishedAt time.Time
}

// DeliverFunc receives samples for a subscription. It runs on the
// publisher's goroutine and must not block.
type DeliverFunc func(Sample)

// Subscription is an active topic registration.
type Subscription struct {
	ID    uint32
	Topic string
	Owner string

	// Depth is the history depth requested by the subscriber. The registry
	// does not queue; the owner's delivery path enforces it.
	Depth int

	CreatedAt time.Time

	deliver   DeliverFunc
	active    atomic.Bool
	delivered atomic.Uint64
}

func newSubscription(id uint32, topic, owner string, depth int, deliver DeliverFunc) *Subscription {
	s := &Subscription{
		ID:        id,
		Topic:     topic,
		Owner:     owner,
		Depth:     depth,
		CreatedAt: time.Now(),
		deliver:   deliver,
	}
	s.active.Store(true)
	return s
}

// IsActive returns true until the subscription is removed.
func (s *Subscription) IsActive() bool {
	return s.active.Load()
}

// Deactivate stops further deliveries.
func (s *Subscription) Deactivate() {
	s.active.Store(false)
}

// Delivered returns the number of samples handed to the callback.
func (s *Subscription) Delivered() uint64 {
	return s.delivered.Load()
}

// offer delivers the sample if the subscription is still active.
func (s *Subscription) offer(sample Sample) bool {
	if !s.active.Load() {
		return false
	}
	s.deliver(sample)
	s.delivered.Add(1)
	return true
}

// ValidateTopic checks that a topic is absolute and has no empty segments.
func ValidateTopic(topic string) error {
	if len(topic) < 2 || topic[0] != '/' {
		return ErrInvalidTopic
	}
	for _, seg := range strings.Split(topic[1:], "/") {
		if seg == "" {
			return ErrInvalidTopic
		}
	}
	return nil
}
