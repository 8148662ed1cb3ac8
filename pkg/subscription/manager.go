package subscription

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Manager tracks subscriptions and dispatches samples to them.
type Manager struct {
	mu sync.RWMutex

	config Config
	nextID atomic.Uint32

	subscriptions map[uint32]*Subscription
	topicIndex    map[string][]*Subscription
	seq           map[string]uint32

	onChange func(topic string, count int)
}

// NewManager creates a subscription manager with default configuration.
func NewManager() *Manager {
	return NewManagerWithConfig(DefaultConfig())
}

// NewManagerWithConfig creates a subscription manager with custom configuration.
func NewManagerWithConfig(config Config) *Manager {
	if config.MaxSubscriptions <= 0 {
		config.MaxSubscriptions = DefaultMaxSubscriptions
	}
	if config.DefaultDepth <= 0 {
		config.DefaultDepth = DefaultDepth
	}
	return &Manager{
		config:        config,
		subscriptions: make(map[uint32]*Subscription),
		topicIndex:    make(map[string][]*Subscription),
		seq:           make(map[string]uint32),
	}
}

// OnChange registers a callback invoked with the new subscriber count of a
// topic after every Subscribe and Unsubscribe. Brokers use it to forward
// interest upstream.
func (m *Manager) OnChange(fn func(topic string, count int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Subscribe registers deliver for topic and returns the subscription ID.
func (m *Manager) Subscribe(topic, owner string, depth int, deliver DeliverFunc) (uint32, error) {
	if err := ValidateTopic(topic); err != nil {
		return 0, fmt.Errorf("%w: %q", err, topic)
	}
	if deliver == nil {
		return 0, ErrNilDeliver
	}
	if depth <= 0 {
		depth = m.config.DefaultDepth
	}

	m.mu.Lock()
	if len(m.subscriptions) >= m.config.MaxSubscriptions {
		m.mu.Unlock()
		return 0, ErrResourceExhausted
	}

	id := m.nextID.Add(1)
	sub := newSubscription(id, topic, owner, depth, deliver)
	m.subscriptions[id] = sub
	m.topicIndex[topic] = append(m.topicIndex[topic], sub)
	count := len(m.topicIndex[topic])
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(topic, count)
	}
	return id, nil
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(id uint32) error {
	m.mu.Lock()
	sub, exists := m.subscriptions[id]
	if !exists {
		m.mu.Unlock()
		return ErrSubscriptionNotFound
	}
	count := m.removeLocked(sub)
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(sub.Topic, count)
	}
	return nil
}

// UnsubscribeOwner removes every subscription held by owner and returns
// how many were removed.
func (m *Manager) UnsubscribeOwner(owner string) int {
	type change struct {
		topic string
		count int
	}

	m.mu.Lock()
	var changes []change
	for _, sub := range m.subscriptions {
		if sub.Owner == owner {
			changes = append(changes, change{sub.Topic, m.removeLocked(sub)})
		}
	}
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		for _, c := range changes {
			onChange(c.topic, c.count)
		}
	}
	return len(changes)
}

// removeLocked deactivates and unindexes sub, returning the remaining
// subscriber count of its topic. Caller holds m.mu.
func (m *Manager) removeLocked(sub *Subscription) int {
	sub.Deactivate()
	delete(m.subscriptions, sub.ID)

	subs := m.topicIndex[sub.Topic]
	for i, s := range subs {
		if s.ID == sub.ID {
			m.topicIndex[sub.Topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	n := len(m.topicIndex[sub.Topic])
	if n == 0 {
		delete(m.topicIndex, sub.Topic)
	}
	return n
}

// Dispatch publishes payload on topic and returns the number of
// subscriptions it was delivered to. Samples on a topic are numbered
// from 1 whether or not anyone is subscribed.
func (m *Manager) Dispatch(topic string, payload []byte) int {
	m.mu.Lock()
	m.seq[topic]++
	seq := m.seq[topic]
	subs := m.topicIndex[topic]
	m.mu.Unlock()

	sample := Sample{Topic: topic, Seq: seq, Payload: payload, PublishedAt: time.Now()}
	delivered := 0
	for _, sub := range subs {
		if sub.offer(sample) {
			delivered++
		}
	}
	return delivered
}

// DispatchSample forwards a sample that already carries a sequence number,
// as received from a remote publisher.
func (m *Manager) DispatchSample(sample Sample) int {
	m.mu.RLock()
	subs := m.topicIndex[sample.Topic]
	m.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if sub.offer(sample) {
			delivered++
		}
	}
	return delivered
}

// ClearAll removes all subscriptions.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subscriptions {
		sub.Deactivate()
	}
	m.subscriptions = make(map[uint32]*Subscription)
	m.topicIndex = make(map[string][]*Subscription)
}

// Count returns the number of active subscriptions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// CountTopic returns the number of subscriptions on topic.
func (m *Manager) CountTopic(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.topicIndex[topic])
}

// Topics returns the sorted list of topics with at least one subscriber.
func (m *Manager) Topics() []string {
	m.mu.RLock()
	topics := make([]string, 0, len(m.topicIndex))
	for t := range m.topicIndex {
		topics = append(topics, t)
	}
	m.mu.RUnlock()
	sort.Strings(topics)
	return topics
}

// Get returns a subscription by ID.
func (m *Manager) Get(id uint32) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, exists := m.subscriptions[id]
	if !exists {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}
