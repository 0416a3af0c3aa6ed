package concurrent

import (
	"sync"

	"github.com/drakos74/free-model/internal/observe"
)

// Counter is a synchronous counter for tracking events and synchronising progress.
type Counter struct {
	mutex     *sync.Mutex
	waitGroup *sync.WaitGroup
	events    []observe.Event
}

// NewCounter creates a new counter.
func NewCounter(waitGroup *sync.WaitGroup) *Counter {
	return &Counter{
		mutex:     new(sync.Mutex),
		waitGroup: waitGroup,
		events:    make([]observe.Event, 0),
	}
}

// TrackUpTo records the event only while fewer than limit events are tracked.
// It returns false if the limit has already been reached.
func (c *Counter) TrackUpTo(e observe.Event, limit int) bool {
	c.mutex.Lock()
	if len(c.events) >= limit {
		c.mutex.Unlock()
		return false
	}
	c.events = append(c.events, e)
	c.mutex.Unlock()
	if c.waitGroup != nil {
		c.waitGroup.Done()
	}
	return true
}

// Get returns the current count.
func (c *Counter) Get() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.events)
}

// Events returns the tracked events.
func (c *Counter) Events() []observe.Event {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]observe.Event{}, c.events...)
}
